package dispatch

import "encoding/json"

// unmarshalInto is a thin json.Unmarshal wrapper, named for readability at
// call sites that already went through protocol.Peek to pick a concrete
// type.
func unmarshalInto(line []byte, v interface{}) error {
	return json.Unmarshal(line, v)
}
