package dispatch

import (
	"log"

	"falcon/internal/protocol"
	"falcon/internal/transport/stream"
)

// handlePilot serves one pilot-query connection (spec §4.15): login
// handshake, then a request/response loop over the fixed pilot vocabulary
// (spec §6: BR_INQ, RWY_A_STATUS, RWY_B_STATUS, RWY_AVAIL_INQ).
func (c *Core) handlePilot(conn *stream.Conn) {
	defer conn.Close()

	if _, err := c.authenticate(conn); err != nil {
		log.Printf("[Dispatch:Pilot] login failed: %v", err)
		return
	}

	for {
		line, err := conn.Receive()
		if err != nil {
			log.Printf("[Dispatch:Pilot] disconnected: %v", err)
			return
		}

		env, err := protocol.Peek(line)
		if err != nil {
			log.Printf("[Dispatch:Pilot] malformed message, discarding: %v", err)
			continue
		}
		if env.Type != protocol.TypeCommand {
			continue
		}

		var msg protocol.OperatorMessage
		if err := unmarshalInto(line, &msg); err != nil {
			log.Printf("[Dispatch:Pilot] malformed query: %v", err)
			continue
		}

		snap := c.risk.Current()
		var reply string
		switch msg.Code {
		case "BR_INQ":
			reply = string(snap.Bird)
		case "RWY_A_STATUS":
			reply = string(snap.RunwayA)
		case "RWY_B_STATUS":
			reply = string(snap.RunwayB)
		case "RWY_AVAIL_INQ":
			reply = string(snap.Availability())
		default:
			log.Printf("[Dispatch:Pilot] unrecognized query %q", msg.Code)
			continue
		}
		conn.Send(protocol.NewOperatorResponse(msg.Code, reply))
	}
}
