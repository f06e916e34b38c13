package dispatch

import (
	"log"

	"falcon/internal/protocol"
	"falcon/internal/risk"
	"falcon/internal/transport/stream"
)

// handleBird serves the bird-subsystem connection (spec §4.15): a trusted
// internal link, no login handshake, receiving BR_CHANGED proposals.
func (c *Core) handleBird(conn *stream.Conn) {
	defer conn.Close()

	for {
		line, err := conn.Receive()
		if err != nil {
			log.Printf("[Dispatch:Bird] connection closed: %v", err)
			return
		}

		env, err := protocol.Peek(line)
		if err != nil {
			log.Printf("[Dispatch:Bird] malformed message, discarding: %v", err)
			continue
		}
		if env.Type != protocol.TypeEvent || env.Event != "BR_CHANGED" {
			continue
		}

		var ev protocol.BirdChangedEvent
		if err := unmarshalInto(line, &ev); err != nil {
			log.Printf("[Dispatch:Bird] malformed BR_CHANGED event: %v", err)
			continue
		}

		level, ok := mapBirdLevel(ev.Result)
		if !ok {
			log.Printf("[Dispatch:Bird] unrecognized bird-risk level %q", ev.Result)
			continue
		}

		if change, changed := c.risk.SetBirdRisk(level); changed {
			c.broadcastRiskChange(change)
		}
	}
}

func mapBirdLevel(result string) (risk.BirdRisk, bool) {
	switch result {
	case "BR_LOW":
		return risk.BirdLow, true
	case "BR_MEDIUM":
		return risk.BirdMedium, true
	case "BR_HIGH":
		return risk.BirdHigh, true
	default:
		return "", false
	}
}
