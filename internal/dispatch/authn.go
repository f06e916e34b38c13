package dispatch

import (
	"fmt"
	"time"

	"falcon/internal/protocol"
	"falcon/internal/transport/stream"
)

// connectTimeout bounds the login handshake on consoles that require it
// (spec §5 "Connect attempts: 5 s").
const connectTimeout = 5 * time.Second

// authenticate runs the login handshake on conn when c.authn is enabled,
// per §10.3: the first line must be a "login" command bearing a JWT. It
// returns the authenticated username, or an error if the handshake fails
// or times out; callers close the connection on error. When authentication
// is disabled, authenticate is a no-op (returns "", nil) so detection
// ingest and bird-subsystem connections, which never call it, and local
// development consoles both work without a token.
func (c *Core) authenticate(conn *stream.Conn) (string, error) {
	if c.authn == nil || !c.authn.IsEnabled() {
		return "", nil
	}

	if err := conn.SetDeadline(time.Now().Add(connectTimeout)); err != nil {
		return "", fmt.Errorf("dispatch: set login deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{})

	line, err := conn.Receive()
	if err != nil {
		return "", fmt.Errorf("dispatch: login read: %w", err)
	}

	env, err := protocol.Peek(line)
	if err != nil || env.Type != protocol.TypeCommand || env.Command != "login" {
		return "", fmt.Errorf("dispatch: expected login command, got %q", line)
	}

	var login protocol.LoginCommand
	if err := unmarshalInto(line, &login); err != nil {
		return "", fmt.Errorf("dispatch: malformed login command: %w", err)
	}

	claims, err := c.authn.ValidateToken(login.Token)
	if err != nil {
		conn.Send(protocol.NewCommandResponse("login", "denied"))
		return "", fmt.Errorf("dispatch: login rejected: %w", err)
	}

	conn.Send(protocol.NewCommandResponse("login", "ok"))
	return claims.Username, nil
}
