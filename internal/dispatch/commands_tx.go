package dispatch

import (
	"context"
	"strings"

	"github.com/memnode/memnode/internal/conn"
	"github.com/memnode/memnode/internal/protocol"
)

func (s *Server) cmdMulti(c *conn.Conn) protocol.Value {
	c.Queueing = true
	c.Pending = nil
	return protocol.SimpleString("OK")
}

func (s *Server) cmdDiscard(c *conn.Conn) protocol.Value {
	if !c.Queueing {
		return errReply("ERR DISCARD without MULTI")
	}
	c.Queueing = false
	c.TakePending()
	return protocol.SimpleString("OK")
}

// cmdExec runs every queued command in order and returns their replies as
// one array, per spec.md §4.3: transactions execute and reply atomically
// as a single unit from the client's point of view.
func (s *Server) cmdExec(ctx context.Context, c *conn.Conn) protocol.Value {
	if !c.Queueing {
		return errReply("ERR EXEC without MULTI")
	}
	c.Queueing = false
	pending := c.TakePending()

	replies := make([]protocol.Value, len(pending))
	for i, cmd := range pending {
		name := strings.ToUpper(cmd[0])
		replies[i] = s.execCommand(ctx, c, name, cmd)
	}
	return protocol.Array(replies...)
}
