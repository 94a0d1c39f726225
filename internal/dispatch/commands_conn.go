package dispatch

import (
	"github.com/memnode/memnode/internal/conn"
	"github.com/memnode/memnode/internal/protocol"
)

func (s *Server) cmdPing(c *conn.Conn) protocol.Value {
	if c.Role == conn.RoleMasterLink {
		// Counted towards bytes_processed by the caller; no reply is ever
		// written back over a master link.
		return protocol.NoReply()
	}
	return protocol.SimpleString("PONG")
}

func (s *Server) cmdEcho(args []string) protocol.Value {
	if len(args) != 2 {
		return errReply("ERR wrong number of arguments for 'echo' command")
	}
	return protocol.Bulk(args[1])
}
