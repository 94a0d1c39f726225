package dispatch

import (
	"strconv"
	"strings"
	"time"

	"github.com/memnode/memnode/internal/conn"
	"github.com/memnode/memnode/internal/protocol"
	"github.com/memnode/memnode/internal/replication"
	"github.com/memnode/memnode/internal/snapshot"
)

// cmdReplConf handles the three REPLCONF forms spec.md §4.5 describes:
// the replica announcing its listening port and capabilities during the
// handshake, the master asking a replica to report its offset (GETACK),
// and a replica reporting it (ACK) — the first two run on whichever side
// receives them, the third only ever arrives at a master.
func (s *Server) cmdReplConf(c *conn.Conn, args []string) protocol.Value {
	if len(args) < 2 {
		return errReply("ERR wrong number of arguments for 'replconf' command")
	}
	switch strings.ToLower(args[1]) {
	case "listening-port":
		if len(args) != 3 {
			return errReply("ERR syntax error")
		}
		port, err := strconv.Atoi(args[2])
		if err != nil {
			return errReply("ERR invalid listening-port")
		}
		c.PeerListenPort = port
		c.Role = conn.RoleReplicaLink
		s.Replicas.Register(port)
		return protocol.SimpleString("OK")

	case "capa":
		return protocol.SimpleString("OK")

	case "getack":
		// Sent by the master; the replica reports the bytes_processed
		// value captured before this very frame was counted.
		return protocol.Array(protocol.Bulk("REPLCONF"), protocol.Bulk("ACK"), protocol.Bulk(strconv.FormatInt(c.BytesProcessed, 10)))

	case "ack":
		if len(args) != 3 {
			return errReply("ERR syntax error")
		}
		n, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return errReply("ERR invalid ack offset")
		}
		if c.PeerListenPort != 0 {
			s.Replicas.Ack(c.PeerListenPort, n)
		}
		return protocol.NoReply()

	default:
		return errReply("ERR unrecognized REPLCONF option")
	}
}

// cmdPsync implements the master side of the handshake's final step: reply
// FULLRESYNC <replid> <offset> followed by the RDB file blob, per
// spec.md §4.5 and §9(b) (the fixed empty-RDB constant, not a live
// snapshot).
func (s *Server) cmdPsync(c *conn.Conn, args []string) protocol.Value {
	if len(args) != 3 {
		return errReply("ERR wrong number of arguments for 'psync' command")
	}
	c.Role = conn.RoleReplicaLink

	reply := replication.FullresyncReply(s.cfg.ReplID, s.MasterOffset(), snapshot.EmptyRDB)
	// The FULLRESYNC reply mixes a simple string and a raw file blob, which
	// protocol.Value has no single Kind for; deliver it directly and
	// signal the caller not to also encode a reply.
	s.deliverToConn(c.ID, reply)
	return protocol.NoReply()
}

// cmdWait implements WAIT numreplicas timeout_ms per spec.md §4.5: request
// an ACK from every replica, then poll the replicas table until enough
// have caught up or the timeout elapses.
func (s *Server) cmdWait(args []string) protocol.Value {
	if len(args) != 3 {
		return errReply("ERR wrong number of arguments for 'wait' command")
	}
	numReplicas, err1 := strconv.Atoi(args[1])
	timeoutMs, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil || numReplicas < 0 || timeoutMs < 0 {
		return errReply("ERR value is not an integer or out of range")
	}

	target := s.MasterOffset()
	count := replication.Wait(s.Replicas, time.Duration(timeoutMs)*time.Millisecond, numReplicas, target, s.sendGetAck)
	return protocol.Integer(int64(count))
}
