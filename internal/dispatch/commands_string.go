package dispatch

import (
	"strconv"
	"strings"
	"time"

	"github.com/memnode/memnode/internal/protocol"
	"github.com/memnode/memnode/internal/store"
)

// afterWrite propagates a completed write to replicas (master role only)
// and wakes any XREAD BLOCK waiters, per spec.md §4.4/§4.5.
func (s *Server) afterWrite(args []string) {
	if s.cfg.IsMaster {
		s.broadcastWrite(args)
	}
	s.notifyDBUpdated()
}

func (s *Server) cmdSet(args []string) protocol.Value {
	if len(args) < 3 {
		return errReply("ERR wrong number of arguments for 'set' command")
	}
	key, value := args[1], args[2]

	var expireAt time.Time
	if len(args) > 3 {
		if len(args) != 5 || strings.ToUpper(args[3]) != "PX" {
			return errReply("ERR syntax error")
		}
		ms, err := strconv.ParseInt(args[4], 10, 64)
		if err != nil {
			return errReply("ERR value is not an integer or out of range")
		}
		expireAt = time.Now().Add(time.Duration(ms) * time.Millisecond)
	}

	s.Keyspace.Set(key, store.Value{Kind: store.KindString, Str: value}, expireAt)
	s.afterWrite(args)
	return protocol.SimpleString("OK")
}

func (s *Server) cmdGet(args []string) protocol.Value {
	if len(args) != 2 {
		return errReply("ERR wrong number of arguments for 'get' command")
	}
	v, ok := s.Keyspace.Get(args[1])
	if !ok {
		return protocol.NullBulk()
	}
	if v.Kind != store.KindString {
		return errReply("WRONGTYPE Operation against a key holding the wrong kind of value")
	}
	return protocol.Bulk(v.Str)
}

func (s *Server) cmdIncr(args []string) protocol.Value {
	if len(args) != 2 {
		return errReply("ERR wrong number of arguments for 'incr' command")
	}
	key := args[1]

	v, ok := s.Keyspace.Get(key)
	if !ok {
		s.Keyspace.Set(key, store.Value{Kind: store.KindString, Str: "1"}, time.Time{})
		s.afterWrite(args)
		return protocol.Integer(1)
	}
	if v.Kind != store.KindString {
		return errReply("WRONGTYPE Operation against a key holding the wrong kind of value")
	}
	n, err := strconv.ParseInt(v.Str, 10, 64)
	if err != nil {
		return errReply("ERR value is not an integer or out of range")
	}
	n++
	s.Keyspace.Set(key, store.Value{Kind: store.KindString, Str: strconv.FormatInt(n, 10)}, time.Time{})
	s.afterWrite(args)
	return protocol.Integer(n)
}
