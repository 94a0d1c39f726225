package dispatch

import (
	"context"
	"strconv"
	"time"

	"github.com/memnode/memnode/internal/blocking"
	"github.com/memnode/memnode/internal/conn"
	"github.com/memnode/memnode/internal/protocol"
)

func (s *Server) cmdPush(args []string, left bool) protocol.Value {
	if len(args) < 3 {
		name := "rpush"
		if left {
			name = "lpush"
		}
		return errReply("ERR wrong number of arguments for '" + name + "' command")
	}
	key := args[1]
	values := args[2:]

	list, ok := s.Keyspace.GetOrCreateList(key)
	if !ok {
		return errReply("WRONGTYPE Operation against a key holding the wrong kind of value")
	}

	var length int
	if left {
		length = list.LPush(values...)
	} else {
		length = list.RPush(values...)
	}

	s.afterWrite(args)
	// One wakeup event per pushed value: a single RPUSH of N values may
	// need to serve N distinct BLPOP waiters, and each only re-checks the
	// list once per event it sees.
	for range values {
		s.notifyListUpdated(key)
	}
	return protocol.Integer(int64(length))
}

func (s *Server) cmdLPop(args []string) protocol.Value {
	if len(args) != 2 && len(args) != 3 {
		return errReply("ERR wrong number of arguments for 'lpop' command")
	}
	key := args[1]
	count := 1
	wantsArray := len(args) == 3
	if wantsArray {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 0 {
			return errReply("ERR value is not an integer or out of range")
		}
		count = n
	}

	list, ok := s.Keyspace.GetListIfExists(key)
	if !ok {
		if wantsArray {
			return protocol.NullArray()
		}
		return protocol.NullBulk()
	}

	vals, ok := list.LPop(count)
	if !ok || len(vals) == 0 {
		if wantsArray {
			return protocol.NullArray()
		}
		return protocol.NullBulk()
	}

	s.afterWrite(args)

	if !wantsArray {
		return protocol.Bulk(vals[0])
	}
	out := make([]protocol.Value, len(vals))
	for i, v := range vals {
		out[i] = protocol.Bulk(v)
	}
	return protocol.Array(out...)
}

func (s *Server) cmdLRange(args []string) protocol.Value {
	if len(args) != 4 {
		return errReply("ERR wrong number of arguments for 'lrange' command")
	}
	start, err1 := strconv.Atoi(args[2])
	stop, err2 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil {
		return errReply("ERR value is not an integer or out of range")
	}

	list, ok := s.Keyspace.GetListIfExists(args[1])
	if !ok {
		return protocol.Array()
	}

	vals := list.Range(start, stop)
	out := make([]protocol.Value, len(vals))
	for i, v := range vals {
		out[i] = protocol.Bulk(v)
	}
	return protocol.Array(out...)
}

func (s *Server) cmdLLen(args []string) protocol.Value {
	if len(args) != 2 {
		return errReply("ERR wrong number of arguments for 'llen' command")
	}
	list, ok := s.Keyspace.GetListIfExists(args[1])
	if !ok {
		return protocol.Integer(0)
	}
	return protocol.Integer(int64(list.Len()))
}

func (s *Server) cmdBLPop(ctx context.Context, c *conn.Conn, args []string) protocol.Value {
	if len(args) != 3 {
		return errReply("ERR wrong number of arguments for 'blpop' command")
	}
	key := args[1]
	secs, err := strconv.ParseFloat(args[2], 64)
	if err != nil || secs < 0 {
		return errReply("ERR timeout is not a float or out of range")
	}
	timeout := time.Duration(secs * float64(time.Second))

	value, ok := blocking.BLPop(ctx, s.Keyspace, s.Hub, s.Blocked, c.ID, key, timeout)
	if !ok {
		return protocol.NullArray()
	}
	return protocol.Array(protocol.Bulk(key), protocol.Bulk(value))
}
