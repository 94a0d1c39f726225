package dispatch

import (
	"strconv"

	"github.com/memnode/memnode/internal/protocol"
)

func (s *Server) cmdZAdd(args []string) protocol.Value {
	if len(args) != 4 {
		return errReply("ERR wrong number of arguments for 'zadd' command")
	}
	score, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return errReply("ERR value is not a valid float")
	}

	z := s.SortedSets.GetOrCreate(args[1])
	added := z.Add(args[3], score)

	s.afterWrite(args)

	if added {
		return protocol.Integer(1)
	}
	return protocol.Integer(0)
}

func (s *Server) cmdZRange(args []string) protocol.Value {
	if len(args) != 4 {
		return errReply("ERR wrong number of arguments for 'zrange' command")
	}
	start, err1 := strconv.Atoi(args[2])
	stop, err2 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil {
		return errReply("ERR value is not an integer or out of range")
	}

	z, ok := s.SortedSets.Get(args[1])
	if !ok {
		return protocol.Array()
	}
	members := z.Range(start, stop)
	out := make([]protocol.Value, len(members))
	for i, m := range members {
		out[i] = protocol.Bulk(m)
	}
	return protocol.Array(out...)
}

func (s *Server) cmdZRank(args []string) protocol.Value {
	if len(args) != 3 {
		return errReply("ERR wrong number of arguments for 'zrank' command")
	}
	z, ok := s.SortedSets.Get(args[1])
	if !ok {
		return protocol.NullBulk()
	}
	rank, ok := z.Rank(args[2])
	if !ok {
		return protocol.NullBulk()
	}
	return protocol.Integer(int64(rank))
}

func (s *Server) cmdZCard(args []string) protocol.Value {
	if len(args) != 2 {
		return errReply("ERR wrong number of arguments for 'zcard' command")
	}
	z, ok := s.SortedSets.Get(args[1])
	if !ok {
		return protocol.Integer(0)
	}
	return protocol.Integer(int64(z.Card()))
}

func (s *Server) cmdZScore(args []string) protocol.Value {
	if len(args) != 3 {
		return errReply("ERR wrong number of arguments for 'zscore' command")
	}
	z, ok := s.SortedSets.Get(args[1])
	if !ok {
		return protocol.NullBulk()
	}
	score, ok := z.Score(args[2])
	if !ok {
		return protocol.NullBulk()
	}
	return protocol.Bulk(strconv.FormatFloat(score, 'g', -1, 64))
}

func (s *Server) cmdZRem(args []string) protocol.Value {
	if len(args) != 3 {
		return errReply("ERR wrong number of arguments for 'zrem' command")
	}
	z, ok := s.SortedSets.Get(args[1])
	if !ok {
		return protocol.Integer(0)
	}
	removed := z.Rem(args[2])
	if removed {
		s.afterWrite(args)
		return protocol.Integer(1)
	}
	return protocol.Integer(0)
}
