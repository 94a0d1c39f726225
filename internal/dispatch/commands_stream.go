package dispatch

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/memnode/memnode/internal/blocking"
	"github.com/memnode/memnode/internal/protocol"
	"github.com/memnode/memnode/internal/store"
)

func (s *Server) cmdXAdd(args []string) protocol.Value {
	if len(args) < 5 {
		return errReply("ERR wrong number of arguments for 'xadd' command")
	}
	key, id := args[1], args[2]
	fields := args[3:]

	stream, ok := s.Keyspace.GetOrCreateStream(key)
	if !ok {
		return errReply("WRONGTYPE Operation against a key holding the wrong kind of value")
	}

	gotID, err := stream.Append(id, fields, nowMs())
	if err != nil {
		return errReply("ERR " + err.Error())
	}

	s.afterWrite(args)
	return protocol.Bulk(gotID.String())
}

func (s *Server) cmdXRange(args []string) protocol.Value {
	if len(args) != 4 {
		return errReply("ERR wrong number of arguments for 'xrange' command")
	}
	start, err := parseStreamBound(args[2], 0)
	if err != nil {
		return errReply("ERR " + err.Error())
	}
	end, err := parseStreamBound(args[3], math.MaxUint64)
	if err != nil {
		return errReply("ERR " + err.Error())
	}

	stream, ok := s.Keyspace.GetStreamIfExists(args[1])
	if !ok {
		return protocol.Array()
	}

	entries := stream.Range(start, end)
	return protocol.Array(encodeStreamEntries(entries)...)
}

func parseStreamBound(s string, defaultSeq uint64) (store.StreamID, error) {
	switch s {
	case "-":
		return store.StreamID{Ms: 0, Seq: 0}, nil
	case "+":
		return store.StreamID{Ms: math.MaxUint64, Seq: math.MaxUint64}, nil
	default:
		return store.ParseStreamID(s, defaultSeq)
	}
}

func encodeStreamEntries(entries []store.StreamEntry) []protocol.Value {
	out := make([]protocol.Value, len(entries))
	for i, e := range entries {
		fields := make([]protocol.Value, len(e.Fields))
		for j, f := range e.Fields {
			fields[j] = protocol.Bulk(f)
		}
		out[i] = protocol.Array(protocol.Bulk(e.ID.String()), protocol.Array(fields...))
	}
	return out
}

// cmdXRead parses "XREAD [BLOCK ms] STREAMS k1..kn id1..idn" per spec.md
// §4.3/§4.6: a trailing "$" id is resolved against each stream's last ID
// captured before any blocking begins.
func (s *Server) cmdXRead(ctx context.Context, args []string) protocol.Value {
	i := 1
	blockMs := -1
	if i < len(args) && strings.ToUpper(args[i]) == "BLOCK" {
		if i+1 >= len(args) {
			return errReply("ERR syntax error")
		}
		ms, err := strconv.Atoi(args[i+1])
		if err != nil || ms < 0 {
			return errReply("ERR timeout is not an integer or out of range")
		}
		blockMs = ms
		i += 2
	}
	if i >= len(args) || strings.ToUpper(args[i]) != "STREAMS" {
		return errReply("ERR syntax error")
	}
	i++

	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return errReply("ERR Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified.")
	}
	n := len(rest) / 2
	keys := rest[:n]
	rawIDs := rest[n:]

	startIDs := make([]store.StreamID, n)
	for idx, key := range keys {
		if rawIDs[idx] == "$" {
			stream, ok := s.Keyspace.GetStreamIfExists(key)
			if ok {
				startIDs[idx] = stream.LastID()
			}
			continue
		}
		id, err := store.ParseStreamID(rawIDs[idx], 0)
		if err != nil {
			return errReply("ERR Invalid stream ID specified as stream command argument")
		}
		startIDs[idx] = id
	}

	var results map[string][]store.StreamEntry
	if blockMs < 0 {
		results = make(map[string][]store.StreamEntry)
		for idx, key := range keys {
			stream, ok := s.Keyspace.GetStreamIfExists(key)
			if !ok {
				continue
			}
			if entries := stream.After(startIDs[idx]); len(entries) > 0 {
				results[key] = entries
			}
		}
	} else {
		results = blocking.XReadBlock(ctx, s.Keyspace, s.Hub, keys, startIDs, blockMs)
	}

	if len(results) == 0 {
		return protocol.NullArray()
	}

	out := make([]protocol.Value, 0, len(results))
	for _, key := range keys {
		entries, ok := results[key]
		if !ok {
			continue
		}
		out = append(out, protocol.Array(protocol.Bulk(key), protocol.Array(encodeStreamEntries(entries)...)))
	}
	return protocol.Array(out...)
}
