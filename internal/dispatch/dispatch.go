package dispatch

import (
	"context"
	"strings"

	"github.com/memnode/memnode/internal/conn"
	"github.com/memnode/memnode/internal/protocol"
)

// errReply wraps msg, unchanged, as a RESP error reply. Callers supply the
// error code prefix ("ERR ", "WRONGTYPE ") themselves, matching spec.md §7's
// literal message texts.
func errReply(msg string) protocol.Value {
	return protocol.Error(msg)
}

func encodeCommand(args []string) []byte {
	vals := make([]protocol.Value, len(args))
	for i, a := range args {
		vals[i] = protocol.Bulk(a)
	}
	return protocol.Encode(protocol.Array(vals...))
}

// Dispatch is the single entry point a connection's task calls per decoded
// command. It handles MULTI queueing and subscriber-mode restriction
// before handing off to execCommand for the actual command groups of
// spec.md §4.3.
func (s *Server) Dispatch(ctx context.Context, c *conn.Conn, args []string) protocol.Value {
	if len(args) == 0 {
		return errReply("ERR empty command")
	}
	name := strings.ToUpper(args[0])

	if c.InSubscriberMode && !conn.AllowedInSubscriberMode(name) {
		return errReply("ERR Can't execute '" + strings.ToLower(args[0]) +
			"': only (P|S)SUBSCRIBE / (P|S)UNSUBSCRIBE / PING / QUIT / RESET are allowed in this context")
	}

	switch name {
	case "MULTI":
		return s.cmdMulti(c)
	case "EXEC":
		return s.cmdExec(ctx, c)
	case "DISCARD":
		return s.cmdDiscard(c)
	}

	if c.Queueing {
		c.AddPending(args)
		return protocol.SimpleString("QUEUED")
	}

	return s.execCommand(ctx, c, name, args)
}

// execCommand runs one already-dequeued command. Split out from Dispatch
// so EXEC can invoke it directly per queued command without re-triggering
// MULTI/subscriber-mode handling.
func (s *Server) execCommand(ctx context.Context, c *conn.Conn, name string, args []string) protocol.Value {
	s.recordCommand(name)
	switch name {
	case "PING":
		return s.cmdPing(c)
	case "ECHO":
		return s.cmdEcho(args)

	case "SET":
		return s.cmdSet(args)
	case "GET":
		return s.cmdGet(args)
	case "INCR":
		return s.cmdIncr(args)

	case "KEYS":
		return s.cmdKeys(args)
	case "TYPE":
		return s.cmdType(args)
	case "CONFIG":
		return s.cmdConfig(args)

	case "SAVE":
		return s.cmdSave(args)

	case "RPUSH":
		return s.cmdPush(args, false)
	case "LPUSH":
		return s.cmdPush(args, true)
	case "LPOP":
		return s.cmdLPop(args)
	case "LRANGE":
		return s.cmdLRange(args)
	case "LLEN":
		return s.cmdLLen(args)
	case "BLPOP":
		return s.cmdBLPop(ctx, c, args)

	case "XADD":
		return s.cmdXAdd(args)
	case "XRANGE":
		return s.cmdXRange(args)
	case "XREAD":
		return s.cmdXRead(ctx, args)

	case "ZADD":
		return s.cmdZAdd(args)
	case "ZRANGE":
		return s.cmdZRange(args)
	case "ZRANK":
		return s.cmdZRank(args)
	case "ZCARD":
		return s.cmdZCard(args)
	case "ZSCORE":
		return s.cmdZScore(args)
	case "ZREM":
		return s.cmdZRem(args)

	case "GEOADD":
		return s.cmdGeoAdd(args)
	case "GEOPOS":
		return s.cmdGeoPos(args)
	case "GEODIST":
		return s.cmdGeoDist(args)
	case "GEOSEARCH":
		return s.cmdGeoSearch(args)

	case "SUBSCRIBE":
		return s.cmdSubscribe(c, args)
	case "UNSUBSCRIBE":
		return s.cmdUnsubscribe(c, args)
	case "PUBLISH":
		return s.cmdPublish(args)

	case "REPLCONF":
		return s.cmdReplConf(c, args)
	case "PSYNC":
		return s.cmdPsync(c, args)
	case "WAIT":
		return s.cmdWait(args)

	default:
		return errReply("ERR unknown command '" + args[0] + "'")
	}
}
