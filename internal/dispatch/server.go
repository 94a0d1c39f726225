// Package dispatch implements the command dispatcher and the shared
// process state it mutates: the keyspace, sorted sets, blocked-client and
// subscription tables, the replicas table, and the broadcast hub that
// connects them, per spec.md §4.3-§4.5.
package dispatch

import (
	"sync"
	"sync/atomic"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/memnode/memnode/internal/backup"
	"github.com/memnode/memnode/internal/blocking"
	"github.com/memnode/memnode/internal/broadcast"
	"github.com/memnode/memnode/internal/conn"
	"github.com/memnode/memnode/internal/pubsub"
	"github.com/memnode/memnode/internal/replication"
	"github.com/memnode/memnode/internal/store"
	natsclient "github.com/memnode/memnode/pkg/nats"
)

// Config carries the startup-fixed settings the dispatcher consults for
// CONFIG GET, SAVE, and role determination (spec.md §6).
type Config struct {
	Dir        string
	DBFilename string
	IsMaster   bool
	ReplID     string // only meaningful when IsMaster
}

// Server holds every piece of shared process state spec.md §3 describes
// as global (as opposed to per-connection), plus the command table.
type Server struct {
	Keyspace   *store.Keyspace
	SortedSets *store.SortedSets
	Hub        *broadcast.Hub
	Blocked    *blocking.Table
	PubSub     *pubsub.Table
	Replicas   *replication.Table
	Nats       *natsclient.Client // nil unless --nats-url is configured
	Backup     backup.Target      // nil unless --backup-bucket is configured

	cfg Config

	offsetMu     sync.Mutex
	masterOffset int64 // cumulative bytes of write frames broadcast since start

	connMu    sync.Mutex
	connsByID map[int]*conn.Conn

	commandsTotal      int64
	writeCommandsTotal int64
}

func NewServer(cfg Config) *Server {
	return &Server{
		Keyspace:   store.NewKeyspace(),
		SortedSets: store.NewSortedSets(),
		Hub:        broadcast.NewHub(),
		Blocked:    blocking.NewTable(),
		PubSub:     pubsub.NewTable(),
		Replicas:   replication.NewTable(),
		cfg:        cfg,
		connsByID:  make(map[int]*conn.Conn),
	}
}

// RegisterConn makes c reachable by ID for PUBLISH delivery and replica
// frame forwarding. cmd/memnoded calls this when a connection is accepted
// and DeregisterConn when it closes.
func (s *Server) RegisterConn(c *conn.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.connsByID[c.ID] = c
}

// DeregisterConn removes c and clears its subscriber-table and
// replicas-table entries before the connection's task exits. Blocked-queue
// entries are not touched here: blocking.BLPop removes its own entry on
// every return path, and a connection's task cannot exit while BLPOP runs.
func (s *Server) DeregisterConn(c *conn.Conn) {
	s.connMu.Lock()
	delete(s.connsByID, c.ID)
	s.connMu.Unlock()

	s.PubSub.UnsubscribeAll(c.ID)
	if c.PeerListenPort != 0 {
		s.Replicas.Remove(c.PeerListenPort)
	}
}

func (s *Server) lookupConn(id int) (*conn.Conn, bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	c, ok := s.connsByID[id]
	return c, ok
}

// MasterOffset returns the cumulative byte count of write frames broadcast
// since start — the target WAIT polls replica acknowledgments against.
func (s *Server) MasterOffset() int64 {
	return atomic.LoadInt64(&s.masterOffset)
}

// broadcastWrite serializes args as a write-command frame, forwards it to
// every replica-link subscriber via the hub, and advances the master
// offset by the frame's length. Must be called with no keyspace lock held
// (spec.md §4.4).
func (s *Server) broadcastWrite(args []string) {
	frame := encodeCommand(args)
	atomic.AddInt64(&s.masterOffset, int64(len(frame)))
	s.Hub.Publish(broadcast.Message{Kind: broadcast.KindWrite, Frame: frame})
}

func (s *Server) notifyDBUpdated() {
	s.Hub.Publish(broadcast.Message{Kind: broadcast.KindDBUpdated})
}

func (s *Server) notifyListUpdated(key string) {
	s.Hub.Publish(broadcast.Message{Kind: broadcast.KindDBUpdatedList, ListKey: key})
}

// sendGetAck is passed to replication.Wait; it broadcasts REPLCONF GETACK *
// exactly like any other write frame, so every replica-link forwarder
// (which just relays KindWrite frames verbatim) delivers it without special
// casing.
func (s *Server) sendGetAck() {
	s.Hub.Publish(broadcast.Message{Kind: broadcast.KindWrite, Frame: encodeCommand([]string{"REPLCONF", "GETACK", "*"})})
}

// deliverToConn pushes an already-encoded frame to connID's outbound
// queue, dropping it (with a log) if that connection's queue is full
// rather than blocking the publisher.
func (s *Server) deliverToConn(connID int, frame []byte) {
	c, ok := s.lookupConn(connID)
	if !ok {
		return
	}
	select {
	case c.Out <- frame:
	default:
		cclog.Warnf("dispatch: dropping frame for slow connection %d", connID)
	}
}

var writeCommands = map[string]bool{
	"SET": true, "INCR": true,
	"RPUSH": true, "LPUSH": true, "LPOP": true,
	"XADD":   true,
	"ZADD":   true, "ZREM": true,
	"GEOADD": true,
}

func isWriteCommand(name string) bool { return writeCommands[name] }

// recordCommand is called once per dispatched command (from execCommand, so
// queued-then-EXEC'd commands are counted individually rather than as one
// EXEC). internal/metrics reads the totals through Stats.
func (s *Server) recordCommand(name string) {
	atomic.AddInt64(&s.commandsTotal, 1)
	if isWriteCommand(name) {
		atomic.AddInt64(&s.writeCommandsTotal, 1)
	}
}

// Stats is a point-in-time snapshot of counters internal/metrics exposes as
// Prometheus gauges/counters.
type Stats struct {
	CommandsTotal      int64
	WriteCommandsTotal int64
	ConnectedClients   int
	ReplicaCount       int
	KeyspaceSize       int
	MasterOffset       int64
}

func (s *Server) Stats() Stats {
	s.connMu.Lock()
	clients := len(s.connsByID)
	s.connMu.Unlock()

	return Stats{
		CommandsTotal:      atomic.LoadInt64(&s.commandsTotal),
		WriteCommandsTotal: atomic.LoadInt64(&s.writeCommandsTotal),
		ConnectedClients:   clients,
		ReplicaCount:       s.Replicas.Len(),
		KeyspaceSize:       len(s.Keyspace.Keys("*")),
		MasterOffset:       s.MasterOffset(),
	}
}

// nowMs is the wall-clock millisecond source used for stream "*" IDs.
// BLPOP and XREAD BLOCK deadlines use time.Timer instead.
func nowMs() uint64 { return store.NowMs() }
