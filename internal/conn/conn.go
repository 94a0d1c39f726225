// Package conn models per-connection state: role, transaction queueing,
// subscriber mode, and the counters replication and WAIT depend on
// (spec.md §3 "Connection state").
package conn

import "sync"

// Role distinguishes what a connection's task is doing with the bytes it
// reads.
type Role int

const (
	// RoleClient is a normal RESP client.
	RoleClient Role = iota
	// RoleReplicaLink is a replica connected to this (master) process; the
	// master forwards write frames and REPLCONF GETACK over this link.
	RoleReplicaLink
	// RoleMasterLink is this (replica) process's outbound link to its
	// master; commands arriving here are applied silently, no replies.
	RoleMasterLink
)

// Conn is one connection's mutable state. ID is a process-unique handle
// (the remote TCP port works well in practice, see cmd/memnoded) used as
// the fairness/subscription/replica-table key spec.md describes as
// "peer_listen_port" for replicas and simply "peer port" for blocked
// clients and subscribers.
type Conn struct {
	mu sync.Mutex

	ID   int
	Role Role

	// BytesProcessed counts command bytes consumed on this connection. On
	// a master-link (replica side) it drives REPLCONF ACK; on a
	// replica-link (master side) it is unused — the master instead reads
	// the replica's table entry, itself filled from ACKs.
	BytesProcessed int64

	// Queueing and Pending implement MULTI/EXEC/DISCARD.
	Queueing bool
	Pending  [][]string

	// Channels and InSubscriberMode implement SUBSCRIBE/UNSUBSCRIBE.
	Channels         map[string]bool
	InSubscriberMode bool

	// PeerListenPort is the port a replica advertised via
	// "REPLCONF listening-port", used as the key into the master's
	// replicas table. Zero until the replica sends it.
	PeerListenPort int

	// Out is the outbound frame queue; a connection's writer goroutine
	// drains this and writes raw bytes to the socket. Buffered so that
	// PUBLISH/BLPOP wakeups/replication forwarding never block on a
	// consumer's own dispatch loop.
	Out chan []byte
}

func New(id int) *Conn {
	return &Conn{
		ID:       id,
		Channels: make(map[string]bool),
		Out:      make(chan []byte, 256),
	}
}

// AddPending queues cmd during a MULTI block.
func (c *Conn) AddPending(cmd []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Pending = append(c.Pending, cmd)
}

// TakePending returns and clears the queued commands.
func (c *Conn) TakePending() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.Pending
	c.Pending = nil
	return p
}

// Subscribe adds channel to this connection's subscription set and enters
// subscriber mode. Returns the new subscription count for this connection.
func (c *Conn) Subscribe(channel string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Channels[channel] = true
	c.InSubscriberMode = true
	return len(c.Channels)
}

// Unsubscribe removes channel from this connection's subscription set,
// leaving subscriber mode once no channels remain.
func (c *Conn) Unsubscribe(channel string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Channels, channel)
	if len(c.Channels) == 0 {
		c.InSubscriberMode = false
	}
	return len(c.Channels)
}

// IsSubscribed reports whether channel is in this connection's set.
func (c *Conn) IsSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Channels[channel]
}

// ChannelList returns a snapshot of the subscribed channel names.
func (c *Conn) ChannelList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.Channels))
	for ch := range c.Channels {
		out = append(out, ch)
	}
	return out
}

// subscriberSafeCommands lists the commands allowed while InSubscriberMode,
// per spec.md §4.6.
var subscriberSafeCommands = map[string]bool{
	"SUBSCRIBE":     true,
	"UNSUBSCRIBE":   true,
	"PSUBSCRIBE":    true,
	"PUNSUBSCRIBE":  true,
	"PING":          true,
	"QUIT":          true,
	"RESET":         true,
}

// AllowedInSubscriberMode reports whether cmdName may run while this
// connection is in subscriber mode.
func AllowedInSubscriberMode(cmdName string) bool {
	return subscriberSafeCommands[cmdName]
}
