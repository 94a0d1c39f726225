// Package replication implements the master/replica handshake, the
// replicas acknowledgment table, and WAIT's polling loop, per spec.md
// §4.5. The wire-level framing it produces/consumes is plain RESP simple
// strings and the one-off FULLRESYNC file blob; see internal/protocol for
// the general codec.
package replication

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/memnode/memnode/internal/protocol"
)

// FixedReplID is the master replication id used when no persistent
// identity store exists, per spec.md §6.
const FixedReplID = "8371b4fb1155b71f4a04d3e1bc3e18c4a990aeeb"

// ReplicaInfo is one master-side replica's acknowledgment state.
type ReplicaInfo struct {
	ListenPort int
	BytesAcked int64
}

// Table is the master-side replicas table: peer_listen_port -> bytes_acked.
type Table struct {
	mu       sync.Mutex
	replicas map[int]*ReplicaInfo
}

func NewTable() *Table {
	return &Table{replicas: make(map[int]*ReplicaInfo)}
}

// Register adds a replica entry for listenPort, replacing any existing one.
func (t *Table) Register(listenPort int) *ReplicaInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	info := &ReplicaInfo{ListenPort: listenPort}
	t.replicas[listenPort] = info
	return info
}

// Ack records that listenPort has processed bytesAcked bytes.
func (t *Table) Ack(listenPort int, bytesAcked int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.replicas[listenPort]; ok {
		info.BytesAcked = bytesAcked
	}
}

// Remove deregisters a replica, called when its connection closes.
func (t *Table) Remove(listenPort int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.replicas, listenPort)
}

// CountAcked returns how many registered replicas have BytesAcked >= target.
func (t *Table) CountAcked(target int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, info := range t.replicas {
		if info.BytesAcked >= target {
			n++
		}
	}
	return n
}

// Len returns the number of registered replicas.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.replicas)
}

// Wait polls the replicas table until numReplicas have acknowledged target
// bytes or timeout elapses, at ~timeout/10 intervals (minimum 1ms), per
// spec.md §4.5. sendGetAck is invoked once up front to trigger
// REPLCONF GETACK * on every replica link; the caller supplies it because
// only the dispatcher knows how to reach the broadcast hub.
func Wait(table *Table, timeout time.Duration, numReplicas int, target int64, sendGetAck func()) int {
	sendGetAck()

	if timeout <= 0 {
		return table.CountAcked(target)
	}

	interval := timeout / 10
	if interval < time.Millisecond {
		interval = time.Millisecond
	}

	deadline := time.Now().Add(timeout)
	for {
		count := table.CountAcked(target)
		if count >= numReplicas {
			return count
		}
		if time.Now().After(deadline) {
			return table.CountAcked(target)
		}
		time.Sleep(interval)
	}
}

// HandshakeResult is what a replica learns from a successful handshake.
type HandshakeResult struct {
	ReplID string
	Offset int64
	RDB    []byte

	// Reader is the buffered reader Handshake read the handshake replies
	// and RDB blob through. The master's write stream begins immediately
	// after the RDB blob and may already sit in this reader's internal
	// buffer, so callers must keep reading from Reader rather than from
	// the raw net.Conn.
	Reader *bufio.Reader
}

// Handshake drives the replica side of the five-step handshake in spec.md
// §4.5: PING, REPLCONF listening-port, REPLCONF capa, PSYNC, then reads the
// FULLRESYNC line and the RDB file blob that follows it.
func Handshake(c net.Conn, listenPort int) (*HandshakeResult, error) {
	r := bufio.NewReader(c)

	if err := sendCommand(c, "PING"); err != nil {
		return nil, err
	}
	if _, err := expectSimpleString(r); err != nil {
		return nil, fmt.Errorf("replication: PING handshake step: %w", err)
	}

	if err := sendCommand(c, "REPLCONF", "listening-port", strconv.Itoa(listenPort)); err != nil {
		return nil, err
	}
	if _, err := expectSimpleString(r); err != nil {
		return nil, fmt.Errorf("replication: REPLCONF listening-port step: %w", err)
	}

	if err := sendCommand(c, "REPLCONF", "capa", "npsync2"); err != nil {
		return nil, err
	}
	if _, err := expectSimpleString(r); err != nil {
		return nil, fmt.Errorf("replication: REPLCONF capa step: %w", err)
	}

	if err := sendCommand(c, "PSYNC", "?", "-1"); err != nil {
		return nil, err
	}
	line, err := expectSimpleString(r)
	if err != nil {
		return nil, fmt.Errorf("replication: PSYNC step: %w", err)
	}
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "FULLRESYNC" {
		return nil, fmt.Errorf("replication: unexpected PSYNC reply %q", line)
	}
	offset, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("replication: bad PSYNC offset in %q", line)
	}

	rdb, err := readFileBlob(r)
	if err != nil {
		return nil, fmt.Errorf("replication: reading FULLRESYNC payload: %w", err)
	}

	return &HandshakeResult{ReplID: fields[1], Offset: offset, RDB: rdb, Reader: r}, nil
}

func sendCommand(c net.Conn, args ...string) error {
	vals := make([]protocol.Value, len(args))
	for i, a := range args {
		vals[i] = protocol.Bulk(a)
	}
	_, err := c.Write(protocol.Encode(protocol.Array(vals...)))
	return err
}

// expectSimpleString reads one line and requires it begin with '+',
// returning the text after the tag.
func expectSimpleString(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "+") {
		return "", fmt.Errorf("expected simple string, got %q", line)
	}
	return line[1:], nil
}

// readFileBlob reads the "$N\r\n<N raw bytes>" FULLRESYNC payload form,
// which — unlike an ordinary bulk string — has no trailing CRLF.
func readFileBlob(r *bufio.Reader) ([]byte, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	header = strings.TrimRight(header, "\r\n")
	if !strings.HasPrefix(header, "$") {
		return nil, fmt.Errorf("expected file blob header, got %q", header)
	}
	n, err := strconv.Atoi(header[1:])
	if err != nil {
		return nil, fmt.Errorf("bad file blob length in %q", header)
	}
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// FullresyncReply builds the master's reply to PSYNC: a simple-string
// "+FULLRESYNC <replid> <offset>\r\n" followed by the RDB file blob.
func FullresyncReply(replID string, offset int64, rdb []byte) []byte {
	out := protocol.Encode(protocol.SimpleString(fmt.Sprintf("FULLRESYNC %s %d", replID, offset)))
	out = append(out, protocol.EncodeFileBlob(rdb)...)
	return out
}
