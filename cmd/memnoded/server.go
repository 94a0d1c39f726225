package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"golang.org/x/time/rate"

	"github.com/memnode/memnode/internal/broadcast"
	"github.com/memnode/memnode/internal/config"
	"github.com/memnode/memnode/internal/conn"
	"github.com/memnode/memnode/internal/dispatch"
	"github.com/memnode/memnode/internal/protocol"
	"github.com/memnode/memnode/internal/replication"
	"github.com/memnode/memnode/internal/snapshot"
	"github.com/memnode/memnode/internal/store"
)

const readChunkSize = 64 * 1024

// runServer listens on cfg.Port, accepts client and replica-link
// connections, drives the replica-side master link when cfg.ReplicaOf is
// set, and blocks until SIGINT/SIGTERM triggers a graceful shutdown.
func runServer(server *dispatch.Server, cfg config.Config, isMaster bool) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Port))
	if err != nil {
		cclog.Fatalf("listen on port %d: %s", cfg.Port, err.Error())
	}
	cclog.Infof("memnoded listening on port %d (master=%t)", cfg.Port, isMaster)

	var limiter *rate.Limiter
	if cfg.MaxConnsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxConnsPerSec), int(cfg.MaxConnsPerSec))
	}

	if !isMaster {
		host, port, err := splitReplicaOf(cfg.ReplicaOf)
		if err != nil {
			cclog.Fatalf("config: invalid --replicaof %q: %s", cfg.ReplicaOf, err.Error())
		}
		go runReplicaLink(server, host, port, cfg.Port)
	}

	go acceptLoop(listener, server, limiter)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	cclog.Info("memnoded: shutting down")
	listener.Close()

	if cfg.Dir != "" {
		if err := server.SaveNow(); err != nil {
			cclog.Errorf("memnoded: final SAVE on shutdown failed: %v", err)
		}
	}
}

// splitReplicaOf parses the "HOST PORT" form spec.md §6 mandates for
// --replicaof.
func splitReplicaOf(s string) (host string, port int, err error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return "", 0, strconv.ErrSyntax
	}
	port, err = strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, err
	}
	return fields[0], port, nil
}

func acceptLoop(listener net.Listener, server *dispatch.Server, limiter *rate.Limiter) {
	for {
		nc, err := listener.Accept()
		if err != nil {
			if !strings.Contains(err.Error(), "use of closed network connection") {
				cclog.Errorf("accept: %v", err)
			}
			return
		}
		if limiter != nil {
			if err := limiter.Wait(context.Background()); err != nil {
				nc.Close()
				continue
			}
		}
		go handleClientConn(nc, server)
	}
}

// connID derives a process-unique handle from the remote TCP port, per
// conn.Conn's doc comment.
func connID(nc net.Conn) int {
	if addr, ok := nc.RemoteAddr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return int(time.Now().UnixNano() & 0x7fffffff)
}

// handleClientConn serves one accepted connection until it closes. The
// connection starts as a plain client and may be promoted to a replica
// link mid-stream by REPLCONF/PSYNC (internal/dispatch/commands_replication.go
// flips conn.Conn.Role); once that happens the same Out channel this
// function's writer goroutine drains also carries forwarded write frames
// published by broadcastWrite, via a hub subscriber started at promotion.
//
// c.Out is never closed: other goroutines (deliverToConn, the replica-link
// forwarder) can still hold a reference to c and send to it after this
// function has stopped reading its own socket, between DeregisterConn and
// their next lookup noticing c is gone. The writer goroutine instead stops
// on a private done signal, so those late sends just land in c.Out's buffer
// (or get dropped once it's full) instead of panicking on a closed channel.
func handleClientConn(nc net.Conn, server *dispatch.Server) {
	c := conn.New(connID(nc))
	server.RegisterConn(c)
	defer server.DeregisterConn(c)
	defer nc.Close()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case frame := <-c.Out:
				if _, err := nc.Write(frame); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	var stopForwarding func()
	promoted := false
	buf := make([]byte, 0, readChunkSize)
	tmp := make([]byte, readChunkSize)
	for {
		n, err := nc.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}

		cmds, consumed, derr := protocol.DecodeBatch(buf)
		buf = buf[consumed:]
		if derr != nil {
			cclog.Warnf("conn %d: protocol error: %v", c.ID, derr)
			break
		}

		for _, cmd := range cmds {
			reply := server.Dispatch(context.Background(), c, cmd.Args)
			if reply.Kind != protocol.KindNoReply {
				c.Out <- protocol.Encode(reply)
			}
		}

		if !promoted && c.Role == conn.RoleReplicaLink {
			promoted = true
			stopForwarding = forwardWritesTo(server, c)
		}
	}

	if stopForwarding != nil {
		stopForwarding()
	}
	close(done)
	wg.Wait()
}

// forwardWritesTo subscribes to the broadcast hub and relays KindWrite
// frames (and nothing else) to c.Out verbatim, per spec.md §4.5: once a
// connection is a replica link, every subsequent master write reaches it
// through the hub rather than through Dispatch's own reply.
func forwardWritesTo(server *dispatch.Server, c *conn.Conn) (stop func()) {
	id, ch := server.Hub.Subscribe()
	go func() {
		for msg := range ch {
			if msg.Kind != broadcast.KindWrite {
				continue
			}
			select {
			case c.Out <- msg.Frame:
			default:
				cclog.Warnf("conn %d: dropping replication frame, queue full", c.ID)
			}
		}
	}()
	return func() { server.Hub.Unsubscribe(id) }
}

// runReplicaLink dials the master, performs the handshake, applies the
// initial RDB payload, and then applies every subsequent write frame the
// master forwards, forever (reconnecting on error after a short delay).
func runReplicaLink(server *dispatch.Server, host string, port int, listenPort int) {
	for {
		if err := replicaLinkOnce(server, host, port, listenPort); err != nil {
			cclog.Errorf("replica link to %s:%d: %v", host, port, err)
		}
		time.Sleep(time.Second)
	}
}

func replicaLinkOnce(server *dispatch.Server, host string, port int, listenPort int) error {
	nc, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	defer nc.Close()

	result, err := replication.Handshake(nc, listenPort)
	if err != nil {
		return err
	}

	entries, skipped, err := decodeRDB(result.RDB)
	if err != nil {
		cclog.Warnf("replica link: decoding initial RDB failed: %v", err)
	} else {
		if skipped > 0 {
			cclog.Warnf("replica link: initial RDB had %d non-string entries, skipped", skipped)
		}
		server.Keyspace.Restore(entries)
	}
	cclog.Infof("replica link: synced with master, replid=%s offset=%d", result.ReplID, result.Offset)

	c := conn.New(connID(nc))
	c.Role = conn.RoleMasterLink

	return applyMasterStream(server, c, nc, result.Reader)
}

// applyMasterStream reads commands the master forwards and applies them via
// Dispatch, discarding ordinary replies: a master link is silent except for
// REPLCONF GETACK, whose REPLCONF ACK reply must be written back to the
// master over the same connection. c.BytesProcessed is advanced after each
// frame is dispatched, so a GETACK arriving mid-frame reports the offset as
// of immediately before that frame, per spec.md §4.5's footnote.
func applyMasterStream(server *dispatch.Server, c *conn.Conn, nc net.Conn, r *bufio.Reader) error {
	buf := make([]byte, 0, readChunkSize)
	tmp := make([]byte, readChunkSize)
	for {
		n, err := r.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		cmds, consumed, derr := protocol.DecodeBatch(buf)
		buf = buf[consumed:]
		if derr != nil {
			return derr
		}

		for _, cmd := range cmds {
			if len(cmd.Args) == 0 {
				c.BytesProcessed += int64(cmd.Consumed)
				continue
			}
			name := strings.ToUpper(cmd.Args[0])
			reply := server.Dispatch(context.Background(), c, cmd.Args)
			c.BytesProcessed += int64(cmd.Consumed)

			if name == "REPLCONF" && reply.Kind != protocol.KindNoReply {
				if _, err := nc.Write(protocol.Encode(reply)); err != nil {
					return err
				}
			}
		}
	}
}

func decodeRDB(rdb []byte) (map[string]store.Entry, int, error) {
	return snapshot.Read(bytes.NewReader(rdb))
}
