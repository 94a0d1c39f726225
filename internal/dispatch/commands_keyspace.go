package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/memnode/memnode/internal/protocol"
	"github.com/memnode/memnode/internal/snapshot"
)

func (s *Server) cmdKeys(args []string) protocol.Value {
	if len(args) != 2 {
		return errReply("ERR wrong number of arguments for 'keys' command")
	}
	// Pattern argument is accepted but ignored: matching is "*-only" today
	// (spec.md §9c).
	keys := s.Keyspace.Keys(args[1])
	vals := make([]protocol.Value, len(keys))
	for i, k := range keys {
		vals[i] = protocol.Bulk(k)
	}
	return protocol.Array(vals...)
}

func (s *Server) cmdType(args []string) protocol.Value {
	if len(args) != 2 {
		return errReply("ERR wrong number of arguments for 'type' command")
	}
	return protocol.SimpleString(s.Keyspace.Type(args[1]))
}

func (s *Server) cmdConfig(args []string) protocol.Value {
	if len(args) != 3 || strings.ToUpper(args[1]) != "GET" {
		return errReply("ERR syntax error")
	}
	switch strings.ToLower(args[2]) {
	case "dir":
		return protocol.Array(protocol.Bulk("dir"), protocol.Bulk(s.cfg.Dir))
	case "dbfilename":
		return protocol.Array(protocol.Bulk("dbfilename"), protocol.Bulk(s.cfg.DBFilename))
	default:
		return protocol.Array()
	}
}

// cmdSave writes a snapshot of every live string entry to <dir>/<dbfilename>
// synchronously, per spec.md §4.3/§6. SAVE is rejected when dir is unset,
// matching §6's "when dir is unset the snapshot is not read on startup and
// SAVE is rejected in that mode."
func (s *Server) cmdSave(args []string) protocol.Value {
	if len(args) != 1 {
		return errReply("ERR wrong number of arguments for 'save' command")
	}
	if err := s.saveSnapshot(); err != nil {
		cclog.Errorf("dispatch: SAVE failed: %v", err)
		return errReply("ERR SAVE failed")
	}
	return protocol.SimpleString("OK")
}

// SaveNow is the same snapshot-and-upload path as SAVE, exposed so
// internal/scheduler's autosave job can trigger it without going through
// the RESP command table. Satisfies scheduler.Saver.
func (s *Server) SaveNow() error {
	return s.saveSnapshot()
}

func (s *Server) saveSnapshot() error {
	if s.cfg.Dir == "" {
		return fmt.Errorf("dispatch: SAVE requires a configured dir")
	}

	entries := s.Keyspace.SnapshotStrings()

	var buf bytes.Buffer
	if err := snapshot.Write(&buf, entries); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	path := filepath.Join(s.cfg.Dir, s.cfg.DBFilename)
	if err := os.WriteFile(path, buf.Bytes(), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if s.Backup != nil {
		if err := s.Backup.Upload(context.Background(), s.cfg.DBFilename, buf.Bytes()); err != nil {
			cclog.Warnf("dispatch: SAVE completed locally but backup upload failed: %v", err)
		}
	}

	return nil
}
