package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/google/gops/agent"

	"github.com/memnode/memnode/internal/backup"
	"github.com/memnode/memnode/internal/config"
	"github.com/memnode/memnode/internal/dispatch"
	"github.com/memnode/memnode/internal/metrics"
	"github.com/memnode/memnode/internal/replication"
	"github.com/memnode/memnode/internal/scheduler"
	"github.com/memnode/memnode/internal/snapshot"
	natsclient "github.com/memnode/memnode/pkg/nats"
)

func main() {
	var flagGops bool
	var flagConfigFile, flagDir, flagDBFilename, flagReplicaOf string
	var flagAutosave, flagBackupBucket, flagBackupEndpoint, flagMetricsAddr, flagNatsURL string
	var flagPort int
	var flagMaxConnsPerSec float64

	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.StringVar(&flagConfigFile, "config", "", "Overwrite the global config options by those in `config.json`")
	flag.StringVar(&flagDir, "dir", "", "Directory snapshots are written to and loaded from on startup")
	flag.StringVar(&flagDBFilename, "dbfilename", "", "Snapshot file name within --dir")
	flag.IntVar(&flagPort, "port", 0, "TCP port to listen on")
	flag.StringVar(&flagReplicaOf, "replicaof", "", "`host port` of the master to replicate from; empty means run as master")
	flag.StringVar(&flagAutosave, "autosave", "", "Autosave interval (Go duration, e.g. \"60s\"); empty disables autosave")
	flag.StringVar(&flagBackupBucket, "backup-bucket", "", "S3 bucket to upload snapshots to after every SAVE/autosave; empty disables backup upload")
	flag.StringVar(&flagBackupEndpoint, "backup-endpoint", "", "S3-compatible endpoint URL for --backup-bucket")
	flag.StringVar(&flagMetricsAddr, "metrics-addr", "", "Address for the admin Prometheus endpoint (e.g. \":9121\"); empty disables it")
	flag.StringVar(&flagNatsURL, "nats-url", "", "NATS server URL for cross-instance PUBLISH fan-out; empty disables it")
	flag.Float64Var(&flagMaxConnsPerSec, "max-conns-per-sec", 0, "Maximum rate of newly accepted connections")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	config.Init(flagConfigFile)
	applyFlagOverrides(flagDir, flagDBFilename, flagReplicaOf, flagAutosave,
		flagBackupBucket, flagBackupEndpoint, flagMetricsAddr, flagNatsURL,
		flagPort, flagMaxConnsPerSec)

	cfg := config.Keys
	isMaster := cfg.ReplicaOf == ""

	server := dispatch.NewServer(dispatch.Config{
		Dir:        cfg.Dir,
		DBFilename: cfg.DBFilename,
		IsMaster:   isMaster,
		ReplID:     replication.FixedReplID,
	})

	if cfg.Dir != "" {
		loadSnapshotOnStartup(server, cfg.Dir, cfg.DBFilename)
	}

	if cfg.BackupBucket != "" {
		target, err := backup.NewS3Target(context.Background(), backup.S3TargetConfig{
			Endpoint:     cfg.BackupEndpoint,
			Bucket:       cfg.BackupBucket,
			UsePathStyle: cfg.BackupEndpoint != "",
		})
		if err != nil {
			cclog.Fatalf("backup: %s", err.Error())
		}
		server.Backup = target
	}

	if cfg.NatsURL != "" {
		client, err := natsclient.NewClient(natsclient.Config{Address: cfg.NatsURL})
		if err != nil {
			cclog.Fatalf("nats: %s", err.Error())
		}
		server.Nats = client
		if err := client.Subscribe("memnode.>", func(subject string, data []byte) {
			channel := strings.TrimPrefix(subject, "memnode.")
			server.DeliverNatsMessage(channel, string(data))
		}); err != nil {
			cclog.Fatalf("nats: %s", err.Error())
		}
		defer client.Close()
	}

	if cfg.Autosave != "" {
		interval, err := time.ParseDuration(cfg.Autosave)
		if err != nil {
			cclog.Fatalf("config: invalid --autosave %q: %s", cfg.Autosave, err.Error())
		}
		if err := scheduler.Start(server, interval); err != nil {
			cclog.Fatalf("scheduler: %s", err.Error())
		}
		defer scheduler.Shutdown()
	}

	if cfg.MetricsAddr != "" {
		metricsServer, err := metrics.NewServer(cfg.MetricsAddr, statsAdapter{server})
		if err != nil {
			cclog.Fatalf("metrics: %s", err.Error())
		}
		metricsServer.Start(5 * time.Second)
	}

	runServer(server, cfg, isMaster)
}

// statsAdapter bridges dispatch.Stats to metrics.Stats: the two packages
// deliberately don't import each other, see DESIGN.md's "Domain stack
// implementation notes".
type statsAdapter struct{ s *dispatch.Server }

func (a statsAdapter) Stats() metrics.Stats {
	st := a.s.Stats()
	return metrics.Stats{
		CommandsTotal:      st.CommandsTotal,
		WriteCommandsTotal: st.WriteCommandsTotal,
		ConnectedClients:   st.ConnectedClients,
		ReplicaCount:       st.ReplicaCount,
		KeyspaceSize:       st.KeyspaceSize,
		MasterOffset:       st.MasterOffset,
	}
}

// applyFlagOverrides applies explicitly-passed flags on top of config.Keys,
// which already holds defaults < .env/MEMNODE_* env < --config file. Flags
// take final precedence, per SPEC_FULL.md §3.2.
func applyFlagOverrides(dir, dbFilename, replicaOf, autosave, backupBucket,
	backupEndpoint, metricsAddr, natsURL string, port int, maxConnsPerSec float64,
) {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["dir"] {
		config.Keys.Dir = dir
	}
	if set["dbfilename"] {
		config.Keys.DBFilename = dbFilename
	}
	if set["port"] {
		config.Keys.Port = port
	}
	if set["replicaof"] {
		config.Keys.ReplicaOf = replicaOf
	}
	if set["autosave"] {
		config.Keys.Autosave = autosave
	}
	if set["backup-bucket"] {
		config.Keys.BackupBucket = backupBucket
	}
	if set["backup-endpoint"] {
		config.Keys.BackupEndpoint = backupEndpoint
	}
	if set["metrics-addr"] {
		config.Keys.MetricsAddr = metricsAddr
	}
	if set["nats-url"] {
		config.Keys.NatsURL = natsURL
	}
	if set["max-conns-per-sec"] {
		config.Keys.MaxConnsPerSec = maxConnsPerSec
	}
}

// loadSnapshotOnStartup restores the keyspace from <dir>/<dbfilename> if it
// exists. A missing file is not an error: the first SAVE creates it.
func loadSnapshotOnStartup(server *dispatch.Server, dir, dbFilename string) {
	path := filepath.Join(dir, dbFilename)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			cclog.Warnf("startup: reading snapshot %s failed: %v", path, err)
		}
		return
	}

	entries, skipped, err := snapshot.Read(bytes.NewReader(raw))
	if err != nil {
		cclog.Warnf("startup: parsing snapshot %s failed: %v", path, err)
		return
	}
	if skipped > 0 {
		cclog.Warnf("startup: snapshot %s had %d non-string entries, which were skipped", path, skipped)
	}
	server.Keyspace.Restore(entries)
	cclog.Infof("startup: restored %d keys from %s", len(entries), path)
}
