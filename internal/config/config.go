// Package config loads memnoded's server configuration. Precedence, highest
// first: CLI flags (applied by the caller), an optional JSON config file,
// MEMNODE_* environment variables, an optional .env file, then defaults.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/joho/godotenv"
)

// Config holds every tunable memnoded accepts. Zero values are filled in
// by the defaults in Keys before Init runs.
type Config struct {
	Dir        string `json:"dir"`
	DBFilename string `json:"dbfilename"`
	Port       int    `json:"port"`
	ReplicaOf  string `json:"replicaof"`

	Autosave       string  `json:"autosave"`
	BackupBucket   string  `json:"backup-bucket"`
	BackupEndpoint string  `json:"backup-endpoint"`
	MetricsAddr    string  `json:"metrics-addr"`
	NatsURL        string  `json:"nats-url"`
	MaxConnsPerSec float64 `json:"max-conns-per-sec"`
}

// Keys is the global configuration instance, seeded with defaults and
// overwritten by Init in precedence order.
var Keys = Config{
	DBFilename:     "dump.rdb",
	Port:           6379,
	MaxConnsPerSec: 100,
}

// envOverrides maps MEMNODE_* environment variables onto Keys fields.
// Checked after .env is loaded and before an optional --config file, so a
// config file still wins over the environment.
func envOverrides() {
	if v := os.Getenv("MEMNODE_DIR"); v != "" {
		Keys.Dir = v
	}
	if v := os.Getenv("MEMNODE_DBFILENAME"); v != "" {
		Keys.DBFilename = v
	}
	if v := os.Getenv("MEMNODE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			Keys.Port = p
		} else {
			cclog.Warnf("config: ignoring malformed MEMNODE_PORT=%q", v)
		}
	}
	if v := os.Getenv("MEMNODE_REPLICAOF"); v != "" {
		Keys.ReplicaOf = v
	}
	if v := os.Getenv("MEMNODE_AUTOSAVE"); v != "" {
		Keys.Autosave = v
	}
	if v := os.Getenv("MEMNODE_BACKUP_BUCKET"); v != "" {
		Keys.BackupBucket = v
	}
	if v := os.Getenv("MEMNODE_BACKUP_ENDPOINT"); v != "" {
		Keys.BackupEndpoint = v
	}
	if v := os.Getenv("MEMNODE_METRICS_ADDR"); v != "" {
		Keys.MetricsAddr = v
	}
	if v := os.Getenv("MEMNODE_NATS_URL"); v != "" {
		Keys.NatsURL = v
	}
	if v := os.Getenv("MEMNODE_MAX_CONNS_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			Keys.MaxConnsPerSec = f
		} else {
			cclog.Warnf("config: ignoring malformed MEMNODE_MAX_CONNS_PER_SEC=%q", v)
		}
	}
}

// Init loads ./.env if present, applies MEMNODE_* environment overrides,
// and — if configFile is non-empty and exists — decodes and schema-validates
// a JSON config file on top. Flags are applied by the caller afterwards,
// since they take final precedence.
func Init(configFile string) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		cclog.Fatalf("config: parsing .env failed: %s", err.Error())
	}
	envOverrides()

	if configFile == "" {
		return
	}
	raw, err := os.ReadFile(configFile)
	if err != nil {
		if !os.IsNotExist(err) {
			cclog.Fatalf("config: reading %s failed: %s", configFile, err.Error())
		}
		return
	}

	Validate(configSchema, raw)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		cclog.Fatalf("config: decoding %s failed: %s", configFile, err.Error())
	}
}
