package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(fp, []byte(`{"dir":"/var/memnode","port":7000,"autosave":"5m"}`), 0o644))

	Keys = Config{DBFilename: "dump.rdb", Port: 6379, MaxConnsPerSec: 100}
	Init(fp)

	assert.Equal(t, "/var/memnode", Keys.Dir)
	assert.Equal(t, 7000, Keys.Port)
	assert.Equal(t, "5m", Keys.Autosave)
	assert.Equal(t, "dump.rdb", Keys.DBFilename)
}

func TestInitMissingConfigFileKeepsDefaults(t *testing.T) {
	Keys = Config{DBFilename: "dump.rdb", Port: 6379, MaxConnsPerSec: 100}
	Init(filepath.Join(t.TempDir(), "does-not-exist.json"))

	assert.Equal(t, 6379, Keys.Port)
	assert.Equal(t, "dump.rdb", Keys.DBFilename)
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	// cclog.Fatalf exits the process on a schema violation, matching the
	// teacher's own config.Validate — so only the accepting path is
	// exercised here rather than a subprocess harness for the failure path.
	Validate(configSchema, []byte(`{"dir":"/var/memnode","port":6379,"max-conns-per-sec":50}`))
}
