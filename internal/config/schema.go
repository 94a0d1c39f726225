package config

const configSchema = `{
  "type": "object",
  "description": "Configuration for memnoded.",
  "properties": {
    "dir": {
      "description": "Directory the RDB-style snapshot file is read from and written to.",
      "type": "string"
    },
    "dbfilename": {
      "description": "Snapshot file name within dir.",
      "type": "string"
    },
    "port": {
      "description": "TCP port to listen on.",
      "type": "integer"
    },
    "replicaof": {
      "description": "\"<host> <port>\" of a master to replicate from, empty to run as master.",
      "type": "string"
    },
    "autosave": {
      "description": "Duration string (e.g. \"5m\") between automatic snapshot saves, empty disables it.",
      "type": "string"
    },
    "backup-bucket": {
      "description": "S3 bucket snapshots are additionally uploaded to after a successful SAVE, empty disables it.",
      "type": "string"
    },
    "backup-endpoint": {
      "description": "Custom S3-compatible endpoint URL, empty uses the default AWS resolver.",
      "type": "string"
    },
    "metrics-addr": {
      "description": "Address the admin Prometheus metrics HTTP endpoint listens on, empty disables it.",
      "type": "string"
    },
    "nats-url": {
      "description": "NATS server URL for cross-instance PUBLISH fan-out, empty disables it.",
      "type": "string"
    },
    "max-conns-per-sec": {
      "description": "Rate limit, in new connections per second, applied to the accept loop.",
      "type": "number"
    }
  }
}`
