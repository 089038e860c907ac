package config

import (
	"os"
	"strconv"
)

// FromEnv overlays REMQ_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	setString(&cfg.Namespace, "REMQ_NAMESPACE")
	setString(&cfg.NamespaceNameRegex, "REMQ_NAMESPACE_NAME_REGEX")
	setString(&cfg.DataDir, "REMQ_DATA_DIR")
	setString(&cfg.Fsync, "REMQ_FSYNC")
	setInt(&cfg.FsyncIntervalMs, "REMQ_FSYNC_INTERVAL_MS")
	setString(&cfg.GRPCAddr, "REMQ_GRPC_ADDR")
	setString(&cfg.HTTPAddr, "REMQ_HTTP_ADDR")
	setString(&cfg.NATSURL, "REMQ_NATS_URL")
	setInt(&cfg.EmbeddedNATSPort, "REMQ_EMBEDDED_NATS_PORT")
	setInt(&cfg.Subscribe.PageLimit, "REMQ_SUBSCRIBE_PAGE_LIMIT")
	setInt(&cfg.Subscribe.PollIntervalMs, "REMQ_SUBSCRIBE_POLL_INTERVAL_MS")
	setInt(&cfg.Subscribe.MaxBuffer, "REMQ_SUBSCRIBE_MAX_BUFFER")
	setInt(&cfg.Subscribe.BufferTimeoutMs, "REMQ_SUBSCRIBE_BUFFER_TIMEOUT_MS")
	setInt(&cfg.ConsumeLimit, "REMQ_CONSUME_LIMIT")
	setString(&cfg.Log.Level, "REMQ_LOG_LEVEL")
	setString(&cfg.Log.Format, "REMQ_LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setInt ignores values that do not parse.
func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
