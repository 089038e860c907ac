package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"unicode/utf8"

	cfgpkg "github.com/kainosnoema/remq/internal/config"
	"github.com/kainosnoema/remq/internal/live"
	"github.com/kainosnoema/remq/internal/rpc"
	logpkg "github.com/kainosnoema/remq/pkg/log"
	"github.com/kainosnoema/remq/pkg/message"
	"github.com/kainosnoema/remq/pkg/remq"
	"github.com/spf13/cobra"
)

const (
	defaultGRPCAddr  = "127.0.0.1:7070"
	defaultNamespace = "default"
)

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// connection holds the endpoints shared by every client command.
type connection struct {
	grpcAddr  string
	natsURL   string
	namespace string
}

func (c *connection) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&c.grpcAddr, "grpc", envDefault("REMQ_GRPC", defaultGRPCAddr), "store gRPC address (env REMQ_GRPC)")
	f.StringVar(&c.natsURL, "nats", os.Getenv("REMQ_NATS_URL"), "NATS URL for live delivery; empty to poll (env REMQ_NATS_URL)")
	f.StringVar(&c.namespace, "namespace", envDefault("REMQ_NAMESPACE", defaultNamespace), "namespace the store serves (env REMQ_NAMESPACE)")
}

// withClient builds a remq.Client over the store, and over NATS when a URL
// is set, and releases everything after fn returns.
func (c *connection) withClient(fn func(*remq.Client) error) error {
	store, err := rpc.Dial(c.grpcAddr)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var lc remq.LiveChannel
	if c.natsURL != "" && c.natsURL != cfgpkg.EmbeddedNATS {
		n, err := live.ConnectNATS(live.NATSOptions{URL: c.natsURL, Namespace: c.namespace, Name: "remq-cli"})
		if err != nil {
			return err
		}
		defer func() { _ = n.Close() }()
		lc = n
	}

	level, err := logpkg.ParseLevel(envDefault("REMQ_LOG_LEVEL", "warn"))
	if err != nil {
		level = logpkg.WarnLevel
	}
	client, err := remq.New(store, lc, remq.Options{
		Logger: logpkg.NewLogger(logpkg.WithLevel(level), logpkg.WithFormatter(&logpkg.TextFormatter{})),
	})
	if err != nil {
		return err
	}
	defer func() { _ = client.Close(context.Background()) }()
	return fn(client)
}

// decodedMessage returns a map with id, channel and one of payload_json,
// payload_text, or payload_b64.
func decodedMessage(m message.Message) map[string]any {
	out := map[string]any{
		"id":      m.ID,
		"channel": m.Channel,
	}
	payload := m.Body
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}
