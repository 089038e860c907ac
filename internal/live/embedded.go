package live

import (
	"errors"
	"time"

	natssrv "github.com/nats-io/nats-server/v2/server"
)

// EmbeddedOptions configures an in-process NATS server.
type EmbeddedOptions struct {
	Host string
	// Port to listen on; -1 picks a free port.
	Port         int
	ReadyTimeout time.Duration
}

// RunEmbeddedNATS starts a NATS server in-process and waits until it accepts
// connections. Callers own Shutdown.
func RunEmbeddedNATS(opts EmbeddedOptions) (*natssrv.Server, error) {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Second
	}
	s, err := natssrv.NewServer(&natssrv.Options{
		Host:   opts.Host,
		Port:   opts.Port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, err
	}
	go s.Start()
	if !s.ReadyForConnections(opts.ReadyTimeout) {
		s.Shutdown()
		return nil, errors.New("live: embedded nats server not ready")
	}
	return s, nil
}
