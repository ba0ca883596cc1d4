package database

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NewNats connects to the event bus. Returns nil if natsURL is empty.
func NewNats(natsURL string) (*nats.Conn, error) {
	if natsURL == "" {
		log.Warn().Msg("NATS URL not configured, ledger events will not be published")
		return nil, nil
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("easydollars-api"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}

	log.Info().Msg("Connected to NATS")
	return nc, nil
}

// CloseNats drains pending publishes and closes the connection.
func CloseNats(nc *nats.Conn) {
	if nc == nil {
		return
	}
	if err := nc.Drain(); err != nil {
		log.Error().Err(err).Msg("Error draining NATS connection")
		nc.Close()
		return
	}
	log.Info().Msg("NATS connection closed")
}
