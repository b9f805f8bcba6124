package server

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/internal/tournament"
)

// SubjectPrefix starts every subject published by this server.
const SubjectPrefix = "housepoker"

type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher forwards tournament events and settled hands to NATS so
// other services can follow the game without a websocket.
//
//	housepoker.tournament.<id>.<event type>
//	housepoker.table.<table id>.hand
type NATSPublisher struct {
	nc     natsConn
	close  func()
	logger zerolog.Logger
}

// ConnectNATS dials url. Publishing never blocks on a broken link: nats
// buffers while reconnecting.
func ConnectNATS(url string, logger zerolog.Logger) (*NATSPublisher, error) {
	logger = logger.With().Str("component", "nats").Logger()
	nc, err := nats.Connect(url,
		nats.Name("housepoker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to nats at %s", url)
	}
	return &NATSPublisher{nc: nc, close: func() { _ = nc.Drain() }, logger: logger}, nil
}

func newNATSPublisher(nc natsConn, logger zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, close: func() {}, logger: logger}
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	p.close()
}

// Publish implements tournament.Publisher.
func (p *NATSPublisher) Publish(e tournament.Event) {
	p.publish(fmt.Sprintf("%s.tournament.%d.%s", SubjectPrefix, e.TournamentID, e.Type), e)
}

// PublishHand sends a settled hand. It fits table.OnHandComplete.
func (p *NATSPublisher) PublishHand(r *game.HandResult) {
	p.publish(fmt.Sprintf("%s.table.%s.hand", SubjectPrefix, r.TableID), r)
}

func (p *NATSPublisher) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Error().Err(err).Str("subject", subject).Msg("Failed to encode event")
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("Failed to publish event")
	}
}
