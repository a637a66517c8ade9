package replayevents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	jsoniter "github.com/json-iterator/go"
	nc "github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
	replayservice "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/application"
	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	"github.com/samfeast/RLI-RLIS-v2/config"
	"github.com/samfeast/RLI-RLIS-v2/internal/observability/attr"
)

const (
	// TopicReplaysReconciled carries one RunReport per reconciliation run.
	TopicReplaysReconciled = "replays.reconciled"
	// TopicSeriesPublished carries the SeriesSummary of a published series.
	TopicSeriesPublished = "series.published"

	metadataSubject = "subject"
	metadataGameID  = "game_id"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Publisher emits engine events as JSON watermill messages.
type Publisher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

var _ replayservice.EventPublisher = (*Publisher)(nil)

func NewPublisher(publisher message.Publisher, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{publisher: publisher, logger: logger}
}

func (p *Publisher) PublishRunReport(ctx context.Context, report *replaytypes.RunReport) error {
	return p.publish(ctx, TopicReplaysReconciled, report.GameID, report)
}

func (p *Publisher) PublishSeriesSummary(ctx context.Context, summary *replaytypes.SeriesSummary) error {
	return p.publish(ctx, TopicSeriesPublished, summary.GameID, summary)
}

func (p *Publisher) publish(ctx context.Context, topic string, gameID int64, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.SetContext(ctx)
	msg.Metadata.Set(metadataSubject, topic)
	msg.Metadata.Set(metadataGameID, fmt.Sprint(gameID))

	if err := p.publisher.Publish(topic, msg); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish event",
			attr.String("topic", topic),
			attr.GameID(gameID),
			attr.Error(err),
		)
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "Event published",
		attr.String("topic", topic),
		attr.String("message_id", msg.UUID),
		attr.GameID(gameID),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.publisher.Close()
}

// NewMessagePublisher connects to NATS when a URL is configured. Without one,
// events go to an in-process channel nobody else reads.
func NewMessagePublisher(cfg config.NATSConfig, logger *slog.Logger) (message.Publisher, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	if strings.TrimSpace(cfg.URL) == "" {
		logger.Info("No NATS URL configured, publishing events in process")
		return gochannel.NewGoChannel(gochannel.Config{}, wmLogger), nil
	}

	opts, err := natsOptions(cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := wmnats.NewPublisher(
		wmnats.PublisherConfig{
			URL:         cfg.URL,
			NatsOptions: opts,
			Marshaler:   &wmnats.NATSMarshaler{},
			JetStream:   wmnats.JetStreamConfig{Disabled: true},
		},
		wmLogger,
	)
	if err != nil {
		logger.Error("Failed to create Watermill publisher", attr.Error(err))
		return nil, fmt.Errorf("failed to create Watermill publisher: %w", err)
	}
	return publisher, nil
}

// natsOptions builds the connection options, signing the server nonce with the
// configured nkey seed when one is set.
func natsOptions(cfg config.NATSConfig) ([]nc.Option, error) {
	opts := []nc.Option{
		nc.Name("rlis"),
		nc.RetryOnFailedConnect(true),
	}

	seed := strings.TrimSpace(cfg.NKeySeed)
	if seed == "" {
		return opts, nil
	}

	kp, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS nkey seed: %w", err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive NATS public key: %w", err)
	}
	opts = append(opts, nc.Nkey(pub, kp.Sign))
	return opts, nil
}
