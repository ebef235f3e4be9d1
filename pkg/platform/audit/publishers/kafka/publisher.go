// Package kafka streams audit and trust events to a Kafka topic with franz-go.
//
// Records are keyed by community so every event for one community lands on the
// same partition and downstream consumers see them in order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	id "trustline/pkg/domain"
	audit "trustline/pkg/platform/audit"
)

// Config holds the producer settings.
type Config struct {
	Brokers           []string
	Topic             string
	ClientID          string
	Partitions        int32
	ReplicationFactor int16
}

// Publisher implements audit.Store and audit.Emitter on a Kafka topic.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// payload is the JSON value of each record.
type payload struct {
	Category    string    `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
	CommunityID string    `json:"community_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	Action      string    `json:"action"`
	Reason      string    `json:"reason,omitempty"`
	PointsDelta int       `json:"points_delta"`
	RequestID   string    `json:"request_id,omitempty"`
}

func New(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Publisher{client: client, topic: cfg.Topic, logger: logger}, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (p *Publisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	if partitions <= 0 {
		partitions = 1
	}
	if replicationFactor <= 0 {
		replicationFactor = 1
	}
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Append produces the event synchronously.
func (p *Publisher) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	body := payload{
		Category:    string(category),
		Timestamp:   event.Timestamp,
		ActorID:     event.ActorID,
		Action:      event.Action,
		Reason:      event.Reason,
		PointsDelta: event.PointsDelta,
		RequestID:   event.RequestID,
	}
	if !event.CommunityID.IsNil() {
		body.CommunityID = event.CommunityID.String()
	}
	if !event.UserID.IsNil() {
		body.UserID = event.UserID.String()
	}
	value, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic:     p.topic,
		Key:       []byte(body.CommunityID),
		Value:     value,
		Timestamp: event.Timestamp,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "category", Value: []byte(category)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Emit stamps the event time and produces it.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.Append(ctx, event)
}

// Ping checks broker reachability. Used by the readiness probe.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Publisher) Close() {
	if err := p.client.Flush(context.Background()); err != nil {
		p.logger.Warn("failed to flush kafka producer", "error", err)
	}
	p.client.Close()
}

// Decode parses a record value produced by Append. Consumers and tests use it.
func Decode(value []byte) (audit.Event, error) {
	var body payload
	err := json.Unmarshal(value, &body)
	if err != nil {
		return audit.Event{}, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	event := audit.Event{
		Category:    audit.EventCategory(body.Category),
		Timestamp:   body.Timestamp,
		ActorID:     body.ActorID,
		Action:      body.Action,
		Reason:      body.Reason,
		PointsDelta: body.PointsDelta,
		RequestID:   body.RequestID,
	}
	if body.CommunityID != "" {
		if event.CommunityID, err = id.ParseCommunityID(body.CommunityID); err != nil {
			return audit.Event{}, fmt.Errorf("decode community id: %w", err)
		}
	}
	if body.UserID != "" {
		if event.UserID, err = id.ParseUserID(body.UserID); err != nil {
			return audit.Event{}, fmt.Errorf("decode user id: %w", err)
		}
	}
	return event, nil
}
