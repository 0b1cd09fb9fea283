package publish

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/festival-radar/backend/internal/models"
)

// MessageWriter is implemented by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Kafka announces new event sets on a topic, keyed by run id.
type Kafka struct {
	writer MessageWriter
}

func NewKafka(writer MessageWriter) *Kafka {
	return &Kafka{writer: writer}
}

// NewKafkaWriter builds the notice writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
	}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Publish(ctx context.Context, set *models.EventSet) error {
	payload, err := json.Marshal(NewNotice(set))
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(set.RunID),
		Value: payload,
		Time:  set.GeneratedAt,
	})
}

// SubjectPublisher is implemented by *nats.Conn.
type SubjectPublisher interface {
	Publish(subject string, data []byte) error
}

// NATS announces new event sets on a subject.
type NATS struct {
	conn    SubjectPublisher
	subject string
}

func NewNATS(conn SubjectPublisher, subject string) *NATS {
	return &NATS{conn: conn, subject: subject}
}

// ConnectNATS dials url with unlimited reconnects.
func ConnectNATS(url string, opts ...nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name("festival-worker"),
		nats.MaxReconnects(-1),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Publish(ctx context.Context, set *models.EventSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(NewNotice(set))
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	return n.conn.Publish(n.subject, payload)
}
