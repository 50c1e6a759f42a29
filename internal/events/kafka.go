package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaEmitter writes events to a single topic, keyed by appointment id
// so that events for one appointment stay ordered within a partition.
type KafkaEmitter struct {
	writer *kafka.Writer
}

func NewKafkaEmitter(brokers, topic string) *KafkaEmitter {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      SplitBrokers(brokers),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	})
	return &KafkaEmitter{writer: w}
}

func (e *KafkaEmitter) Emit(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}

	key := ev.ID.String()
	if ev.AppointmentID != nil {
		key = ev.AppointmentID.String()
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID.String())},
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s: %w", ev.Type, err)
	}
	return nil
}

func (e *KafkaEmitter) Close() error {
	return e.writer.Close()
}

// ReadyCheck dials the first broker, for readiness probes.
func ReadyCheck(brokers string) func(context.Context) error {
	return func(ctx context.Context) error {
		list := SplitBrokers(brokers)
		if len(list) == 0 {
			return fmt.Errorf("kafka brokers not configured")
		}
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", list[0])
		if err != nil {
			return err
		}
		_ = conn.Close()
		return nil
	}
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
