// README: Best-effort publication of committed booking events (Kafka, push notifications).
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Sagnify/ambulance-booking/internal/logger"
)

// Publisher receives events after the owning write has committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// MultiPublisher fans out to every publisher and joins their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes one JSON message per event, keyed by booking ID.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(w *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

type eventMessage struct {
	BookingID  string    `json:"booking_id"`
	HospitalID string    `json:"hospital_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ActorType  string    `json:"actor_type"`
	ActorID    string    `json:"actor_id,omitempty"`
	DriverID   string    `json:"driver_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg := eventMessage{
		BookingID:  string(e.BookingID),
		HospitalID: string(e.HospitalID),
		From:       string(e.FromStatus),
		To:         string(e.ToStatus),
		ActorType:  string(e.ActorType),
		Reason:     e.Reason,
		At:         e.CreatedAt,
	}
	if e.ActorID != nil {
		msg.ActorID = string(*e.ActorID)
	}
	if e.DriverID != nil {
		msg.DriverID = string(*e.DriverID)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.BookingID), Value: b})
}

const publishTimeout = 2 * time.Second

func publish(ctx context.Context, p Publisher, log logger.Logger, e Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, e); err != nil {
		log.Warn("booking event publish failed", "booking_id", e.BookingID, "to", e.ToStatus, "error", err)
	}
}
