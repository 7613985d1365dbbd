// README: Kafka writer for the booking event stream.
package infra

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriter keys partitioning by message key so events of one booking stay ordered.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}
