package repository

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"EntryGate/internal/domain/models"
	"EntryGate/internal/domain/repository"
	"EntryGate/pkg/logger"
)

// keyedWriter is satisfied by *kafka.Producer.
type keyedWriter interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaDecisionPublisher sends each evaluation keyed by symbol, so one
// symbol's decisions stay ordered on one partition.
type KafkaDecisionPublisher struct {
	producer keyedWriter
	topic    string
	cb       *gobreaker.CircuitBreaker
}

func NewKafkaDecisionPublisher(producer keyedWriter, topic string, l *logger.Logger) *KafkaDecisionPublisher {
	if l == nil {
		l = logger.Nop()
	}
	return &KafkaDecisionPublisher{
		producer: producer,
		topic:    topic,
		cb:       newBreaker("kafka_decisions", 15*time.Second, l.With("decision_publisher")),
	}
}

func (p *KafkaDecisionPublisher) Publish(ctx context.Context, ev *models.Evaluation) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.producer.Publish(ctx, p.topic, []byte(ev.Symbol), ev)
	})
	return err
}

func (p *KafkaDecisionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ repository.DecisionPublisher = (*KafkaDecisionPublisher)(nil)
