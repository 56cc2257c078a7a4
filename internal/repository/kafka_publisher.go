package repository

import (
	"context"
	"fmt"

	"StratTune/internal/domain/models"
	pkgkafka "StratTune/pkg/kafka"
	applogger "StratTune/pkg/logger"
)

// KafkaPublisher exports applied changes and footprints to a Kafka topic.
// Export is fire-and-forget from the controller's point of view; publish
// errors are logged and the in-process state is unaffected.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
	l        *applogger.Logger
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) SetLogger(l *applogger.Logger) { p.l = l }

type auditEnvelope struct {
	Kind      string      `json:"kind"`
	AutoApply interface{} `json:"auto_apply,omitempty"`
	Footprint interface{} `json:"footprint,omitempty"`
}

func (p *KafkaPublisher) PublishEvent(ctx context.Context, ev *models.AutoApplyEvent) error {
	env := auditEnvelope{Kind: "auto_apply", AutoApply: ev}
	if err := p.producer.Publish(ctx, p.topic, []byte(ev.Param), env); err != nil {
		return fmt.Errorf("publish auto apply: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) PublishFootprint(ctx context.Context, f *models.Footprint) error {
	env := auditEnvelope{Kind: "footprint", Footprint: f}
	if err := p.producer.Publish(ctx, p.topic, []byte(f.Kind), env); err != nil {
		return fmt.Errorf("publish footprint: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
