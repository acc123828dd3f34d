package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger/log"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/util"
)

// Publisher sends chat events to the chat events topic.
type Publisher interface {
	Publish(ctx context.Context, event models.ChatEvent) error
	Close() error
}

type Config struct {
	Enabled  bool
	Brokers  []string
	Topic    string
	ClientID string
	Timeout  time.Duration
}

// NewPublisher returns a sarama backed publisher, or a no-op one when
// publishing is disabled.
func NewPublisher(cfg Config) (Publisher, error) {
	if !cfg.Enabled {
		return &noopPublisher{}, nil
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher needs brokers and a topic")
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("new sync producer: %w", err)
	}
	return newPublisher(producer, cfg.Topic)
}

func newSaramaConfig(cfg Config) *sarama.Config {
	conf := sarama.NewConfig()
	if cfg.ClientID != "" {
		conf.ClientID = cfg.ClientID
	}
	if cfg.Timeout > 0 {
		conf.Producer.Timeout = cfg.Timeout
	}
	conf.Producer.RequiredAcks = sarama.WaitForLocal
	conf.Producer.Retry.Max = 3
	conf.Producer.Return.Successes = true
	conf.Producer.Partitioner = sarama.NewHashPartitioner
	return conf
}

type saramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	metrics  *prometheus.HistogramVec
}

func newPublisher(producer sarama.SyncProducer, topic string) (*saramaPublisher, error) {
	metrics, err := util.GetHistogramVec("kafka_messages_produced", "status", "topic", "type")
	if err != nil {
		return nil, fmt.Errorf("get histogram vec: %w", err)
	}
	return &saramaPublisher{
		producer: producer,
		topic:    topic,
		metrics:  metrics,
	}, nil
}

func (p *saramaPublisher) Publish(ctx context.Context, event models.ChatEvent) error {
	start := time.Now()
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.Key()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}
	partition, offset, err := p.producer.SendMessage(msg)

	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.WithLabelValues(status, p.topic, event.Type).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("send %s: %w", event.Type, err)
	}

	log.Debugw(ctx, "chat event published",
		"type", event.Type,
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

func (p *saramaPublisher) Close() error {
	return p.producer.Close()
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, models.ChatEvent) error { return nil }
func (noopPublisher) Close() error                                    { return nil }
