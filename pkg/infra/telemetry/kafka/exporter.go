package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/mitchellh/mapstructure"

	"github.com/sentinelsec/sentinel-core/pkg/domain/finding"
)

const (
	ExporterName = "kafka"
)

type Config struct {
	BootstrapServers string `mapstructure:"bootstrap_servers"`
	Topic            string `mapstructure:"topic"`
}

type Exporter struct {
	cfg      Config
	producer *kafka.Producer
}

// NewExporterFromSettings builds the exporter from the raw settings map
// carried by the telemetry config section.
func NewExporterFromSettings(settings map[string]interface{}) (*Exporter, error) {
	var cfg Config
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}
	return NewExporter(cfg)
}

func NewExporter(cfg Config) (*Exporter, error) {
	if cfg.BootstrapServers == "" {
		return nil, errors.New("kafka bootstrap servers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.BootstrapServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return &Exporter{
		cfg:      cfg,
		producer: producer,
	}, nil
}

func (e *Exporter) Name() string {
	return ExporterName
}

func (e *Exporter) Export(ctx context.Context, entity *finding.Finding) error {
	if e.producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal finding: %w", err)
	}
	deliveryChan := make(chan kafka.Event)

	err = e.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &e.cfg.Topic, Partition: kafka.PartitionAny},
		Value:          data,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	ev := <-deliveryChan
	m, ok := ev.(*kafka.Message)
	if !ok {
		return errors.New("unexpected kafka delivery event")
	}
	if m.TopicPartition.Error != nil {
		return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
	}

	close(deliveryChan)
	return nil
}

func (e *Exporter) Close() {
	if e.producer != nil {
		e.producer.Flush(5000)
		e.producer.Close()
	}
}
