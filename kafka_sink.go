package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	kafka "github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// pipelineEnvelope is the shape records have after the cluster log collector
// has processed them: the original record serialized into the message field,
// with a handful of collector fields hoisted alongside it. Publishing this
// shape lets the generator stand in for the whole collection pipeline when
// pointed straight at the ingestion topic.
type pipelineEnvelope struct {
	Message     string         `json:"message"`
	AtTimestamp string         `json:"@timestamp"`
	Level       string         `json:"level"`
	Kubernetes  KubernetesInfo `json:"kubernetes"`
	Host        string         `json:"host"`
	Stream      string         `json:"stream"`
	Tag         string         `json:"tag"`
	SourceType  string         `json:"source_type"`
}

// A KafkaSink publishes records to the ingestion topic the alert engine
// consumes from, one message per record.
type KafkaSink struct {
	Brokers []string
	Topic   string

	writer *kafka.Writer
}

// NewKafkaSink probes the first broker and returns a configured sink. An
// unreachable broker fails here, at startup, rather than on the first record.
func NewKafkaSink(brokers []string, topic string, dialTimeout time.Duration) (*KafkaSink, error) {
	dialer := &kafka.Dialer{Timeout: dialTimeout}
	conn, err := dialer.Dial("tcp", brokers[0])
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka at %s: %w", brokers[0], err)
	}
	_ = conn.Close()

	log.Infof("Connected to Kafka at %s", strings.Join(brokers, ","))

	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},

		// One record per message, no client-side batching. Burst pacing is
		// the generator's job and the consumer sees records as they happen.
		BatchSize:              1,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &KafkaSink{
		Brokers: brokers,
		Topic:   topic,
		writer:  writer,
	}, nil
}

// Publish wraps the record in the collector envelope and sends it, keyed so
// that one service's records at one level land on the same partition.
func (s *KafkaSink) Publish(entry *LogEntry) error {
	envelope, err := envelopeFor(entry)
	if err != nil {
		return err
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	err = s.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(envelopeKey(entry)),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", s.Topic, err)
	}

	return nil
}

// Close flushes anything pending and shuts down the writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// envelopeFor builds the collector envelope around a record. Levels are
// lower-cased in the envelope but left alone inside the serialized record,
// matching what the real collector emits.
func envelopeFor(entry *LogEntry) (*pipelineEnvelope, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	timestamp := entry.AtTimestamp
	if timestamp == "" {
		timestamp = utcTimestamp()
	}

	host := entry.Host
	if host == "" {
		host = "unknown"
	}

	return &pipelineEnvelope{
		Message:     string(data),
		AtTimestamp: timestamp,
		Level:       strings.ToLower(entry.Level),
		Kubernetes:  entry.Kubernetes,
		Host:        host,
		Stream:      "stdout",
		Tag:         "kubernetes.var.log.containers",
		SourceType:  "kubernetes_logs",
	}, nil
}

// envelopeKey builds the partition key, service plus the record's own level
func envelopeKey(entry *LogEntry) string {
	return fmt.Sprintf("%s-%s", entry.Service, entry.Level)
}
