package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/log-monitoring/log-generator/reporter"
	limiter "github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
	log "github.com/sirupsen/logrus"
)

// A Sink is where synthesized records get published
type Sink interface {
	Publish(entry *LogEntry) error
	Close() error
}

// A StreamSink writes one JSON record per line to a writer, normally stdout,
// where the cluster log collector picks them up. Records are written and
// flushed one at a time so a consumer never waits on a partial line.
type StreamSink struct {
	encoder *json.Encoder
}

func NewStreamSink(w io.Writer) *StreamSink {
	encoder := json.NewEncoder(w)
	// Keep message text byte-for-byte instead of escaping > and & for HTML
	encoder.SetEscapeHTML(false)

	return &StreamSink{encoder: encoder}
}

// Publish writes the record as a single newline-terminated JSON object
func (s *StreamSink) Publish(entry *LogEntry) error {
	return s.encoder.Encode(entry)
}

// Close would clean up any resources if we needed to manage any
func (s *StreamSink) Close() error { return nil }

// A RateLimitedSink is a Sink that wraps another Sink, adding per-service
// rate limiting capability. Over-budget records are dropped and counted on
// the emission reporter rather than back-pressuring the generator.
type RateLimitedSink struct {
	limitStore limiter.Store
	reporter   *reporter.EmissionReporter
	sink       Sink
}

func NewRateLimitedSink(
	rptr *reporter.EmissionReporter, tokenLimit int,
	interval time.Duration, sink Sink) *RateLimitedSink {

	// Set up the rate limiter
	store, err := memorystore.New(&memorystore.Config{
		// Number of tokens allowed per interval.
		Tokens: uint64(tokenLimit),

		// Interval until tokens reset.
		Interval: interval,
	})

	if err != nil {
		log.Errorf("Unable to create memory store: %s", err)
	}

	return &RateLimitedSink{
		limitStore: store,
		reporter:   rptr,
		sink:       sink,
	}
}

// isRateLimited takes a token for the service and returns whether the
// service is over its budget.
func (s *RateLimitedSink) isRateLimited(service string) bool {
	if s.limitStore == nil {
		return false
	}

	limit, remaining, reset, ok, err := s.limitStore.Take(context.Background(), service)
	log.Debugf("Checking rate limit for %s: %d %d %d %t", service, limit, remaining, reset, ok)
	if err != nil {
		log.Warnf("Unable to fetch rate limit for %s", service)
		return true // Rate limit it since we can't track
	}

	return !ok
}

// Publish is a pass-through to the downstream Sink, but checks rate limiting
// status first
func (s *RateLimitedSink) Publish(entry *LogEntry) error {
	if !s.isRateLimited(entry.Service) {
		return s.sink.Publish(entry)
	}

	s.reporter.IncrDropped()

	return nil
}

// Close cleans up our resources on shutdown
func (s *RateLimitedSink) Close() error {
	if s.limitStore != nil {
		_ = s.limitStore.Close(context.Background())
	}

	return s.sink.Close()
}
