// Package viewportevents publishes one event per viewport request to Kafka.
package viewportevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/observability"
)

const (
	OutcomeHit        = "hit"
	OutcomeMiss       = "miss"
	OutcomeSuperseded = "superseded"
	OutcomeError      = "error"
)

type Event struct {
	TS         time.Time    `json:"ts"`
	Outcome    string       `json:"outcome"`
	Region     model.Region `json:"region"`
	RegionKey  string       `json:"region_key"`
	Cell       string       `json:"h3_cell,omitempty"`
	Houses     int          `json:"houses"`
	Ads        int          `json:"ads"`
	Generation uint64       `json:"generation"`
	DurationMs float64      `json:"duration_ms"`
}

type Publisher struct {
	topic   string
	logger  *slog.Logger
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
	errDone chan struct{}
	once    sync.Once
}

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("viewportevents: create async producer: %w", err)
	}
	return NewWithProducer(prod, topic, queueSize, logger), nil
}

// NewWithProducer wraps an existing producer; Close closes it.
func NewWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	p := &Publisher{
		topic:   topic,
		logger:  logger,
		events:  make(chan Event, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("viewportevents: marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.RegionKey),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		defer close(p.errDone)
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Warn("viewportevents: producer error", "err", err.Err, "topic", p.topic)
			}
		}
	}()

	return p
}

// Publish never blocks; when the queue is full the event is dropped and counted.
func (p *Publisher) Publish(ev Event) {
	select {
	case p.events <- ev:
	default:
		observability.IncEventsDropped()
	}
}

// Close drains queued events into the producer, then closes it. Publish must
// not be called after Close.
func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		close(p.events)
		<-p.stopped
		if cerr := p.prod.Close(); cerr != nil {
			err = fmt.Errorf("viewportevents: close producer: %w", cerr)
		}
		<-p.errDone
	})
	return err
}
