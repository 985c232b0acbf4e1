package mq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// kafkaPublisher keeps one writer per topic. Writers are safe for concurrent
// use; creation is the only guarded path.
type kafkaPublisher struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafka builds a kafka-backed publisher.
func NewKafka(brokers []string) *kafkaPublisher {
	return &kafkaPublisher{brokers: brokers, writers: map[string]*kafka.Writer{}}
}

func (p *kafkaPublisher) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	p.writers[topic] = w
	return w
}

func (p *kafkaPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.writer(topic).WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

func (p *kafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	for _, w := range p.writers {
		if e := w.Close(); e != nil {
			err = e
		}
	}
	p.writers = map[string]*kafka.Writer{}
	return err
}
