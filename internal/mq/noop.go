package mq

import "context"

type noopPublisher struct{}

// NewNoop returns a Publisher that drops everything; the default for dev.
func NewNoop() *noopPublisher { return &noopPublisher{} }

func (noopPublisher) Publish(ctx context.Context, topic, key string, payload any) error { return nil }
func (noopPublisher) Close() error                                                      { return nil }
