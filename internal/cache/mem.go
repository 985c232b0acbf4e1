package cache

import (
	"context"
	"sync"
	"time"

	"github.com/playforge/warehouse/internal/ports"
)

// MemTransport is an in-process ports.Transport for tests and dev mode. It
// honors TTLs lazily on read.
type MemTransport struct {
	mu   sync.Mutex
	kv   map[string]memValue
	sets map[string]map[string]struct{}

	// FailNext makes the next N operations return FailErr, for exercising
	// the swallow-and-log policy in tests.
	FailNext int
	FailErr  error
}

type memValue struct {
	value    string
	deadline time.Time // zero means no expiry
}

func NewMemTransport() *MemTransport {
	return &MemTransport{kv: map[string]memValue{}, sets: map[string]map[string]struct{}{}}
}

func (m *MemTransport) failing() error {
	if m.FailNext > 0 {
		m.FailNext--
		return m.FailErr
	}
	return nil
}

func (m *MemTransport) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return "", err
	}
	v, ok := m.kv[key]
	if !ok {
		return "", ports.ErrCacheMiss
	}
	if !v.deadline.IsZero() && time.Now().After(v.deadline) {
		delete(m.kv, key)
		return "", ports.ErrCacheMiss
	}
	return v.value, nil
}

func (m *MemTransport) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return err
	}
	var dl time.Time
	if ttl > 0 {
		dl = time.Now().Add(ttl)
	}
	m.kv[key] = memValue{value: value, deadline: dl}
	return nil
}

func (m *MemTransport) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return err
	}
	for _, k := range keys {
		delete(m.kv, k)
	}
	return nil
}

func (m *MemTransport) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return err
	}
	if v, ok := m.kv[key]; ok {
		v.deadline = time.Now().Add(ttl)
		m.kv[key] = v
	}
	return nil
}

func (m *MemTransport) SAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return err
	}
	s, ok := m.sets[key]
	if !ok {
		s = map[string]struct{}{}
		m.sets[key] = s
	}
	for _, mem := range members {
		s[mem] = struct{}{}
	}
	return nil
}

func (m *MemTransport) SRem(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return err
	}
	if s, ok := m.sets[key]; ok {
		for _, mem := range members {
			delete(s, mem)
		}
	}
	return nil
}

func (m *MemTransport) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return nil, err
	}
	s := m.sets[key]
	out := make([]string, 0, len(s))
	for mem := range s {
		out = append(out, mem)
	}
	return out, nil
}

func (m *MemTransport) SIsMember(ctx context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return false, err
	}
	s, ok := m.sets[key]
	if !ok {
		return false, nil
	}
	_, ok = s[member]
	return ok, nil
}

var _ ports.Transport = (*MemTransport)(nil)
