package templates

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/playforge/warehouse/internal/ports"
)

// Provider resolves templates from a YAML seed file first, then from the
// durable store. The file layer exists so designers can ship template changes
// without a deploy; it is hot-reloaded by Watch.
type Provider struct {
	store ports.TemplateProvider

	mu   sync.RWMutex
	file map[string]*ports.Template

	log *slog.Logger
}

// NewProvider wraps the durable template store. store may be nil in tests.
func NewProvider(store ports.TemplateProvider, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{store: store, file: map[string]*ports.Template{}, log: log}
}

func fileKey(gameID, branch, elementID string) string {
	return gameID + ":" + branch + ":" + elementID
}

func (p *Provider) Template(ctx context.Context, gameID, branch, elementID string) (*ports.Template, error) {
	p.mu.RLock()
	t, ok := p.file[fileKey(gameID, branch, elementID)]
	p.mu.RUnlock()
	if ok {
		return t, nil
	}
	if p.store == nil {
		return nil, ports.ErrNotFound
	}
	return p.store.Template(ctx, gameID, branch, elementID)
}

type seedFile struct {
	Templates []seedTemplate `yaml:"templates"`
}

type seedTemplate struct {
	Game       string   `yaml:"game"`
	Branch     string   `yaml:"branch"`
	ID         string   `yaml:"id"`
	Kind       string   `yaml:"kind"`
	ValueKind  string   `yaml:"value_kind"`
	Default    any      `yaml:"default"`
	RangeMin   *float64 `yaml:"range_min"`
	RangeMax   *float64 `yaml:"range_max"`
	Method     string   `yaml:"method"`
	WindowDays int      `yaml:"window_days"`
}

func (s *seedTemplate) toDomain() (*ports.Template, error) {
	t := &ports.Template{
		ID:         s.ID,
		Kind:       ports.TemplateKind(s.Kind),
		ValueKind:  ports.ValueKind(s.ValueKind),
		RangeMin:   s.RangeMin,
		RangeMax:   s.RangeMax,
		Method:     ports.AggregateMethod(s.Method),
		WindowDays: s.WindowDays,
	}
	def, err := coerce(t.ValueKind, s.Default)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", s.ID, err)
	}
	t.Default = def
	return t, nil
}

func coerce(kind ports.ValueKind, raw any) (ports.Value, error) {
	if raw == nil {
		return ports.Value{Kind: kind}, nil
	}
	switch kind {
	case ports.KindInt:
		switch v := raw.(type) {
		case int:
			return ports.IntValue(int64(v)), nil
		case int64:
			return ports.IntValue(v), nil
		case float64:
			return ports.IntValue(int64(v)), nil
		}
	case ports.KindFloat:
		switch v := raw.(type) {
		case float64:
			return ports.FloatValue(v), nil
		case int:
			return ports.FloatValue(float64(v)), nil
		}
	case ports.KindString:
		if v, ok := raw.(string); ok {
			return ports.StringValue(v), nil
		}
	case ports.KindBool:
		if v, ok := raw.(bool); ok {
			return ports.BoolValue(v), nil
		}
	case ports.KindDate:
		if v, ok := raw.(string); ok {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return ports.Value{}, err
			}
			return ports.DateValue(t), nil
		}
		if v, ok := raw.(time.Time); ok {
			return ports.DateValue(v), nil
		}
	}
	return ports.Value{}, fmt.Errorf("default %v does not match kind %s", raw, kind)
}

// LoadFile replaces the file layer from the YAML seed at path.
func (p *Provider) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var sf seedFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	next := make(map[string]*ports.Template, len(sf.Templates))
	for i := range sf.Templates {
		s := &sf.Templates[i]
		t, err := s.toDomain()
		if err != nil {
			return err
		}
		next[fileKey(s.Game, s.Branch, s.ID)] = t
	}
	p.mu.Lock()
	p.file = next
	p.mu.Unlock()
	p.log.Info("templates loaded", "path", path, "count", len(next))
	return nil
}

var _ ports.TemplateProvider = (*Provider)(nil)
