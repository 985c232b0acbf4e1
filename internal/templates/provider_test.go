package templates

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/playforge/warehouse/internal/ports"
)

const seed = `
templates:
  - game: g1
    branch: main
    id: gold
    kind: statistic
    value_kind: int
    default: 10
    range_min: 0
    range_max: 100
  - game: g1
    branch: main
    id: last_login
    kind: analytic
    value_kind: date
    method: latest
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type staticStore struct{ t *ports.Template }

func (s staticStore) Template(ctx context.Context, gameID, branch, elementID string) (*ports.Template, error) {
	if s.t != nil && s.t.ID == elementID {
		return s.t, nil
	}
	return nil, ports.ErrNotFound
}

func TestLoadFileSeedsTemplates(t *testing.T) {
	p := NewProvider(nil, nil)
	if err := p.LoadFile(writeSeed(t, seed)); err != nil {
		t.Fatal(err)
	}

	got, err := p.Template(context.Background(), "g1", "main", "gold")
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != ports.TemplateStatistic || got.ValueKind != ports.KindInt {
		t.Fatalf("template: %+v", got)
	}
	if got.Default.Int != 10 || *got.RangeMin != 0 || *got.RangeMax != 100 {
		t.Fatalf("default/range: %+v", got)
	}

	if _, err := p.Template(context.Background(), "g1", "main", "missing"); err != ports.ErrNotFound {
		t.Fatalf("missing: %v", err)
	}
}

func TestFileLayerShadowsStore(t *testing.T) {
	stored := &ports.Template{ID: "gold", Kind: ports.TemplateStatistic, ValueKind: ports.KindFloat}
	p := NewProvider(staticStore{t: stored}, nil)
	if err := p.LoadFile(writeSeed(t, seed)); err != nil {
		t.Fatal(err)
	}

	got, err := p.Template(context.Background(), "g1", "main", "gold")
	if err != nil {
		t.Fatal(err)
	}
	if got.ValueKind != ports.KindInt {
		t.Fatalf("file layer should win: %+v", got)
	}

	// Unknown to the file layer, known to the store.
	other := &ports.Template{ID: "xp", Kind: ports.TemplateStatistic, ValueKind: ports.KindInt}
	p2 := NewProvider(staticStore{t: other}, nil)
	got, err = p2.Template(context.Background(), "g1", "main", "xp")
	if err != nil || got.ID != "xp" {
		t.Fatalf("store fallback: %+v %v", got, err)
	}
}

func TestLoadFileRejectsMismatchedDefault(t *testing.T) {
	bad := `
templates:
  - game: g1
    branch: main
    id: broken
    kind: statistic
    value_kind: int
    default: "not a number"
`
	p := NewProvider(nil, nil)
	if err := p.LoadFile(writeSeed(t, bad)); err == nil {
		t.Fatal("expected error")
	}
}
