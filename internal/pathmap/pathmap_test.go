package pathmap

import (
	"testing"

	"github.com/flowlattice/runtime/internal/activation"
)

func TestBindLookupUnbind(t *testing.T) {
	m := New()

	if _, ok := m.Lookup(1); ok {
		t.Fatal("expected lookup on empty map to miss")
	}

	m.Bind(1, activation.Path{0, 2})
	p, ok := m.Lookup(1)
	if !ok {
		t.Fatal("expected lookup to hit after Bind")
	}
	if len(p) != 2 || p[0] != 0 || p[1] != 2 {
		t.Fatalf("unexpected path: %v", p)
	}

	m.Unbind(1)
	if _, ok := m.Lookup(1); ok {
		t.Fatal("expected lookup to miss after Unbind")
	}
}

func TestBindCopiesPath(t *testing.T) {
	m := New()
	original := activation.Path{1, 2, 3}
	m.Bind(9, original)

	original[0] = 99
	got, _ := m.Lookup(9)
	if got[0] != 1 {
		t.Fatalf("expected Bind to copy the path, mutation leaked through: %v", got)
	}
}
