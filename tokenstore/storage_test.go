package tokenstore

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStorage_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()

	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty storage error = %v, want ErrNotFound", err)
	}
	if err := m.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, err := m.Get(ctx, "k"); err != nil || v != "v" {
		t.Errorf("Get() = %q, %v; want %q, nil", v, err, "v")
	}
	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := m.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStorage_TabsShareValuesAndSkipOwnWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()
	a, b := m.Tab(), m.Tab()

	var seenByA, seenByB, seenByRoot []string
	defer a.Watch("k", func(v string) { seenByA = append(seenByA, v) })()
	defer b.Watch("k", func(v string) { seenByB = append(seenByB, v) })()
	defer m.Watch("k", func(v string) { seenByRoot = append(seenByRoot, v) })()
	defer b.Watch("other", func(string) { t.Errorf("watcher for another key fired") })()

	_ = a.Set(ctx, "k", "1")
	_ = b.Delete(ctx, "k")
	_ = m.Set(ctx, "k", "2")

	if v, _ := b.Get(ctx, "k"); v != "2" {
		t.Errorf("b.Get() = %q, want %q", v, "2")
	}

	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{"tab a", seenByA, []string{"", "2"}},
		{"tab b", seenByB, []string{"1", "2"}},
		{"root", seenByRoot, []string{"1", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.got) != len(tt.want) {
				t.Fatalf("saw %q, want %q", tt.got, tt.want)
			}
			for i := range tt.want {
				if tt.got[i] != tt.want[i] {
					t.Errorf("saw %q, want %q", tt.got, tt.want)
					break
				}
			}
		})
	}
}

func TestMemoryStorage_StopWatching(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()
	tab := m.Tab()

	calls := 0
	stop := tab.Watch("k", func(string) { calls++ })
	stop()
	stop()

	_ = m.Set(ctx, "k", "v")
	if calls != 0 {
		t.Errorf("stopped watcher called %d times", calls)
	}
}
