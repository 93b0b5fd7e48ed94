package cache

import (
	"context"
	"testing"
	"time"

	"github.com/use-agent/skimmer/models"
)

func TestKeyIsStablePerURLAndMode(t *testing.T) {
	a := Key("https://example.com/page", models.ModeArticle)
	b := Key("https://example.com/page", models.ModeArticle)
	if a != b {
		t.Fatal("same inputs produced different keys")
	}

	if Key("https://example.com/page", models.ModeFull) == a {
		t.Error("different modes produced the same key")
	}
	if Key("https://example.com/other", models.ModeArticle) == a {
		t.Error("different URLs produced the same key")
	}
}

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory(10)
	defer m.Stop()
	ctx := context.Background()

	doc := &models.Document{URL: "https://example.com/", Title: "Cached"}
	key := Key(doc.URL, models.ModeArticle)

	if _, ok := m.Get(ctx, key, time.Minute); ok {
		t.Fatal("hit on empty cache")
	}

	m.Set(ctx, key, doc, time.Hour)
	got, ok := m.Get(ctx, key, time.Minute)
	if !ok {
		t.Fatal("miss after Set")
	}
	if got.Title != "Cached" {
		t.Errorf("Title = %q, want Cached", got.Title)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestMemoryMaxAgeZeroDisablesLookup(t *testing.T) {
	m := NewMemory(10)
	defer m.Stop()
	ctx := context.Background()

	key := Key("https://example.com/", models.ModeArticle)
	m.Set(ctx, key, &models.Document{}, time.Hour)

	if _, ok := m.Get(ctx, key, 0); ok {
		t.Fatal("maxAge=0 performed a lookup")
	}
}

func TestMemoryRespectsMaxAge(t *testing.T) {
	m := NewMemory(10)
	defer m.Stop()
	ctx := context.Background()

	key := Key("https://example.com/", models.ModeArticle)
	m.Set(ctx, key, &models.Document{}, time.Hour)

	time.Sleep(15 * time.Millisecond)
	if _, ok := m.Get(ctx, key, 5*time.Millisecond); ok {
		t.Fatal("entry older than maxAge served")
	}
	if _, ok := m.Get(ctx, key, time.Minute); !ok {
		t.Fatal("entry younger than a generous maxAge missed")
	}
}

func TestMemoryRespectsTTL(t *testing.T) {
	m := NewMemory(10)
	defer m.Stop()
	ctx := context.Background()

	key := Key("https://example.com/", models.ModeArticle)
	m.Set(ctx, key, &models.Document{}, 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	if _, ok := m.Get(ctx, key, time.Hour); ok {
		t.Fatal("entry served past its TTL")
	}
}

func TestMemoryEvictsAtCapacity(t *testing.T) {
	m := NewMemory(3)
	defer m.Stop()
	ctx := context.Background()

	for _, u := range []string{"a", "b", "c", "d"} {
		m.Set(ctx, Key("https://example.com/"+u, models.ModeArticle), &models.Document{URL: u}, time.Hour)
	}
	if got := m.Len(); got != 3 {
		t.Errorf("Len = %d, want 3 (capacity held)", got)
	}
}

func TestMemoryOverwriteDoesNotEvict(t *testing.T) {
	m := NewMemory(2)
	defer m.Stop()
	ctx := context.Background()

	k1 := Key("https://example.com/1", models.ModeArticle)
	k2 := Key("https://example.com/2", models.ModeArticle)
	m.Set(ctx, k1, &models.Document{}, time.Hour)
	m.Set(ctx, k2, &models.Document{}, time.Hour)
	m.Set(ctx, k1, &models.Document{Title: "v2"}, time.Hour)

	if got := m.Len(); got != 2 {
		t.Errorf("Len = %d, want 2", got)
	}
	doc, ok := m.Get(ctx, k1, time.Minute)
	if !ok || doc.Title != "v2" {
		t.Errorf("overwrite lost: ok=%v doc=%+v", ok, doc)
	}
}
