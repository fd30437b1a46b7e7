package cache

import (
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New(time.Minute, 10)

	if _, ok := c.Get("k"); ok {
		t.Error("hit on empty cache")
	}
	c.Set("k", 42)
	v, ok := c.Get("k")
	if !ok || v.(int) != 42 {
		t.Errorf("Get = (%v, %v), want 42", v, ok)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(20*time.Millisecond, 10)
	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired immediately")
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("entry survived past its TTL")
	}
}

func TestCapacityEviction(t *testing.T) {
	c := New(time.Minute, 2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts a

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry not evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry missing")
	}
	if ev := c.Stats().Evictions; ev < 1 {
		t.Errorf("evictions = %d, want >= 1", ev)
	}
}

func TestInvalidate_ReachesDerivedKeys(t *testing.T) {
	c := New(time.Minute, 10)
	c.Set("task:t1", "direct")
	c.Set("bot_tasks:coder", "listing")
	c.Set("task:t2", "other")

	// Invalidating the id drops both the direct key and any derived key
	// embedding it.
	c.Set("t1", "bare")
	c.Invalidate("t1")
	if _, ok := c.Get("t1"); ok {
		t.Error("direct key survived")
	}
	if _, ok := c.Get("task:t1"); ok {
		t.Error("derived key survived")
	}
	if _, ok := c.Get("task:t2"); !ok {
		t.Error("unrelated key dropped")
	}

	c.Invalidate("coder")
	if _, ok := c.Get("bot_tasks:coder"); ok {
		t.Error("assignee listing survived")
	}
}

func TestInvalidate_EmptyIDIsNoop(t *testing.T) {
	c := New(time.Minute, 10)
	c.Set("task:t1", "v")
	c.Invalidate("")
	if _, ok := c.Get("task:t1"); !ok {
		t.Error("empty-id invalidation dropped entries")
	}
}

func TestPurge(t *testing.T) {
	c := New(time.Minute, 10)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Purge()
	if got := c.Stats().Entries; got != 0 {
		t.Errorf("entries after purge = %d", got)
	}
}
