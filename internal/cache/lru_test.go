package cache

import (
	"testing"
	"time"

	"github.com/go-test/deep"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *clock, *[]string) {
	clk := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	var evicted []string
	c := NewLRUCache[string](size, ttl).OnEvict(func(key, value string) {
		evicted = append(evicted, key+"="+value)
	})
	c.now = clk.now
	return c, clk, &evicted
}

func TestLRUCapacityEviction(t *testing.T) {
	c, _, evicted := newTestCache(2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a")
	}
	c.Set("c", "3") // b is least recently used

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}
	if diff := deep.Equal(*evicted, []string{"b=2"}); diff != nil {
		t.Error(diff)
	}
}

func TestLRUExpiry(t *testing.T) {
	c, clk, evicted := newTestCache(10, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	clk.t = clk.t.Add(30 * time.Second)
	c.Set("c", "3")
	clk.t = clk.t.Add(45 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("expected 1 expired entry cleaned, got %d", n)
	}
	if v, ok := c.Get("c"); !ok || v != "3" {
		t.Errorf("expected c=3, got %q %v", v, ok)
	}
	if diff := deep.Equal(*evicted, []string{"a=1", "b=2"}); diff != nil {
		t.Error(diff)
	}
}

func TestLRUReplaceDeletePurge(t *testing.T) {
	c, _, evicted := newTestCache(10, time.Minute)

	c.Set("a", "1")
	c.Set("a", "2")
	c.Set("b", "3")
	c.Delete("b")
	c.Delete("missing")
	c.Set("c", "4")
	if n := c.Purge(); n != 2 {
		t.Errorf("expected 2 purged, got %d", n)
	}
	if c.Size() != 0 {
		t.Errorf("expected empty cache, got %d", c.Size())
	}
	if diff := deep.Equal(*evicted, []string{"a=1", "b=3", "c=4", "a=2"}); diff != nil {
		t.Error(diff)
	}
}

func TestLRUDeleteIf(t *testing.T) {
	c, _, evicted := newTestCache(10, time.Minute)
	c.Set("a", "1")
	stale := "1"
	c.Set("a", "2")

	if c.DeleteIf("a", func(v string) bool { return v == stale }) {
		t.Error("a stale value must not delete the newer entry")
	}
	if v, ok := c.Get("a"); !ok || v != "2" {
		t.Errorf("expected a=2, got %q %v", v, ok)
	}
	if !c.DeleteIf("a", func(v string) bool { return v == "2" }) {
		t.Error("expected the matching entry to be deleted")
	}
	if c.DeleteIf("missing", func(string) bool { return true }) {
		t.Error("missing key reported as deleted")
	}
	if diff := deep.Equal(*evicted, []string{"a=1", "a=2"}); diff != nil {
		t.Error(diff)
	}
}

func TestManagerCleanNow(t *testing.T) {
	c, clk, _ := newTestCache(10, time.Second)
	c.Set("a", "1")
	clk.t = clk.t.Add(2 * time.Second)

	m := NewManager(nil)
	m.Register(c)
	if n := m.CleanNow(); n != 1 {
		t.Errorf("expected 1 cleaned, got %d", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
