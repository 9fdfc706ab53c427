package cache

import (
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New(time.Minute)
	c.Set("menu", []string{"espresso", "latte"})

	v, ok := c.Get("menu")
	if !ok {
		t.Fatal("expected cache hit")
	}
	items := v.([]string)
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New(time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("menu", "v1")

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := c.Get("menu"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestCache_Delete(t *testing.T) {
	c := New(time.Minute)
	c.Set("menu", "v1")
	c.Delete("menu")
	if _, ok := c.Get("menu"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestCache_Purge(t *testing.T) {
	c := New(time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Purge()
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss after purge")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected miss after purge")
	}
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	c := New(0)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("k", "v")
	c.now = func() time.Time { return base.Add(24 * time.Hour) }
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected entry without TTL to survive")
	}
}
