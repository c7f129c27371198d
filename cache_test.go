package authgate

import (
	"testing"
	"time"
)

func TestMemoryPermissionCache(t *testing.T) {
	c := NewMemoryPermissionCache()

	if _, ok := c.Get("u1"); ok {
		t.Fatal("empty cache should miss")
	}

	c.Set("u1", []string{"a.b.own"}, time.Minute)
	perms, ok := c.Get("u1")
	if !ok || len(perms) != 1 || perms[0] != "a.b.own" {
		t.Fatalf("got %v, %v", perms, ok)
	}

	c.Invalidate("u1")
	if _, ok := c.Get("u1"); ok {
		t.Fatal("invalidated entry should miss")
	}
}

func TestMemoryPermissionCacheTTL(t *testing.T) {
	c := NewMemoryPermissionCache()
	c.Set("u1", []string{"a.b.own"}, time.Nanosecond)
	time.Sleep(time.Millisecond)
	if _, ok := c.Get("u1"); ok {
		t.Fatal("expired entry should miss")
	}
}

func TestMemoryPermissionCacheCopies(t *testing.T) {
	c := NewMemoryPermissionCache()
	src := []string{"a.b.own"}
	c.Set("u1", src, time.Minute)
	src[0] = "tampered"

	perms, _ := c.Get("u1")
	if perms[0] != "a.b.own" {
		t.Fatal("cache stored the caller's slice by reference")
	}
	perms[0] = "tampered"
	again, _ := c.Get("u1")
	if again[0] != "a.b.own" {
		t.Fatal("cache handed out its internal slice")
	}
}

func TestMemoryPermissionCachePurge(t *testing.T) {
	c := NewMemoryPermissionCache()
	c.Set("u1", []string{"a.b.own"}, time.Minute)
	c.Set("u2", []string{"a.b.own"}, time.Minute)
	c.Purge()
	if _, ok := c.Get("u1"); ok {
		t.Fatal("purge left u1")
	}
	if _, ok := c.Get("u2"); ok {
		t.Fatal("purge left u2")
	}
}

func TestRistrettoPermissionCache(t *testing.T) {
	c, err := NewRistrettoPermissionCache(0, 0, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()

	c.Set("u1", []string{"bookings.read.property"}, time.Minute)
	perms, ok := c.Get("u1")
	if !ok || len(perms) != 1 || perms[0] != "bookings.read.property" {
		t.Fatalf("got %v, %v", perms, ok)
	}

	c.Invalidate("u1")
	if _, ok := c.Get("u1"); ok {
		t.Fatal("deleted entry should miss")
	}
}

func TestRistrettoPermissionCacheEmptySet(t *testing.T) {
	c, err := NewRistrettoPermissionCache(0, 0, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()

	// Empty sets are legitimate cache values (locked-out users).
	c.Set("u1", []string{}, time.Minute)
	perms, ok := c.Get("u1")
	if !ok {
		t.Fatal("empty set should be cached")
	}
	if len(perms) != 0 {
		t.Fatalf("got %v", perms)
	}
}
