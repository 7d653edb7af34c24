package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisCacheRoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	c := NewRedis[[]string](client, "opshub", time.Minute)

	if err := c.Set(ctx, "permissions:1", []string{"read_project"}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("opshub:permissions:1") {
		t.Fatal("key not namespaced")
	}
	got, ok := c.Get(ctx, "permissions:1")
	if !ok || len(got) != 1 || got[0] != "read_project" {
		t.Fatalf("Get = %v, %v", got, ok)
	}

	mr.FastForward(time.Minute)
	if _, ok := c.Get(ctx, "permissions:1"); ok {
		t.Fatal("entry returned after ttl")
	}
}

func TestRedisCacheDeletePrefix(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	c := NewRedis[int](client, "", time.Minute)
	c.scanCount = 2

	for i, k := range []string{"permissions:1", "permissions:2", "permissions:3", "other:1"} {
		if err := c.Set(ctx, k, i, 0); err != nil {
			t.Fatal(err)
		}
	}

	n, err := c.DeletePrefix(ctx, "permissions:")
	if err != nil || n != 3 {
		t.Fatalf("DeletePrefix = %d, %v", n, err)
	}
	if _, ok := c.Get(ctx, "other:1"); !ok {
		t.Fatal("unrelated key removed")
	}
	if err := c.Delete(ctx, "other:1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, "other:1"); ok {
		t.Fatal("Delete did not remove key")
	}
}

func TestRedisCacheDeletePrefixRemovesEveryMatch(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	c := NewRedis[[]string](client, "opshub", time.Minute)

	const total = 1000
	for i := 0; i < total; i++ {
		if err := c.Set(ctx, fmt.Sprintf("permissions:%d", i), []string{"read_project"}, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Set(ctx, "sessions:1", []string{"x"}, 0); err != nil {
		t.Fatal(err)
	}

	n, err := c.DeletePrefix(ctx, "permissions:")
	if err != nil || n != total {
		t.Fatalf("DeletePrefix = %d, %v, want %d", n, err, total)
	}
	if left := len(mr.Keys()); left != 1 {
		t.Fatalf("remaining keys = %d, want 1", left)
	}
	for i := 0; i < total; i += 97 {
		if _, ok := c.Get(ctx, fmt.Sprintf("permissions:%d", i)); ok {
			t.Fatalf("permissions:%d served after DeletePrefix", i)
		}
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Fatalf("escapeGlob = %q", got)
	}
}
