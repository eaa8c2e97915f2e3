package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Symbol string  `json:"symbol"`
	Close  float64 `json:"close"`
}

func TestMemoryCacheTypedRoundtrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	in := []payload{{Symbol: "SAP.DE", Close: 101.5}, {Symbol: "BMW.DE", Close: 88}}
	if err := mc.Set(ctx, "k", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out []payload
	if err := mc.Get(ctx, "k", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(out) != 2 || out[0].Symbol != "SAP.DE" || out[1].Close != 88 {
		t.Fatalf("roundtrip mismatch: %+v", out)
	}
}

func TestMemoryCacheStringValuesStayRaw(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "s", "plain text", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got string
	if err := mc.Get(ctx, "s", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "plain text" {
		t.Fatalf("got %q", got)
	}
}

func TestMemoryCacheMissAndExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	var out payload
	if err := mc.Get(ctx, "absent", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}

	if err := mc.Set(ctx, "gone", payload{Symbol: "X"}, time.Nanosecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := mc.Get(ctx, "gone", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired miss, got %v", err)
	}
}

func TestMemoryCacheDeleteByPrefix(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	for _, key := range []string{"series:SAP.DE:30m", "series:SAP.DE:1d", "series:BMW.DE:30m"} {
		if err := mc.Set(ctx, key, "v", time.Minute); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	if err := mc.DeleteByPattern(ctx, BuildPattern("series:SAP.DE")); err != nil {
		t.Fatalf("delete by pattern: %v", err)
	}

	var s string
	if err := mc.Get(ctx, "series:SAP.DE:30m", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("SAP 30m should be gone, got %v", err)
	}
	if err := mc.Get(ctx, "series:SAP.DE:1d", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("SAP 1d should be gone, got %v", err)
	}
	if err := mc.Get(ctx, "series:BMW.DE:30m", &s); err != nil {
		t.Fatalf("BMW should survive: %v", err)
	}
}

func TestMemoryCacheTryLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	ok, err = mc.TryLock(ctx, "lock", time.Minute)
	if err != nil || ok {
		t.Fatalf("second lock should fail: ok=%v err=%v", ok, err)
	}
	if err := mc.Unlock(ctx, "lock"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	ok, err = mc.TryLock(ctx, "lock", time.Minute)
	if err != nil || !ok {
		t.Fatalf("relock after unlock: ok=%v err=%v", ok, err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "a", "1", time.Minute); err != nil {
		t.Fatalf("set a: %v", err)
	}
	if err := mc.Set(ctx, "b", "2", time.Minute); err != nil {
		t.Fatalf("set b: %v", err)
	}
	var s string
	if err := mc.Get(ctx, "a", &s); err != nil { // touch a so b is the LRU
		t.Fatalf("get a: %v", err)
	}
	if err := mc.Set(ctx, "c", "3", time.Minute); err != nil {
		t.Fatalf("set c: %v", err)
	}

	if err := mc.Get(ctx, "b", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected b evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &s); err != nil {
		t.Fatalf("a should survive: %v", err)
	}
}

func TestGenerateKeyWithParams(t *testing.T) {
	got := GenerateKeyWithParams("series", "SAP.DE", "30m", "2023-03-01")
	if got != "series:SAP.DE:30m:2023-03-01" {
		t.Fatalf("unexpected key %q", got)
	}
	if GenerateKey("job", "SAP.DE") != "job:SAP.DE" {
		t.Fatalf("unexpected key %q", GenerateKey("job", "SAP.DE"))
	}
}
