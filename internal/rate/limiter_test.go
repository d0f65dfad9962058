package rate_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/gatejohn/internal/rate"
)

func exercise(t *testing.T, l rate.Limiter) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "client-a")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("hit %d denied under the limit", i)
		}
		if res.Remaining != int64(2-i) {
			t.Fatalf("hit %d remaining=%d", i, res.Remaining)
		}
	}

	res, err := l.Allow(ctx, "client-a")
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if res.Allowed {
		t.Fatal("hit over the limit allowed")
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("retry after: %v", res.RetryAfter)
	}

	// Otra key tiene su propia ventana.
	res, err = l.Allow(ctx, "client-b")
	if err != nil {
		t.Fatalf("allow other key: %v", err)
	}
	if !res.Allowed {
		t.Fatal("independent key denied")
	}
}

func TestMemoryLimiter(t *testing.T) {
	exercise(t, rate.NewMemoryLimiter(3, time.Minute))
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exercise(t, rate.NewRedisLimiter(client, "rl:", 3, time.Minute))
}

func TestRedisLimiterWindowReset(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := rate.NewRedisLimiter(client, "rl:", 1, time.Second)
	ctx := context.Background()

	if res, _ := l.Allow(ctx, "k"); !res.Allowed {
		t.Fatal("first hit denied")
	}
	if res, _ := l.Allow(ctx, "k"); res.Allowed {
		t.Fatal("second hit allowed")
	}

	// La ventana expira en redis y el contador arranca de cero.
	mr.FastForward(2 * time.Second)
	time.Sleep(1100 * time.Millisecond) // la key redis incluye el window start
	if res, err := l.Allow(ctx, "k"); err != nil || !res.Allowed {
		t.Fatalf("new window denied: %+v %v", res, err)
	}
}
