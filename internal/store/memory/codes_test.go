package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropDatabas3/gatejohn/internal/domain/repository"
)

func TestConsumeDropsExpired(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Codes().Put(ctx, &repository.AuthorizationCode{
		CodeHash:  "h-old",
		ClientID:  "web",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, err := s.Codes().Consume(ctx, "h-old"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expired consume: %v", err)
	}
	if n := len(s.codes); n != 0 {
		t.Fatalf("expired code not purged, %d entries left", n)
	}
}

func TestPutSweepsExpired(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Codes().Put(ctx, &repository.AuthorizationCode{
		CodeHash:  "h-old",
		ClientID:  "web",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("put expired: %v", err)
	}
	err = s.Codes().Put(ctx, &repository.AuthorizationCode{
		CodeHash:  "h-live",
		ClientID:  "web",
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("put live: %v", err)
	}

	if n := len(s.codes); n != 1 {
		t.Fatalf("sweep left %d entries, want 1", n)
	}
	if _, ok := s.codes["h-live"]; !ok {
		t.Fatal("live code swept")
	}
}
