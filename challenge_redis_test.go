package authkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*redisChallengeStore, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := newFakeClock()
	return newRedisChallengeStore(client, clock.Now), clock
}

func TestRedisChallengeRoundTrip(t *testing.T) {
	store, clock := newTestRedisStore(t)
	ctx := context.Background()

	record := &loginChallenge{
		AccountID: "acc-1",
		ExpiresAt: clock.Now().Add(5 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, "ch-1", record, 5*time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "ch-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccountID != "acc-1" || got.ExpiresAt != record.ExpiresAt || got.Attempts != 0 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestRedisChallengeNotFound(t *testing.T) {
	store, _ := newTestRedisStore(t)

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("want errChallengeNotFound, got %v", err)
	}
}

func TestRedisChallengeExpiry(t *testing.T) {
	store, clock := newTestRedisStore(t)
	ctx := context.Background()

	record := &loginChallenge{
		AccountID: "acc-1",
		ExpiresAt: clock.Now().Add(5 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, "ch-1", record, 5*time.Minute); err != nil {
		t.Fatal(err)
	}

	clock.Advance(5*time.Minute + time.Second)
	if _, err := store.Get(ctx, "ch-1"); !errors.Is(err, errChallengeExpired) {
		t.Fatalf("want errChallengeExpired, got %v", err)
	}
	// the expired record was reaped
	if _, err := store.Get(ctx, "ch-1"); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("want errChallengeNotFound after reap, got %v", err)
	}
}

func TestRedisChallengeDelete(t *testing.T) {
	store, clock := newTestRedisStore(t)
	ctx := context.Background()

	record := &loginChallenge{AccountID: "acc-1", ExpiresAt: clock.Now().Add(time.Minute).Unix()}
	if err := store.Save(ctx, "ch-1", record, time.Minute); err != nil {
		t.Fatal(err)
	}

	existed, err := store.Delete(ctx, "ch-1")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "ch-1")
	if err != nil || existed {
		t.Fatalf("second delete: existed=%v err=%v", existed, err)
	}
}

func TestRedisChallengeRecordFailure(t *testing.T) {
	store, clock := newTestRedisStore(t)
	ctx := context.Background()

	record := &loginChallenge{AccountID: "acc-1", ExpiresAt: clock.Now().Add(5 * time.Minute).Unix()}
	if err := store.Save(ctx, "ch-1", record, 5*time.Minute); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		exceeded, err := store.RecordFailure(ctx, "ch-1", 5)
		if err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
		if exceeded {
			t.Fatalf("failure %d: exceeded too early", i+1)
		}
	}

	exceeded, err := store.RecordFailure(ctx, "ch-1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !exceeded {
		t.Fatal("fifth failure should exceed the cap")
	}
	// the exceeded challenge is gone
	if _, err := store.Get(ctx, "ch-1"); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("want errChallengeNotFound, got %v", err)
	}
}

func TestRedisChallengeRecordFailureMissing(t *testing.T) {
	store, _ := newTestRedisStore(t)

	if _, err := store.RecordFailure(context.Background(), "missing", 5); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("want errChallengeNotFound, got %v", err)
	}
}

func TestChallengeCodecRejectsBadVersion(t *testing.T) {
	record := &loginChallenge{AccountID: "acc-1", ExpiresAt: 42}
	data, err := encodeLoginChallenge(record)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := decodeLoginChallenge(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.AccountID != "acc-1" || decoded.ExpiresAt != 42 {
		t.Fatalf("codec mismatch: %+v", decoded)
	}

	data[0] = 0xFF
	if _, err := decodeLoginChallenge(data); err == nil {
		t.Fatal("expected version error")
	}
	if _, err := decodeLoginChallenge(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
