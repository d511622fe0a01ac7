package authkit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryChallengeLifecycle(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryChallengeStore(clock.Now)
	ctx := context.Background()

	record := &loginChallenge{
		AccountID: "acc-1",
		ExpiresAt: clock.Now().Add(5 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, "ch-1", record, 5*time.Minute); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "ch-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.AccountID != "acc-1" {
		t.Fatalf("got %+v", got)
	}

	// mutating the returned copy must not touch the stored record
	got.Attempts = 99
	again, err := store.Get(ctx, "ch-1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Attempts != 0 {
		t.Fatal("Get returned a shared pointer")
	}

	clock.Advance(5*time.Minute + time.Second)
	if _, err := store.Get(ctx, "ch-1"); !errors.Is(err, errChallengeExpired) {
		t.Fatalf("want errChallengeExpired, got %v", err)
	}
}

func TestMemoryChallengeRecordFailure(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryChallengeStore(clock.Now)
	ctx := context.Background()

	record := &loginChallenge{AccountID: "acc-1", ExpiresAt: clock.Now().Add(time.Minute).Unix()}
	if err := store.Save(ctx, "ch-1", record, time.Minute); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		exceeded, err := store.RecordFailure(ctx, "ch-1", 3)
		if err != nil || exceeded {
			t.Fatalf("failure %d: exceeded=%v err=%v", i+1, exceeded, err)
		}
	}
	exceeded, err := store.RecordFailure(ctx, "ch-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if !exceeded {
		t.Fatal("third failure should exceed the cap")
	}
	if _, err := store.Get(ctx, "ch-1"); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("voided challenge still present: %v", err)
	}
}
