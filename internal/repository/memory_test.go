package repository_test

import (
	"context"
	"testing"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/repository"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(*testing.T) repository.Store {
		return repository.NewMemoryStore()
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := repository.NewMemoryStore()
	e := createEvent(t, s)

	got, _ := s.GetEvent(ctx, e.ID)
	got.Name = "changed"
	again, _ := s.GetEvent(ctx, e.ID)
	if again.Name != e.Name {
		t.Fatalf("mutating a returned event changed the store: %q", again.Name)
	}
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	s := repository.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := s.InTx(ctx, func(repository.Tx) error {
		ran = true
		return nil
	})
	if err == nil || ran {
		t.Fatalf("InTx ran=%v err=%v on a cancelled context", ran, err)
	}
}
