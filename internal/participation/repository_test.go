package participation

import (
	"context"
	"errors"
	"testing"
)

func TestJoinAndCount(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	if err := repo.Join(ctx, 1, 10); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := repo.Join(ctx, 1, 11); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	n, err := repo.CountForEvent(ctx, 1)
	if err != nil {
		t.Fatalf("CountForEvent() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountForEvent() = %d, want 2", n)
	}
}

func TestJoinTwiceFails(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	if err := repo.Join(ctx, 1, 10); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := repo.Join(ctx, 1, 10); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("second Join() error = %v, want ErrAlreadyJoined", err)
	}
}

func TestLeave(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	if err := repo.Join(ctx, 1, 10); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := repo.Leave(ctx, 1, 10); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}

	joined, err := repo.IsParticipant(ctx, 1, 10)
	if err != nil {
		t.Fatalf("IsParticipant() error = %v", err)
	}
	if joined {
		t.Error("IsParticipant() = true after Leave(), want false")
	}
}

func TestLeaveWithoutJoinFails(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	if err := repo.Leave(ctx, 1, 10); !errors.Is(err, ErrNotJoined) {
		t.Errorf("Leave() error = %v, want ErrNotJoined", err)
	}

	// Event exists but the user never joined.
	if err := repo.Join(ctx, 1, 99); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := repo.Leave(ctx, 1, 10); !errors.Is(err, ErrNotJoined) {
		t.Errorf("Leave() error = %v, want ErrNotJoined", err)
	}
}

func TestCountsForEvents(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	joins := []struct{ event, user int64 }{
		{1, 10}, {1, 11}, {1, 12},
		{2, 10},
	}
	for _, j := range joins {
		if err := repo.Join(ctx, j.event, j.user); err != nil {
			t.Fatalf("Join(%d, %d) error = %v", j.event, j.user, err)
		}
	}

	counts, err := repo.CountsForEvents(ctx, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("CountsForEvents() error = %v", err)
	}
	if counts[1] != 3 {
		t.Errorf("counts[1] = %d, want 3", counts[1])
	}
	if counts[2] != 1 {
		t.Errorf("counts[2] = %d, want 1", counts[2])
	}
	if _, ok := counts[3]; ok {
		t.Error("counts[3] present, want absent for event with no participants")
	}
}

func TestListForUser(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	for _, eventID := range []int64{5, 3, 8} {
		if err := repo.Join(ctx, eventID, 10); err != nil {
			t.Fatalf("Join(%d) error = %v", eventID, err)
		}
	}
	if err := repo.Join(ctx, 4, 99); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	events, err := repo.ListForUser(ctx, 10)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("ListForUser() returned %d events, want 3", len(events))
	}
	want := []int64{5, 3, 8}
	for i, id := range want {
		if events[i] != id {
			t.Errorf("events[%d] = %d, want %d (join order)", i, events[i], id)
		}
	}
}
