package delivery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTryClaim_ConcurrentCallersExactlyOneWins(t *testing.T) {
	st := newMemStore()
	s := armed(1, "a@example.com")
	st.put(s)
	g := NewGuard(st)

	const callers = 32
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
		errs atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			snapshot := s
			_, won, err := g.TryClaim(context.Background(), &snapshot, uuid.New(), t0.Add(48*time.Hour))
			if err != nil {
				errs.Add(1)
			}
			if won {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if errs.Load() != 0 {
		t.Fatalf("%d callers got errors", errs.Load())
	}
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
	if !st.get(s.UserID).DeliveryTriggered {
		t.Errorf("delivery_triggered should be true after a won claim")
	}
}

func TestTryClaim_NoRecipientsLeavesFlagFalse(t *testing.T) {
	st := newMemStore()
	s := armed(1)
	st.put(s)

	_, won, err := NewGuard(st).TryClaim(context.Background(), &s, uuid.New(), t0.Add(48*time.Hour))
	if won {
		t.Fatalf("claim must not be won without recipients")
	}
	if !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
	if st.get(s.UserID).DeliveryTriggered {
		t.Errorf("delivery_triggered flipped for a user with no recipients")
	}
	if st.claims != 0 {
		t.Errorf("store claim was attempted")
	}
}

func TestTryClaim_InvalidRecipientEmail(t *testing.T) {
	st := newMemStore()
	s := armed(1, "not-an-email")
	st.put(s)

	_, won, err := NewGuard(st).TryClaim(context.Background(), &s, uuid.New(), t0.Add(48*time.Hour))
	if won || !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings and no claim, got won=%v err=%v", won, err)
	}
}

func TestTryClaim_CheckInBetweenScanAndClaimWins(t *testing.T) {
	st := newMemStore()
	s := armed(1, "a@example.com")
	st.put(s)

	// The scan saw the old check-in; the user checks in before the claim.
	if err := st.UpdateCheckIn(context.Background(), s.UserID, t0.Add(47*time.Hour)); err != nil {
		t.Fatalf("UpdateCheckIn failed: %v", err)
	}
	_, won, err := NewGuard(st).TryClaim(context.Background(), &s, uuid.New(), t0.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("TryClaim failed: %v", err)
	}
	if won {
		t.Errorf("stale scan must not claim after a fresh check-in")
	}
}

func TestRelease_OnlyReleasesOwnEpisode(t *testing.T) {
	st := newMemStore()
	s := armed(1, "a@example.com")
	st.put(s)
	g := NewGuard(st)

	claim, won, err := g.TryClaim(context.Background(), &s, uuid.New(), t0.Add(48*time.Hour))
	if err != nil || !won {
		t.Fatalf("expected claim, got won=%v err=%v", won, err)
	}

	other := claim
	other.EpisodeID = uuid.New()
	if err := g.Release(context.Background(), other); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if !st.get(s.UserID).DeliveryTriggered {
		t.Fatalf("a different episode released the claim")
	}

	if err := g.Release(context.Background(), claim); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if st.get(s.UserID).DeliveryTriggered {
		t.Errorf("own release did not clear the flag")
	}
}
