package tickets

import (
	"testing"
	"time"

	"serotonyl.ru/support-bot/internal/clock"
)

type expiry struct {
	channelID, claimerID int64
}

func newTestTracker() (*ClaimTracker, *clock.FakeClock, *[]expiry) {
	clk := clock.Fake(t0)
	var fired []expiry
	tr := NewClaimTracker(clk, 20*time.Minute, func(channelID, claimerID int64) {
		fired = append(fired, expiry{channelID, claimerID})
	})
	return tr, clk, &fired
}

func TestClaimTrackerFiresAfterTimeout(t *testing.T) {
	tr, clk, fired := newTestTracker()
	tr.Track(101, 20)

	if !tr.CreatorMessage(101) {
		t.Fatal("tracked ticket must arm")
	}
	if _, armed, _ := tr.State(101); !armed {
		t.Fatal("timer must be armed")
	}

	clk.Advance(19 * time.Minute)
	if len(*fired) != 0 {
		t.Fatal("fired too early")
	}
	clk.Advance(time.Minute)
	if len(*fired) != 1 || (*fired)[0] != (expiry{101, 20}) {
		t.Fatalf("fired = %+v", *fired)
	}
	if _, _, ok := tr.State(101); ok {
		t.Fatal("entry must be removed after fire")
	}
}

func TestClaimTrackerRearmKeepsSingleTimer(t *testing.T) {
	tr, clk, fired := newTestTracker()
	tr.Track(101, 20)

	tr.CreatorMessage(101)
	clk.Advance(10 * time.Minute)
	tr.CreatorMessage(101) // первый таймер отменён
	clk.Advance(15 * time.Minute)
	if len(*fired) != 0 {
		t.Fatalf("cancelled timer fired: %+v", *fired)
	}
	clk.Advance(5 * time.Minute)
	clk.Advance(time.Hour)
	if len(*fired) != 1 {
		t.Fatalf("fired %d times, want 1", len(*fired))
	}
}

func TestClaimTrackerClaimerReplyDisarms(t *testing.T) {
	tr, clk, fired := newTestTracker()
	tr.Track(101, 20)
	tr.CreatorMessage(101)

	if tr.ClaimerMessage(101, 30) {
		t.Fatal("other staff must not disarm the timer")
	}
	if !tr.ClaimerMessage(101, 20) {
		t.Fatal("claimer reply must disarm the timer")
	}
	clk.Advance(time.Hour)

	if len(*fired) != 0 {
		t.Fatalf("disarmed timer fired: %+v", *fired)
	}
	claimer, armed, ok := tr.State(101)
	if !ok || armed || claimer != 20 {
		t.Fatalf("state = %d, %v, %v", claimer, armed, ok)
	}
}

func TestClaimTrackerReleaseCancels(t *testing.T) {
	tr, clk, fired := newTestTracker()
	tr.Track(101, 20)
	tr.CreatorMessage(101)
	tr.Release(101)
	clk.Advance(time.Hour)
	if len(*fired) != 0 {
		t.Fatalf("released timer fired: %+v", *fired)
	}
}

func TestClaimTrackerStaleTimerIgnoresNewClaim(t *testing.T) {
	tr, clk, fired := newTestTracker()
	tr.Track(101, 20)
	tr.CreatorMessage(101)
	clk.Advance(5 * time.Minute)

	tr.Release(101)
	tr.Track(101, 30)
	tr.CreatorMessage(101)

	clk.Advance(15 * time.Minute) // дедлайн первого таймера
	if len(*fired) != 0 {
		t.Fatalf("stale timer fired: %+v", *fired)
	}
	clk.Advance(5 * time.Minute)
	if len(*fired) != 1 || (*fired)[0].claimerID != 30 {
		t.Fatalf("fired = %+v", *fired)
	}
}

func TestClaimTrackerReleaseIfChecksClaimer(t *testing.T) {
	tr, _, _ := newTestTracker()
	tr.Track(101, 20)
	tr.ReleaseIf(101, 30)
	if _, _, ok := tr.State(101); !ok {
		t.Fatal("ReleaseIf removed someone else's claim")
	}
	tr.ReleaseIf(101, 20)
	if _, _, ok := tr.State(101); ok {
		t.Fatal("ReleaseIf did not remove own claim")
	}
}

func TestClaimTrackerUntrackedChannel(t *testing.T) {
	tr, clk, _ := newTestTracker()
	if tr.CreatorMessage(555) {
		t.Fatal("untracked channel must not arm")
	}
	if clk.PendingCount() != 0 {
		t.Fatalf("pending timers = %d", clk.PendingCount())
	}
}

func TestClaimTrackerDefaultTimeout(t *testing.T) {
	tr := NewClaimTracker(clock.Fake(t0), 0, nil)
	if tr.Timeout() != DefaultUnclaimTimeout {
		t.Fatalf("timeout = %v", tr.Timeout())
	}
}

func TestClaimTrackerTrackIfChecksHolder(t *testing.T) {
	tr, _, _ := newTestTracker()
	tr.Track(101, 30)

	if tr.TrackIf(101, 20, func() bool { return false }) {
		t.Fatal("TrackIf must refuse when holder check fails")
	}
	if claimer, _, _ := tr.State(101); claimer != 30 {
		t.Fatalf("claimer = %d, want 30", claimer)
	}
	if !tr.TrackIf(101, 20, func() bool { return true }) {
		t.Fatal("TrackIf must track when holder check passes")
	}
	if claimer, _, _ := tr.State(101); claimer != 20 {
		t.Fatalf("claimer = %d, want 20", claimer)
	}
}
