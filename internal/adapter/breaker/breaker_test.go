package breaker

import (
	"testing"
	"time"

	"github.com/thushan-yassen/egressgw/internal/adapter/keystate"
	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

func TestAllow_ClosedByDefault(t *testing.T) {
	b := New(keystate.NewStore(), 5, 60*time.Second)
	if !b.Allow("k1") {
		t.Fatal("expected a fresh key to start Closed and allow calls")
	}
}

func TestRecordFailure_OpensAtThreshold(t *testing.T) {
	b := New(keystate.NewStore(), 3, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure("k1", domain.KindServerError)
	}
	if b.State("k1") != domain.BreakerClosed {
		t.Fatal("expected breaker to remain closed below threshold")
	}

	b.RecordFailure("k1", domain.KindServerError)
	if b.State("k1") != domain.BreakerOpen {
		t.Fatal("expected breaker to open once failureThreshold is reached")
	}
	if b.Allow("k1") {
		t.Fatal("expected Open breaker to deny calls before recoveryTimeout")
	}
}

func TestRecordFailure_RateLimitWeightsHeavier(t *testing.T) {
	b := New(keystate.NewStore(), 5, time.Minute)

	b.RecordFailure("k1", domain.KindRateLimited) // weight 3
	b.RecordFailure("k1", domain.KindRateLimited) // weight 3, total 6 >= 5

	if b.State("k1") != domain.BreakerOpen {
		t.Fatal("expected two rate-limit failures to cross the threshold via weighting")
	}
}

func TestHalfOpen_AdmitsExactlyOneProbe(t *testing.T) {
	b := New(keystate.NewStore(), 1, 10*time.Millisecond)

	b.RecordFailure("k1", domain.KindServerError)
	if b.State("k1") != domain.BreakerOpen {
		t.Fatal("expected breaker to open after one failure at threshold 1")
	}

	time.Sleep(20 * time.Millisecond)

	if !b.Allow("k1") {
		t.Fatal("expected first caller after recoveryTimeout to be admitted as the probe")
	}
	if b.State("k1") != domain.BreakerHalfOpen {
		t.Fatal("expected breaker to transition to HalfOpen")
	}
	if b.Allow("k1") {
		t.Fatal("expected second caller during HalfOpen to be denied")
	}
}

func TestHalfOpen_SuccessCloses(t *testing.T) {
	b := New(keystate.NewStore(), 1, 10*time.Millisecond)

	b.RecordFailure("k1", domain.KindServerError)
	time.Sleep(20 * time.Millisecond)
	b.Allow("k1") // admitted as probe

	b.RecordSuccess("k1")

	if b.State("k1") != domain.BreakerClosed {
		t.Fatal("expected a successful probe to close the breaker")
	}
	if !b.Allow("k1") {
		t.Fatal("expected closed breaker to admit calls again")
	}
}

func TestHalfOpen_FailureReopens(t *testing.T) {
	b := New(keystate.NewStore(), 1, 10*time.Millisecond)

	b.RecordFailure("k1", domain.KindServerError)
	time.Sleep(20 * time.Millisecond)
	b.Allow("k1") // admitted as probe

	b.RecordFailure("k1", domain.KindServerError)

	if b.State("k1") != domain.BreakerOpen {
		t.Fatal("expected a failed probe to reopen the breaker")
	}
	if b.Allow("k1") {
		t.Fatal("expected the reopened breaker to deny calls immediately")
	}
}
