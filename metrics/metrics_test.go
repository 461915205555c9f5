package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/failover"
)

func TestCacheEvents(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.Hit(tiercache.TierPrimary, "a")
	c.Hit(tiercache.TierPrimary, "b")
	c.Miss(tiercache.TierSecondary, "a")
	c.ExtendStarted(tiercache.TierPrimary, "a")
	c.ExtendFailed(tiercache.TierPrimary, "a", errors.New("x"))
	c.DecodeFailed(tiercache.TierSecondary, "a", errors.New("x"))

	cases := []struct {
		tier, event string
		want        float64
	}{
		{"primary", EventHit, 2},
		{"secondary", EventMiss, 1},
		{"primary", EventExtendStarted, 1},
		{"primary", EventExtendFailed, 1},
		{"secondary", EventDecodeFailed, 1},
		{"primary", EventMiss, 0},
	}
	for _, tc := range cases {
		if got := testutil.ToFloat64(c.cacheEvents.WithLabelValues(tc.tier, tc.event)); got != tc.want {
			t.Errorf("%s/%s = %v, want %v", tc.tier, tc.event, got, tc.want)
		}
	}
}

func TestFailoverAttempts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.Attempt(failover.OutcomeBusy, 0)
	c.Attempt(failover.OutcomePromoted, 1500*time.Millisecond)
	c.Attempt(failover.OutcomeHealthy, 10*time.Millisecond)

	if got := testutil.ToFloat64(c.failoverAttempts.WithLabelValues("promoted")); got != 1 {
		t.Fatalf("promoted = %v", got)
	}
	if got := testutil.ToFloat64(c.failoverAttempts.WithLabelValues("busy")); got != 1 {
		t.Fatalf("busy = %v", got)
	}

	want := `
# HELP tiercache_failover_attempts_total Failover attempts by outcome.
# TYPE tiercache_failover_attempts_total counter
tiercache_failover_attempts_total{outcome="busy"} 1
tiercache_failover_attempts_total{outcome="healthy"} 1
tiercache_failover_attempts_total{outcome="promoted"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "tiercache_failover_attempts_total"); err != nil {
		t.Fatal(err)
	}
	if n := testutil.CollectAndCount(c.failoverDuration); n != 1 {
		t.Fatalf("duration series = %d", n)
	}
}

func TestRemoteWriteFailures(t *testing.T) {
	c := New(prometheus.NewRegistry())
	c.RemoteWriteFailed(1, errors.New("down"))
	c.RemoteWriteFailed(1, errors.New("down"))
	c.RemoteWriteFailed(2, errors.New("down"))

	if got := testutil.ToFloat64(c.writeFailures.WithLabelValues("1")); got != 2 {
		t.Fatalf("attempt 1 = %v", got)
	}
	if got := testutil.ToFloat64(c.writeFailures.WithLabelValues("2")); got != 1 {
		t.Fatalf("attempt 2 = %v", got)
	}
}

func TestNewPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Fatal("second registration on the same registry must panic")
		}
	}()
	New(reg)
}
