package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func fixed(s Status) CheckFunc {
	return func(context.Context) ComponentStatus { return ComponentStatus{Status: s} }
}

func rank(s Status) int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	}
	return 0
}

// The overall status equals the worst registered component status, and the
// handler answers 503 exactly when it is unhealthy.
func TestPropertyOverallStatusIsWorstComponent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	all := []Status{StatusHealthy, StatusDegraded, StatusUnhealthy}
	genStatus := gen.IntRange(0, len(all)-1).Map(func(i int) Status { return all[i] })

	properties.Property("overall status is worst of components", prop.ForAll(
		func(statuses []Status) bool {
			c := NewChecker("test")
			want := StatusHealthy
			for i, s := range statuses {
				c.Register(string(rune('a'+i)), fixed(s))
				if rank(s) > rank(want) {
					want = s
				}
			}

			rr := httptest.NewRecorder()
			c.Handler()(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			var resp Response
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				return false
			}
			wantCode := http.StatusOK
			if want == StatusUnhealthy {
				wantCode = http.StatusServiceUnavailable
			}
			return resp.Status == want && rr.Code == wantCode && len(resp.Components) == len(statuses)
		},
		gen.SliceOfN(5, genStatus),
	))

	properties.TestingRun(t)
}

func TestCheckerAppliesTimeout(t *testing.T) {
	c := NewChecker("test")
	c.SetTimeout(10 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) ComponentStatus {
		select {
		case <-ctx.Done():
			return ComponentStatus{Status: StatusUnhealthy, Message: ctx.Err().Error()}
		case <-time.After(time.Second):
			return ComponentStatus{Status: StatusHealthy}
		}
	})

	start := time.Now()
	resp := c.Check(context.Background())
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("timeout not applied")
	}
	if resp.Status != StatusUnhealthy {
		t.Errorf("status = %s", resp.Status)
	}
}

func TestSimulatorFreshness(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	var last time.Time

	check := SimulatorFreshness(func() time.Time { return last }, 5*time.Second, clock)

	if got := check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("before first tick: %s", got)
	}

	last = now
	now = now.Add(11 * time.Second)
	if got := check(context.Background()).Status; got != StatusDegraded {
		t.Errorf("after 11s: %s", got)
	}

	now = now.Add(20 * time.Second)
	if got := check(context.Background()).Status; got != StatusUnhealthy {
		t.Errorf("after 31s: %s", got)
	}

	last = now
	if got := check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("fresh tick: %s", got)
	}
}

func TestStreamRegistry(t *testing.T) {
	st := StreamRegistry(func() int { return 3 })(context.Background())
	if st.Status != StatusHealthy || st.Message != "3 session(s) connected" {
		t.Errorf("got %+v", st)
	}
}
