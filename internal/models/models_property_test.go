package models

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPropertyClampBoundsPercentages(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Clamp always lands in [0, 100]", prop.ForAll(
		func(v float64) bool {
			c := Clamp(v)
			return c >= 0 && c <= 100
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("Clamp is the identity inside the range", prop.ForAll(
		func(v float64) bool {
			return Clamp(v) == v
		},
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}

func TestPropertyPreferencesPatchOnlyTouchesSetFields(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("unset patch fields keep their previous value", prop.ForAll(
		func(rangeName string, setRange, alerts, setAlerts bool) bool {
			base := UserPreferences{
				Theme:              ThemeDark,
				DefaultTimeRange:   "24h",
				AlertNotifications: !alerts,
				EmailNotifications: true,
			}

			var patch PreferencesPatch
			if setRange {
				patch.DefaultTimeRange = &rangeName
			}
			if setAlerts {
				patch.AlertNotifications = &alerts
			}

			got := patch.Apply(base)

			wantRange := base.DefaultTimeRange
			if setRange {
				wantRange = rangeName
			}
			wantAlerts := base.AlertNotifications
			if setAlerts {
				wantAlerts = alerts
			}

			return got.Theme == base.Theme &&
				got.EmailNotifications == base.EmailNotifications &&
				got.DefaultTimeRange == wantRange &&
				got.AlertNotifications == wantAlerts
		},
		gen.OneConstOf("1h", "24h", "7d", "30d"),
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestAlertCloneDoesNotShareAcknowledgedAt(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	a := Alert{ID: "a1", Acknowledged: true, AcknowledgedAt: &at}

	c := a.Clone()
	*c.AcknowledgedAt = c.AcknowledgedAt.Add(time.Hour)

	if !a.AcknowledgedAt.Equal(at) {
		t.Fatalf("original acknowledgedAt changed to %v", a.AcknowledgedAt)
	}
}

func TestNodeCloneCopiesTags(t *testing.T) {
	n := Node{ID: "1", Tags: []string{"edge"}}

	c := n.Clone()
	c.Tags[0] = "core"

	if n.Tags[0] != "edge" {
		t.Fatalf("original tags mutated: %v", n.Tags)
	}
}
