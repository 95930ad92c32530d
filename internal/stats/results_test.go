package stats

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/splitkit/splitkit/internal/store"
)

func testExperiment(variantConversions ...int) (*store.Experiment, []*store.Assignment, []*store.TrackingEvent) {
	exp := &store.Experiment{
		ID:     "exp-1",
		Name:   "Test",
		Status: store.StatusRunning,
	}
	var assignments []*store.Assignment
	var events []*store.TrackingEvent
	for vi, conversions := range variantConversions {
		v := store.Variant{ID: fmt.Sprintf("v-%d", vi), Name: fmt.Sprintf("Variant %d", vi), Weight: 100 / float64(len(variantConversions))}
		exp.Variants = append(exp.Variants, v)
		for u := 0; u < 100; u++ {
			userID := fmt.Sprintf("u-%d-%d", vi, u)
			assignments = append(assignments, &store.Assignment{
				ExperimentID: exp.ID,
				UserID:       userID,
				Variant:      v,
			})
			if u < conversions {
				events = append(events, &store.TrackingEvent{
					ExperimentID: exp.ID,
					UserID:       userID,
					EventType:    store.EventTypeConversion,
					Value:        1,
				})
			}
		}
	}
	return exp, assignments, events
}

func TestCalculateWinner(t *testing.T) {
	exp, assignments, events := testExperiment(12, 15, 18)
	r := Calculate(exp, assignments, events, Options{})

	if len(r.Variants) != 3 {
		t.Fatalf("expected 3 variant results, got %d", len(r.Variants))
	}
	for i, want := range []float64{12, 15, 18} {
		if r.Variants[i].ConversionRate != want {
			t.Errorf("variant %d rate = %v, want %v", i, r.Variants[i].ConversionRate, want)
		}
	}
	if r.Variants[0].IsWinner || r.Variants[1].IsWinner || !r.Variants[2].IsWinner {
		t.Errorf("expected variant 2 to be the sole winner, got %v %v %v",
			r.Variants[0].IsWinner, r.Variants[1].IsWinner, r.Variants[2].IsWinner)
	}
}

func TestCalculateWinnerTieGoesToFirst(t *testing.T) {
	exp, assignments, events := testExperiment(10, 10)
	r := Calculate(exp, assignments, events, Options{})
	if !r.Variants[0].IsWinner || r.Variants[1].IsWinner {
		t.Error("tied rates should leave the control as winner")
	}
}

func TestCalculateAllZeroWinner(t *testing.T) {
	exp, assignments, events := testExperiment(0, 0)
	r := Calculate(exp, assignments, events, Options{})
	if !r.Variants[0].IsWinner {
		t.Error("with no conversions the control should win")
	}
}

func TestCalculateLift(t *testing.T) {
	exp, assignments, events := testExperiment(10, 20)
	r := Calculate(exp, assignments, events, Options{})

	if r.Variants[0].Lift != 0 {
		t.Errorf("control lift = %v, want 0", r.Variants[0].Lift)
	}
	if math.Abs(r.Variants[1].Lift-100) > 1e-9 {
		t.Errorf("treatment lift = %v, want 100", r.Variants[1].Lift)
	}
}

func TestCalculateLiftZeroControl(t *testing.T) {
	exp, assignments, events := testExperiment(0, 20)
	r := Calculate(exp, assignments, events, Options{})
	if r.Variants[1].Lift != 0 {
		t.Errorf("lift with zero control rate = %v, want 0", r.Variants[1].Lift)
	}
}

func TestCalculateConversionCounting(t *testing.T) {
	exp := &store.Experiment{
		ID:     "exp-1",
		Status: store.StatusRunning,
		Variants: []store.Variant{
			{ID: "v-0", Name: "Control", Weight: 100},
		},
	}
	assignments := []*store.Assignment{
		{ExperimentID: "exp-1", UserID: "u-1", Variant: exp.Variants[0]},
	}
	events := []*store.TrackingEvent{
		{ExperimentID: "exp-1", UserID: "u-1", EventType: store.EventTypeConversion},
		{ExperimentID: "exp-1", UserID: "u-1", EventType: store.EventTypeConversion},
		{ExperimentID: "exp-1", UserID: "u-1", EventType: store.EventTypeConversion},
		{ExperimentID: "exp-1", UserID: "u-1", EventType: "click"},
		{ExperimentID: "exp-1", UserID: "ghost", EventType: store.EventTypeConversion},
	}

	// Default mode credits every conversion event from an assigned user.
	r := Calculate(exp, assignments, events, Options{})
	if r.Variants[0].Conversions != 3 {
		t.Errorf("per-event conversions = %d, want 3", r.Variants[0].Conversions)
	}

	// Unique mode caps credit at one per user.
	r = Calculate(exp, assignments, events, Options{UniquePerUser: true})
	if r.Variants[0].Conversions != 1 {
		t.Errorf("unique conversions = %d, want 1", r.Variants[0].Conversions)
	}
}

func TestCalculateSignificanceThreshold(t *testing.T) {
	exp, assignments, events := testExperiment(12, 15)
	r := Calculate(exp, assignments, events, Options{})
	if !r.Significance.IsSignificant {
		t.Error("200 participants should pass the simplified threshold")
	}
	if r.Significance.PValue == nil || *r.Significance.PValue != 0.032 {
		t.Errorf("pValue = %v, want 0.032", r.Significance.PValue)
	}
	if !r.Significance.Simplified {
		t.Error("simplified flag should be set")
	}

	small := &store.Experiment{
		ID:     "exp-2",
		Status: store.StatusRunning,
		Variants: []store.Variant{
			{ID: "v-0", Name: "A", Weight: 50},
			{ID: "v-1", Name: "B", Weight: 50},
		},
	}
	r = Calculate(small, nil, nil, Options{})
	if r.Significance.IsSignificant {
		t.Error("no participants should not be significant")
	}
	if r.Significance.PValue != nil {
		t.Errorf("pValue should be omitted below threshold, got %v", *r.Significance.PValue)
	}
}

func TestCalculateIntervalClamped(t *testing.T) {
	exp, assignments, events := testExperiment(1, 99)
	r := Calculate(exp, assignments, events, Options{})
	for _, v := range r.Variants {
		ci := v.ConfidenceInterval
		if ci.Lower < 0 || ci.Upper > 100 || ci.Lower > ci.Upper {
			t.Errorf("interval for %s out of bounds: [%v, %v]", v.VariantID, ci.Lower, ci.Upper)
		}
	}
}

func TestCalculateIntervalNoParticipants(t *testing.T) {
	exp := &store.Experiment{
		ID:     "exp-1",
		Status: store.StatusDraft,
		Variants: []store.Variant{
			{ID: "v-0", Name: "A", Weight: 50},
			{ID: "v-1", Name: "B", Weight: 50},
		},
	}
	r := Calculate(exp, nil, nil, Options{})
	if r.Variants[0].ConfidenceInterval != (Interval{}) {
		t.Errorf("interval with no participants = %+v, want zero", r.Variants[0].ConfidenceInterval)
	}
}

func TestCalculateDuration(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	start := now.Add(-84 * time.Hour) // 3.5 days

	exp, assignments, events := testExperiment(5, 8)
	exp.StartDate = &start

	r := Calculate(exp, assignments, events, Options{Now: now})
	if r.OverallResults.Duration != 3 {
		t.Errorf("duration = %d, want 3", r.OverallResults.Duration)
	}

	exp.StartDate = nil
	r = Calculate(exp, assignments, events, Options{Now: now})
	if r.OverallResults.Duration != 0 {
		t.Errorf("duration without start date = %d, want 0", r.OverallResults.Duration)
	}
}

func TestCalculateTotals(t *testing.T) {
	exp, assignments, events := testExperiment(12, 15)
	r := Calculate(exp, assignments, events, Options{})
	if r.OverallResults.TotalParticipants != 200 {
		t.Errorf("total participants = %d, want 200", r.OverallResults.TotalParticipants)
	}
	if r.OverallResults.TotalConversions != 27 {
		t.Errorf("total conversions = %d, want 27", r.OverallResults.TotalConversions)
	}
	if r.OverallResults.Status != store.StatusRunning {
		t.Errorf("status = %s, want running", r.OverallResults.Status)
	}
}

func TestCalculateNilExperiment(t *testing.T) {
	r := Calculate(nil, nil, nil, Options{})
	if len(r.Variants) != 0 {
		t.Errorf("expected empty variants, got %d", len(r.Variants))
	}
	if r.Significance.IsSignificant {
		t.Error("empty results should not be significant")
	}
	if r.Comparison != nil {
		t.Error("empty results should have no comparison")
	}
}

func TestCalculateStaleAssignmentSkipped(t *testing.T) {
	exp := &store.Experiment{
		ID:     "exp-1",
		Status: store.StatusRunning,
		Variants: []store.Variant{
			{ID: "v-0", Name: "A", Weight: 50},
			{ID: "v-1", Name: "B", Weight: 50},
		},
	}
	assignments := []*store.Assignment{
		{ExperimentID: "exp-1", UserID: "u-1", Variant: exp.Variants[0]},
		{ExperimentID: "exp-1", UserID: "u-2", Variant: store.Variant{ID: "v-gone", Name: "Removed"}},
	}
	r := Calculate(exp, assignments, nil, Options{})
	if r.OverallResults.TotalParticipants != 1 {
		t.Errorf("total participants = %d, want 1 (stale assignment skipped)", r.OverallResults.TotalParticipants)
	}
}
