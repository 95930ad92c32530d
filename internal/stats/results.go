// Package stats aggregates recorded assignments and conversion events into
// per-variant results.
//
// Two layers are reported side by side: the "simplified" significance
// heuristics carried over from earlier iterations of this system (fixed
// thresholds, placeholder p-value; not statistically valid, and labeled as
// such in the payload), and a two-proportion z-test comparison with Wilson
// score intervals. Raw participant and conversion counts are always
// included so callers can run a proper test externally.
package stats

import (
	"math"
	"time"

	"github.com/splitkit/splitkit/internal/store"
)

// Heuristic thresholds for the simplified significance mode.
const (
	simplifiedMinParticipants = 100
	simplifiedMinLift         = 5.0
	simplifiedConfidence      = 95.0
	// Placeholder carried over from the legacy significance display; not a
	// computed p-value.
	simplifiedPValue = 0.032
)

// Options controls aggregation behavior.
type Options struct {
	// UniquePerUser caps conversion credit at one per assigned user. The
	// default (false) counts one credit per qualifying event, matching the
	// historical behavior even though it can over-count users who fire
	// multiple conversion events.
	UniquePerUser bool
	// Now is the reference time for duration; zero means time.Now().
	Now time.Time
}

type Results struct {
	ExperimentID   string          `json:"experimentId"`
	Variants       []VariantResult `json:"variants"`
	OverallResults OverallResults  `json:"overallResults"`
	Significance   Significance    `json:"significance"`
	Comparison     *Comparison     `json:"comparison,omitempty"`
}

type VariantResult struct {
	VariantID      string  `json:"variantId"`
	Name           string  `json:"name"`
	Participants   int     `json:"participants"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversionRate"`
	Lift           float64 `json:"lift"`
	IsWinner       bool    `json:"isWinner"`
	Confidence     float64 `json:"confidence"`
	// Normal-approximation interval on the rate, percentage scale,
	// clamped to [0, 100]. Display aid only.
	ConfidenceInterval Interval `json:"confidenceInterval"`
	// Significant is the simplified display flag: |lift| > 5 and more than
	// 100 participants.
	Significant bool `json:"significant"`
}

type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

type OverallResults struct {
	TotalParticipants int          `json:"totalParticipants"`
	TotalConversions  int          `json:"totalConversions"`
	Duration          int          `json:"duration"`
	Status            store.Status `json:"status"`
}

type Significance struct {
	IsSignificant      bool     `json:"isSignificant"`
	PValue             *float64 `json:"pValue,omitempty"`
	ConfidenceInterval float64  `json:"confidenceInterval"`
	Simplified         bool     `json:"simplified"`
}

// Calculate aggregates an experiment's assignments and events. It never
// fails: a nil experiment or empty inputs produce empty results, and events
// whose user has no assignment are skipped.
func Calculate(exp *store.Experiment, assignments []*store.Assignment, events []*store.TrackingEvent, opts Options) *Results {
	if exp == nil || len(exp.Variants) == 0 {
		return &Results{
			Variants:     []VariantResult{},
			Significance: Significance{ConfidenceInterval: simplifiedConfidence, Simplified: true},
		}
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	variants := make([]VariantResult, len(exp.Variants))
	index := make(map[string]int, len(exp.Variants))
	for i, v := range exp.Variants {
		variants[i] = VariantResult{
			VariantID:  v.ID,
			Name:       v.Name,
			Confidence: simplifiedConfidence,
		}
		index[v.ID] = i
	}

	byUser := make(map[string]*store.Assignment, len(assignments))
	for _, a := range assignments {
		i, ok := index[a.Variant.ID]
		if !ok {
			// Assignment references a variant that no longer exists.
			continue
		}
		variants[i].Participants++
		byUser[a.UserID] = a
	}

	credited := make(map[string]bool)
	for _, ev := range events {
		if ev.EventType != store.EventTypeConversion {
			continue
		}
		a, ok := byUser[ev.UserID]
		if !ok {
			continue
		}
		if opts.UniquePerUser {
			if credited[ev.UserID] {
				continue
			}
			credited[ev.UserID] = true
		}
		if i, ok := index[a.Variant.ID]; ok {
			variants[i].Conversions++
		}
	}

	for i := range variants {
		if variants[i].Participants > 0 {
			variants[i].ConversionRate = float64(variants[i].Conversions) / float64(variants[i].Participants) * 100
		}
	}

	// Lift relative to control (index 0). Zero control rate means lift is 0
	// by convention for every variant.
	var controlRate float64
	if variants[0].Participants > 0 {
		controlRate = float64(variants[0].Conversions) / float64(variants[0].Participants)
	}
	for i := range variants[1:] {
		v := &variants[i+1]
		if controlRate > 0 {
			v.Lift = (v.ConversionRate/100 - controlRate) / controlRate * 100
		}
	}

	// Winner: strictly greatest rate, first-encountered wins ties.
	winner := 0
	for i := 1; i < len(variants); i++ {
		if variants[i].ConversionRate > variants[winner].ConversionRate {
			winner = i
		}
	}
	variants[winner].IsWinner = true

	totalParticipants, totalConversions := 0, 0
	for i := range variants {
		totalParticipants += variants[i].Participants
		totalConversions += variants[i].Conversions
		variants[i].ConfidenceInterval = marginInterval(variants[i].ConversionRate, variants[i].Participants)
		variants[i].Significant = math.Abs(variants[i].Lift) > simplifiedMinLift &&
			variants[i].Participants > simplifiedMinParticipants
	}

	duration := 0
	if exp.StartDate != nil {
		if d := int(now.Sub(*exp.StartDate).Hours() / 24); d > 0 {
			duration = d
		}
	}

	sig := Significance{
		IsSignificant:      totalParticipants > simplifiedMinParticipants,
		ConfidenceInterval: simplifiedConfidence,
		Simplified:         true,
	}
	if sig.IsSignificant {
		p := simplifiedPValue
		sig.PValue = &p
	}

	return &Results{
		ExperimentID: exp.ID,
		Variants:     variants,
		OverallResults: OverallResults{
			TotalParticipants: totalParticipants,
			TotalConversions:  totalConversions,
			Duration:          duration,
			Status:            exp.Status,
		},
		Significance: sig,
		Comparison:   compare(variants),
	}
}

// marginInterval is the 95% normal-approximation interval on a percentage
// rate, clamped to [0, 100].
func marginInterval(rate float64, participants int) Interval {
	if participants == 0 {
		return Interval{}
	}
	margin := 1.96 * math.Sqrt(rate*(100-rate)/float64(participants))
	return Interval{
		Lower: math.Max(0, rate-margin),
		Upper: math.Min(100, rate+margin),
	}
}
