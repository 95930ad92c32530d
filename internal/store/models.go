package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidWeights marks weight-sum violations so the HTTP layer can map
// them to the canonical client error.
var ErrInvalidWeights = errors.New("invalid variant weights")

type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// WeightEpsilon is the tolerated floating-point drift when checking that
// variant weights sum to 100.
const WeightEpsilon = 0.01

// EventTypeConversion is the event type that counts toward conversion stats.
const EventTypeConversion = "conversion"

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusCompleted:
		return true
	}
	return false
}

// Experiment is the canonical experiment definition. Variant order is
// significant: index 0 is the control for lift calculations.
type Experiment struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Status            Status             `json:"status"`
	Variants          []Variant          `json:"variants"`
	SegmentationRules []SegmentationRule `json:"segmentationRules,omitempty"`
	StartDate         *time.Time         `json:"startDate,omitempty"`
	EndDate           *time.Time         `json:"endDate,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

type Variant struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Weight float64        `json:"weight"`
	Config map[string]any `json:"config,omitempty"`
}

// variantAlias accepts the deprecated trafficPercentage field on input.
// Stored and serialized experiments always use weight.
type variantAlias struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Weight            *float64       `json:"weight"`
	TrafficPercentage *float64       `json:"trafficPercentage"`
	Config            map[string]any `json:"config"`
}

func (v *Variant) UnmarshalJSON(data []byte) error {
	var a variantAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	v.ID = a.ID
	v.Name = a.Name
	v.Config = a.Config
	switch {
	case a.Weight != nil:
		v.Weight = *a.Weight
	case a.TrafficPercentage != nil:
		v.Weight = *a.TrafficPercentage
	}
	return nil
}

// SegmentationRule gates experiment eligibility on a user attribute.
type SegmentationRule struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Assignment records which variant a user was bucketed into. The variant is
// a snapshot taken at assignment time; at most one assignment exists per
// (experiment, user) pair.
type Assignment struct {
	ExperimentID string    `json:"experimentId"`
	UserID       string    `json:"userId"`
	Variant      Variant   `json:"variant"`
	AssignedAt   time.Time `json:"assignedAt"`
}

// TrackingEvent is an append-only event. Value defaults to 1 at the boundary.
type TrackingEvent struct {
	ExperimentID string         `json:"experimentId"`
	UserID       string         `json:"userId"`
	EventType    string         `json:"eventType"`
	Value        float64        `json:"value"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// VariantCount holds derived per-variant counters. Conversions here are
// distinct converted users, used for list enrichment.
type VariantCount struct {
	VariantID    string `json:"variantId"`
	Participants int    `json:"participants"`
	Conversions  int    `json:"conversions"`
}

// Validate checks the experiment definition: name present, at least two
// variants, weights summing to 100. Segmentation rule shape is checked
// separately by the segment package.
func (e *Experiment) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("experiment name is required")
	}
	if len(e.Variants) < 2 {
		return fmt.Errorf("at least 2 variants are required")
	}
	for i, v := range e.Variants {
		if v.Name == "" {
			return fmt.Errorf("variant %d: name is required", i)
		}
		if v.Weight < 0 || v.Weight > 100 {
			return fmt.Errorf("variant %q: weight must be between 0 and 100", v.Name)
		}
	}
	return ValidateWeights(e.Variants)
}

// ValidateWeights enforces the sum-to-100 invariant within WeightEpsilon.
func ValidateWeights(variants []Variant) error {
	var sum float64
	for _, v := range variants {
		sum += v.Weight
	}
	if math.Abs(sum-100) > WeightEpsilon {
		return fmt.Errorf("%w: must sum to 100, got %g", ErrInvalidWeights, sum)
	}
	return nil
}

// Normalize fills in generated ids and the draft status for a freshly
// created experiment.
func (e *Experiment) Normalize(now time.Time) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = StatusDraft
	}
	for i := range e.Variants {
		if e.Variants[i].ID == "" {
			e.Variants[i].ID = uuid.New().String()
		}
	}
	e.CreatedAt = now
	e.UpdatedAt = now
}

// CanTransition reports whether a status change is a legal lifecycle step:
// draft -> running -> completed, no reopening.
func (e *Experiment) CanTransition(to Status) bool {
	switch to {
	case StatusRunning:
		return e.Status == StatusDraft
	case StatusCompleted:
		return e.Status == StatusRunning
	case StatusDraft:
		return e.Status == StatusDraft
	}
	return false
}
