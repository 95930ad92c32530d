package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/splitkit/splitkit/internal/bucket"
	"github.com/splitkit/splitkit/internal/segment"
	"github.com/splitkit/splitkit/internal/stats"
	"github.com/splitkit/splitkit/internal/store"
)

type HealthResponse struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	ExperimentsCount int       `json:"experimentsCount"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		Timestamp:        time.Now().UTC(),
		ExperimentsCount: len(experiments),
	})
}

// getExperiment loads the experiment from the path id, answering 404/500
// itself when it cannot.
func (s *Server) getExperiment(w http.ResponseWriter, r *http.Request) (*store.Experiment, bool) {
	id := mux.Vars(r)["id"]
	exp, err := s.store.GetExperiment(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Experiment not found")
		} else {
			s.log.Errorw("failed to load experiment", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return nil, false
	}
	return exp, true
}

// enrichedVariant is a variant plus its derived counters, used in listings.
type enrichedVariant struct {
	store.Variant
	Participants int `json:"participants"`
	Conversions  int `json:"conversions"`
}

type experimentSummary struct {
	*store.Experiment
	Variants []enrichedVariant `json:"variants"`
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		s.log.Errorw("failed to list experiments", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	summaries := make([]experimentSummary, 0, len(experiments))
	for _, exp := range experiments {
		counts, err := s.store.GetVariantCounts(r.Context(), exp.ID)
		if err != nil {
			s.log.Errorw("failed to count variants", "id", exp.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		byVariant := make(map[string]store.VariantCount, len(counts))
		for _, c := range counts {
			byVariant[c.VariantID] = c
		}

		variants := make([]enrichedVariant, len(exp.Variants))
		for i, v := range exp.Variants {
			c := byVariant[v.ID]
			variants[i] = enrichedVariant{
				Variant:      v,
				Participants: c.Participants,
				Conversions:  c.Conversions,
			}
		}
		summaries = append(summaries, experimentSummary{Experiment: exp, Variants: variants})
	}

	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.getExperiment(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

type mutationResponse struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Experiment *store.Experiment `json:"experiment"`
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var exp store.Experiment
	if !decodeJSON(w, r, &exp) {
		return
	}

	// Status and dates are lifecycle-managed; ignore whatever came in.
	exp.Status = store.StatusDraft
	exp.StartDate, exp.EndDate = nil, nil

	if err := exp.Validate(); err != nil {
		s.writeValidationError(w, err)
		return
	}
	if err := segment.Validate(exp.SegmentationRules); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid segmentation rules", err.Error())
		return
	}

	exp.Normalize(time.Now())
	if err := s.store.CreateExperiment(r.Context(), &exp); err != nil {
		s.log.Errorw("failed to create experiment", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, mutationResponse{
		Success:    true,
		Message:    "Experiment created",
		Experiment: &exp,
	})
}

func (s *Server) writeValidationError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrInvalidWeights) {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid variant weights", err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

type updateExperimentRequest struct {
	Name              *string                   `json:"name"`
	Description       *string                   `json:"description"`
	Variants          []store.Variant           `json:"variants"`
	SegmentationRules *[]store.SegmentationRule `json:"segmentationRules"`
}

func (s *Server) handleUpdateExperiment(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.getExperiment(w, r)
	if !ok {
		return
	}

	var req updateExperimentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Name != nil {
		exp.Name = *req.Name
	}
	if req.Description != nil {
		exp.Description = *req.Description
	}
	if req.Variants != nil {
		exp.Variants = req.Variants
	}
	if req.SegmentationRules != nil {
		exp.SegmentationRules = *req.SegmentationRules
	}

	if err := exp.Validate(); err != nil {
		s.writeValidationError(w, err)
		return
	}
	if err := segment.Validate(exp.SegmentationRules); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid segmentation rules", err.Error())
		return
	}

	// Newly supplied variants may be missing generated ids.
	for i := range exp.Variants {
		if exp.Variants[i].ID == "" {
			exp.Variants[i].ID = uuid.New().String()
		}
	}

	exp.UpdatedAt = time.Now()
	if err := s.store.UpdateExperiment(r.Context(), exp); err != nil {
		s.storeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.DeleteExperiment(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Experiment not found")
		return
	}
	s.log.Errorw("store operation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) handleStartExperiment(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.getExperiment(w, r)
	if !ok {
		return
	}

	if !exp.CanTransition(store.StatusRunning) {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid status transition",
			"only draft experiments can be started")
		return
	}
	if err := store.ValidateWeights(exp.Variants); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid variant weights", err.Error())
		return
	}

	now := time.Now()
	exp.Status = store.StatusRunning
	exp.StartDate = &now
	exp.UpdatedAt = now
	if err := s.store.UpdateExperiment(r.Context(), exp); err != nil {
		s.storeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mutationResponse{
		Success:    true,
		Message:    "Experiment started",
		Experiment: exp,
	})
}

func (s *Server) handleStopExperiment(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.getExperiment(w, r)
	if !ok {
		return
	}

	if !exp.CanTransition(store.StatusCompleted) {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid status transition",
			"only running experiments can be stopped")
		return
	}

	now := time.Now()
	exp.Status = store.StatusCompleted
	exp.EndDate = &now
	exp.UpdatedAt = now
	if err := s.store.UpdateExperiment(r.Context(), exp); err != nil {
		s.storeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mutationResponse{
		Success:    true,
		Message:    "Experiment stopped",
		Experiment: exp,
	})
}

type statusRequest struct {
	Status store.Status `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.getExperiment(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if !req.Status.Valid() {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid status value",
			"status must be one of: draft, running, completed")
		return
	}
	if !exp.CanTransition(req.Status) {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid status transition",
			string(exp.Status)+" -> "+string(req.Status))
		return
	}

	now := time.Now()
	switch req.Status {
	case store.StatusRunning:
		if exp.StartDate == nil {
			exp.StartDate = &now
		}
	case store.StatusCompleted:
		exp.EndDate = &now
	}
	exp.Status = req.Status
	exp.UpdatedAt = now

	if err := s.store.UpdateExperiment(r.Context(), exp); err != nil {
		s.storeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, exp)
}

type assignRequest struct {
	UserID     string         `json:"userId"`
	Attributes map[string]any `json:"attributes"`
}

type assignResponse struct {
	ExperimentID string         `json:"experimentId"`
	UserID       string         `json:"userId"`
	Variant      *store.Variant `json:"variant,omitempty"`
	AssignedAt   *time.Time     `json:"assignedAt,omitempty"`
	Eligible     bool           `json:"eligible"`
	Message      string         `json:"message,omitempty"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.getExperiment(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "Missing userId")
		return
	}

	if len(exp.SegmentationRules) > 0 {
		if req.Attributes == nil {
			writeError(w, http.StatusBadRequest, "Missing user attributes")
			return
		}
		if !segment.Matches(exp.SegmentationRules, req.Attributes) {
			// Not an error: the user is simply outside the segment.
			writeJSON(w, http.StatusOK, assignResponse{
				ExperimentID: exp.ID,
				UserID:       req.UserID,
				Eligible:     false,
				Message:      "User does not match experiment segmentation rules",
			})
			return
		}
	}

	variant := bucket.Assign(exp.Variants, req.UserID)
	if variant == nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// PutAssignment is get-or-create: a concurrent or earlier assignment
	// for this user wins and comes back unchanged.
	assignment, _, err := s.store.PutAssignment(r.Context(), &store.Assignment{
		ExperimentID: exp.ID,
		UserID:       req.UserID,
		Variant:      *variant,
		AssignedAt:   time.Now(),
	})
	if err != nil {
		s.storeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, assignResponse{
		ExperimentID: assignment.ExperimentID,
		UserID:       assignment.UserID,
		Variant:      &assignment.Variant,
		AssignedAt:   &assignment.AssignedAt,
		Eligible:     true,
	})
}

type trackRequest struct {
	UserID    string         `json:"userId"`
	EventType string         `json:"eventType"`
	Value     *float64       `json:"value"`
	Metadata  map[string]any `json:"metadata"`
}

type trackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.getExperiment(w, r)
	if !ok {
		return
	}

	var req trackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "Missing userId")
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "Missing eventType")
		return
	}

	value := 1.0
	if req.Value != nil {
		value = *req.Value
	}

	err := s.store.RecordEvent(r.Context(), &store.TrackingEvent{
		ExperimentID: exp.ID,
		UserID:       req.UserID,
		EventType:    req.EventType,
		Value:        value,
		Metadata:     req.Metadata,
		Timestamp:    time.Now(),
	})
	if err != nil {
		s.storeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, trackResponse{
		Success: true,
		Message: "Event recorded",
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.getExperiment(w, r)
	if !ok {
		return
	}

	assignments, err := s.store.ListAssignments(r.Context(), exp.ID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	events, err := s.store.ListEvents(r.Context(), exp.ID)
	if err != nil {
		s.storeError(w, err)
		return
	}

	opts := stats.Options{
		UniquePerUser: r.URL.Query().Get("uniqueConversions") == "true",
	}

	writeJSON(w, http.StatusOK, stats.Calculate(exp, assignments, events, opts))
}
