package server

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/splitkit/splitkit/internal/stats"
)

// Dashboard template data structures
type listData struct {
	Experiments []experimentListItem
}

type experimentListItem struct {
	ID                string
	Name              string
	Status            string
	VariantCount      int
	TotalParticipants int
	AvgConversionRate string
	CreatedAt         string
}

type detailData struct {
	ID            string
	Name          string
	Status        string
	Description   string
	CreatedAt     string
	Variants      []detailVariant
	WinnerName    string
	Confident     bool
	ConfidencePct float64
}

type detailVariant struct {
	Name         string
	Participants int
	Conversions  int
	RatePercent  float64
	LiftPercent  float64
	CILower      float64
	CIUpper      float64
	IsWinner     bool
}

var listTmpl = template.Must(template.New("list").Parse(`<!DOCTYPE html>
<html>
<head><title>splitkit</title></head>
<body>
<h1>Experiments</h1>
<table border="1" cellpadding="6">
<tr><th>Name</th><th>Status</th><th>Variants</th><th>Participants</th><th>Avg rate</th><th>Created</th></tr>
{{range .Experiments}}
<tr>
  <td><a href="/dashboard/experiment/{{.ID}}">{{.Name}}</a></td>
  <td>{{.Status}}</td>
  <td>{{.VariantCount}}</td>
  <td>{{.TotalParticipants}}</td>
  <td>{{.AvgConversionRate}}</td>
  <td>{{.CreatedAt}}</td>
</tr>
{{end}}
</table>
</body>
</html>`))

var detailTmpl = template.Must(template.New("detail").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Name}} - splitkit</title></head>
<body>
<p><a href="/dashboard">&larr; experiments</a></p>
<h1>{{.Name}}</h1>
<p>Status: {{.Status}} | Created: {{.CreatedAt}}</p>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<table border="1" cellpadding="6">
<tr><th>Variant</th><th>Participants</th><th>Conversions</th><th>Rate</th><th>Lift</th><th>95% CI</th></tr>
{{range .Variants}}
<tr>
  <td>{{.Name}}{{if .IsWinner}} &#9733;{{end}}</td>
  <td>{{.Participants}}</td>
  <td>{{.Conversions}}</td>
  <td>{{printf "%.2f%%" .RatePercent}}</td>
  <td>{{printf "%.1f%%" .LiftPercent}}</td>
  <td>{{printf "[%.1f%%, %.1f%%]" .CILower .CIUpper}}</td>
</tr>
{{end}}
</table>
{{if .WinnerName}}
<p>{{if .Confident}}{{printf "%.1f%% confident" .ConfidencePct}} &quot;{{.WinnerName}}&quot; is the winner{{else}}Leading: &quot;{{.WinnerName}}&quot; (not yet significant, {{printf "%.1f%%" .ConfidencePct}}){{end}}</p>
{{end}}
</body>
</html>`))

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		http.Error(w, "Failed to load experiments", http.StatusInternalServerError)
		return
	}

	items := make([]experimentListItem, len(experiments))
	for i, exp := range experiments {
		counts, _ := s.store.GetVariantCounts(r.Context(), exp.ID)

		totalParticipants, totalConversions := 0, 0
		for _, c := range counts {
			totalParticipants += c.Participants
			totalConversions += c.Conversions
		}

		avgRate := "0%"
		if totalParticipants > 0 {
			avgRate = formatPercentage(float64(totalConversions) / float64(totalParticipants) * 100)
		}

		items[i] = experimentListItem{
			ID:                exp.ID,
			Name:              exp.Name,
			Status:            string(exp.Status),
			VariantCount:      len(exp.Variants),
			TotalParticipants: totalParticipants,
			AvgConversionRate: avgRate,
			CreatedAt:         exp.CreatedAt.Format("Jan 2, 2006"),
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := listTmpl.Execute(w, listData{Experiments: items}); err != nil {
		s.log.Errorw("failed to render dashboard", "error", err)
	}
}

func (s *Server) handleDashboardExperiment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	exp, err := s.store.GetExperiment(r.Context(), id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	assignments, err := s.store.ListAssignments(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to load assignments", http.StatusInternalServerError)
		return
	}
	events, err := s.store.ListEvents(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to load events", http.StatusInternalServerError)
		return
	}

	result := stats.Calculate(exp, assignments, events, stats.Options{})

	variants := make([]detailVariant, len(result.Variants))
	winnerName := ""
	for i, v := range result.Variants {
		variants[i] = detailVariant{
			Name:         v.Name,
			Participants: v.Participants,
			Conversions:  v.Conversions,
			RatePercent:  v.ConversionRate,
			LiftPercent:  v.Lift,
			CILower:      v.ConfidenceInterval.Lower,
			CIUpper:      v.ConfidenceInterval.Upper,
			IsWinner:     v.IsWinner,
		}
		if v.IsWinner {
			winnerName = v.Name
		}
	}

	data := detailData{
		ID:          exp.ID,
		Name:        exp.Name,
		Status:      string(exp.Status),
		Description: exp.Description,
		CreatedAt:   exp.CreatedAt.Format("Jan 2, 2006"),
		Variants:    variants,
		WinnerName:  winnerName,
	}
	if result.Comparison != nil {
		data.Confident = result.Comparison.Confident
		data.ConfidencePct = result.Comparison.ConfidenceLevel * 100
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := detailTmpl.Execute(w, data); err != nil {
		s.log.Errorw("failed to render experiment page", "error", err)
	}
}

func formatPercentage(p float64) string {
	if p < 0.01 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", p)
}
