package api

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/aggregate"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/state"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template helpers. They must be registered before parsing.
var funcMap = template.FuncMap{
	// deref prints unknown sensor values as 0.
	"deref": func(f *float64) float64 {
		if f == nil {
			return 0
		}
		return *f
	},
	"to_json": func(v any) template.JS {
		b, err := json.Marshal(v)
		if err != nil {
			return template.JS("[]")
		}
		return template.JS(b)
	},
}

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(funcMap).ParseFS(templateFS, "templates/*.html"))

type dashboardData struct {
	Title  string
	Window int
	State  state.Snapshot
	Report aggregate.Report
}

// handleDashboard: GET / renders the live state and the statistics.
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reporter.Summary(r.Context())
	if err != nil {
		h.logger.Error("Failed to build sensor summary", "error", err)
		http.Error(w, "Database unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = dashboardTmpl.ExecuteTemplate(w, "index.html", dashboardData{
		Title:  "ESP32 Monitoring",
		Window: aggregate.Window,
		State:  h.cache.Get(),
		Report: rep,
	})
	if err != nil {
		h.logger.Error("Template rendering failed", "error", err)
	}
}
