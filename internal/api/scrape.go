package api

import (
	"net/http"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

type scrapeTestRequest struct {
	ProfileURL string `json:"profile_url"`
}

// scrapeTest runs one scrape against an arbitrary profile URL and returns the
// outcome without writing anything.
func (s *Server) scrapeTest(w http.ResponseWriter, r *http.Request) {
	if s.scraper == nil {
		writeError(w, http.StatusServiceUnavailable, "scraper not configured")
		return
	}
	var req scrapeTestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProfileURL == "" {
		writeError(w, http.StatusBadRequest, "profile_url required")
		return
	}
	outcome := s.scraper.ScrapeOne(r.Context(), tracker.Target{
		ID:          "test",
		DisplayName: "test scrape",
		ProfileURL:  req.ProfileURL,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          outcome.OK(),
		"outcome":     outcome,
		"duration_ms": outcome.Duration.Milliseconds(),
	})
}
