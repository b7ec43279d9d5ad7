package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 1000
)

type createProfileRequest struct {
	Name       string `json:"name"`
	ProfileURL string `json:"profile_url"`
	AvatarURL  string `json:"avatar_url"`
}

type addCountRequest struct {
	Count *int64 `json:"count"`
}

type updateAvatarRequest struct {
	AvatarURL string `json:"avatar_url"`
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.profiles.ListProfiles(r.Context())
	if err != nil {
		s.writeStoreError(w, err, "profiles")
		return
	}
	if profiles == nil {
		profiles = []tracker.ProfileSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	if err := validateHTTPURL(req.ProfileURL); err != nil {
		writeError(w, http.StatusBadRequest, "profile_url: "+err.Error())
		return
	}
	if req.AvatarURL != "" {
		if err := validateHTTPURL(req.AvatarURL); err != nil {
			writeError(w, http.StatusBadRequest, "avatar_url: "+err.Error())
			return
		}
	}
	id, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate id")
		return
	}
	profile := tracker.Profile{
		ID:         id,
		Name:       req.Name,
		ProfileURL: req.ProfileURL,
		AvatarURL:  req.AvatarURL,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.profiles.CreateProfile(r.Context(), profile); err != nil {
		s.writeStoreError(w, err, "profile")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"profile": profile})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	profile, err := s.profiles.GetProfile(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "profile")
		return
	}
	history, err := s.profiles.History(r.Context(), id, 0)
	if err != nil {
		s.writeStoreError(w, err, "profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": profile, "history": nonNil(history)})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}
	history, err := s.profiles.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeStoreError(w, err, "profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": nonNil(history)})
}

func (s *Server) addCount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req addCountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Count == nil || *req.Count < 0 {
		writeError(w, http.StatusBadRequest, "count must be a non-negative integer")
		return
	}
	if _, err := s.profiles.GetProfile(r.Context(), id); err != nil {
		s.writeStoreError(w, err, "profile")
		return
	}
	countID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate id")
		return
	}
	count := tracker.FollowerCount{
		ID:         countID,
		ProfileID:  id,
		Count:      *req.Count,
		RecordedAt: s.clock.Now(),
	}
	if err := s.profiles.AppendFollowerCount(r.Context(), count); err != nil {
		s.writeStoreError(w, err, "profile")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"count": count})
}

func (s *Server) updateAvatar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateAvatarRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateHTTPURL(req.AvatarURL); err != nil {
		writeError(w, http.StatusBadRequest, "avatar_url: "+err.Error())
		return
	}
	if err := s.profiles.UpdateAvatar(r.Context(), id, req.AvatarURL); err != nil {
		s.writeStoreError(w, err, "profile")
		return
	}
	profile, err := s.profiles.GetProfile(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": profile})
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) url")
	}
	return nil
}

func nonNil(history []tracker.FollowerCount) []tracker.FollowerCount {
	if history == nil {
		return []tracker.FollowerCount{}
	}
	return history
}
