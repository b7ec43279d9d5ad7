package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

// ProfileStore keeps profiles and follower history in memory.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]tracker.Profile
	order    []string
	history  map[string][]tracker.FollowerCount
}

// NewProfileStore constructs an empty ProfileStore.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles: make(map[string]tracker.Profile),
		history:  make(map[string][]tracker.FollowerCount),
	}
}

// CreateProfile stores a new profile. Profile URLs must be unique.
func (s *ProfileStore) CreateProfile(_ context.Context, profile tracker.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[profile.ID]; exists {
		return fmt.Errorf("profile %s: %w", profile.ID, tracker.ErrConflict)
	}
	for _, existing := range s.profiles {
		if existing.ProfileURL == profile.ProfileURL {
			return fmt.Errorf("profile url %s: %w", profile.ProfileURL, tracker.ErrConflict)
		}
	}
	s.profiles[profile.ID] = profile
	s.order = append(s.order, profile.ID)
	return nil
}

// GetProfile fetches a profile by ID.
func (s *ProfileStore) GetProfile(_ context.Context, id string) (tracker.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[id]
	if !ok {
		return tracker.Profile{}, fmt.Errorf("profile %s: %w", id, tracker.ErrNotFound)
	}
	return profile, nil
}

// ListProfiles returns every profile with its latest count, oldest profile first.
// Profiles without history report 0 and their creation time.
func (s *ProfileStore) ListProfiles(_ context.Context) ([]tracker.ProfileSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tracker.ProfileSummary, 0, len(s.order))
	for _, id := range s.order {
		profile := s.profiles[id]
		summary := tracker.ProfileSummary{Profile: profile, LastUpdated: profile.CreatedAt}
		if latest, ok := latestCount(s.history[id]); ok {
			summary.FollowerCount = latest.Count
			summary.LastUpdated = latest.RecordedAt
		}
		out = append(out, summary)
	}
	return out, nil
}

// ListTargets returns scrape targets in insertion order.
func (s *ProfileStore) ListTargets(_ context.Context) ([]tracker.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tracker.Target, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.profiles[id].Target())
	}
	return out, nil
}

// UpdateAvatar replaces the stored avatar URL.
func (s *ProfileStore) UpdateAvatar(_ context.Context, id string, avatarURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[id]
	if !ok {
		return fmt.Errorf("profile %s: %w", id, tracker.ErrNotFound)
	}
	profile.AvatarURL = avatarURL
	s.profiles[id] = profile
	return nil
}

// AppendFollowerCount records a new observation.
func (s *ProfileStore) AppendFollowerCount(_ context.Context, count tracker.FollowerCount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[count.ProfileID]; !ok {
		return fmt.Errorf("profile %s: %w", count.ProfileID, tracker.ErrNotFound)
	}
	s.history[count.ProfileID] = append(s.history[count.ProfileID], count)
	return nil
}

// History returns up to limit observations, newest first. limit <= 0 returns all.
func (s *ProfileStore) History(_ context.Context, profileID string, limit int) ([]tracker.FollowerCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.profiles[profileID]; !ok {
		return nil, fmt.Errorf("profile %s: %w", profileID, tracker.ErrNotFound)
	}
	out := append([]tracker.FollowerCount(nil), s.history[profileID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op.
func (s *ProfileStore) Close() error {
	return nil
}

func latestCount(history []tracker.FollowerCount) (tracker.FollowerCount, bool) {
	if len(history) == 0 {
		return tracker.FollowerCount{}, false
	}
	latest := history[0]
	for _, c := range history[1:] {
		if !c.RecordedAt.Before(latest.RecordedAt) {
			latest = c
		}
	}
	return latest, true
}
