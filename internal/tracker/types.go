package tracker

import "time"

// Target identifies one tracked account. It is read-only for the duration of a run.
type Target struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ProfileURL  string `json:"profile_url"`
}

// ExtractedProfile is the successful result of scraping a single profile page.
type ExtractedProfile struct {
	Username      string `json:"username"`
	FollowerCount int64  `json:"follower_count"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	IsPrivate     bool   `json:"is_private"`
}

// HasAvatar reports whether an avatar URL was found.
func (p ExtractedProfile) HasAvatar() bool {
	return p.AvatarURL != ""
}

// Outcome is the terminal result of one scrape: exactly one of Profile or Err is set.
type Outcome struct {
	Profile     *ExtractedProfile `json:"profile,omitempty"`
	Err         *ScrapeError      `json:"error,omitempty"`
	Duration    time.Duration     `json:"duration_ns"`
	SnapshotURI string            `json:"snapshot_uri,omitempty"`
}

// Success wraps an extracted profile in an Outcome.
func Success(profile ExtractedProfile) Outcome {
	return Outcome{Profile: &profile}
}

// Failure builds a failed Outcome of the given kind.
func Failure(kind ErrorKind, message string) Outcome {
	return Outcome{Err: NewError(kind, message)}
}

// FailureFromError converts any error into a failed Outcome, keeping the kind of a *ScrapeError.
func FailureFromError(err error) Outcome {
	if err == nil {
		return Failure(KindUnknown, "unknown error")
	}
	return Outcome{Err: AsScrapeError(err)}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Profile != nil
}

// Kind returns the failure kind, or the empty string for successes.
func (o Outcome) Kind() ErrorKind {
	if o.Err == nil {
		return ""
	}
	return o.Err.Kind
}

// Profile is a tracked account as persisted by a ProfileStore.
type Profile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ProfileURL string    `json:"profile_url"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Target returns the scrape target view of the profile.
func (p Profile) Target() Target {
	return Target{ID: p.ID, DisplayName: p.Name, ProfileURL: p.ProfileURL}
}

// FollowerCount is one time-stamped observation of a profile's follower count.
type FollowerCount struct {
	ID         string    `json:"id"`
	ProfileID  string    `json:"profile_id"`
	Count      int64     `json:"count"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ProfileSummary pairs a profile with its most recent observation.
type ProfileSummary struct {
	Profile
	FollowerCount int64     `json:"follower_count"`
	LastUpdated   time.Time `json:"last_updated"`
}
