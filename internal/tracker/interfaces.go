package tracker

import (
	"context"
	"io"
	"time"
)

// Element is a snapshot of one DOM node matched by a selector.
type Element struct {
	Text    string            `json:"text"`
	Attrs   map[string]string `json:"attrs"`
	Visible bool              `json:"visible"`
}

// Attr returns the named attribute value, or "" when absent.
func (e Element) Attr(name string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// Page is a read-only view of a loaded profile page.
type Page interface {
	// URL returns the resolved URL after redirects.
	URL() string
	// Query returns the elements matching a CSS selector in document order.
	Query(ctx context.Context, selector string) ([]Element, error)
	// BodyText returns the visible text of the whole page.
	BodyText(ctx context.Context) (string, error)
	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)
}

// LoadResult describes a completed navigation.
type LoadResult struct {
	Status   int    `json:"status"`
	FinalURL string `json:"final_url"`
	// Attempts is how many content-ready polls ran before markers appeared.
	Attempts int `json:"attempts"`
}

// Session is an isolated browser context scoped to one target.
type Session interface {
	// Navigate loads url and waits until the content markers are present.
	// Failures are *ScrapeError values of kind page_load_failure or content_not_ready.
	Navigate(ctx context.Context, url string) (LoadResult, error)
	// Page returns the current page. It is only meaningful after Navigate succeeds.
	Page() Page
	// Release tears down the context. It is safe to call more than once.
	Release() error
}

// Launcher creates sessions in the mode it was constructed with.
type Launcher interface {
	Acquire(ctx context.Context) (Session, error)
	Mode() string
}

// ProfileStore persists tracked profiles and their follower history.
type ProfileStore interface {
	CreateProfile(ctx context.Context, profile Profile) error
	GetProfile(ctx context.Context, id string) (Profile, error)
	ListProfiles(ctx context.Context) ([]ProfileSummary, error)
	ListTargets(ctx context.Context) ([]Target, error)
	UpdateAvatar(ctx context.Context, id string, avatarURL string) error
	AppendFollowerCount(ctx context.Context, count FollowerCount) error
	History(ctx context.Context, profileID string, limit int) ([]FollowerCount, error)
	Close() error
}

// JobStore persists refresh jobs and their reports.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	SaveReport(ctx context.Context, jobID string, report BatchReport) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for refresh jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for snapshot naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
