// Package media holds the value types that flow through the fetch pipeline.
package media

import (
	"time"
)

// Kind is the media type of a rendition.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Options are the per-request knobs chosen at admission.
type Options struct {
	// AudioOnly selects the best audio-only format (the /audio command).
	AudioOnly bool `json:"audio_only,omitempty"`
	// MaxItems caps how many carousel/playlist entries are delivered.
	// Zero means the resolver default.
	MaxItems int `json:"max_items,omitempty"`
}

// FetchRequest is created on admission and never mutated afterwards.
type FetchRequest struct {
	ID         string    `json:"id"`
	SourceURL  string    `json:"source_url"`
	Principal  string    `json:"principal"`
	ChatID     int64     `json:"chat_id"`
	ReplyTo    int       `json:"reply_to,omitempty"`
	Options    Options   `json:"options"`
	AdmittedAt time.Time `json:"admitted_at"`
}

// Slot is the unit carried by the admission queue. It keeps the conversation
// reference but never a credential scope or file handle.
type Slot struct {
	Request FetchRequest `json:"request"`
}

// QualityHint orders renditions: height first, then bitrate.
type QualityHint struct {
	Height  int     `json:"height,omitempty"`
	Bitrate float64 `json:"bitrate,omitempty"`
}

// Better reports whether q ranks above o.
func (q QualityHint) Better(o QualityHint) bool {
	if q.Height != o.Height {
		return q.Height > o.Height
	}
	return q.Bitrate > o.Bitrate
}

// Rendition is one deliverable item of a resolved request.
type Rendition struct {
	Kind        Kind          `json:"kind"`
	Locator     string        `json:"locator"`
	QualityHint QualityHint   `json:"quality_hint"`
	Duration    time.Duration `json:"duration,omitempty"`
	Width       int           `json:"width,omitempty"`
	Height      int           `json:"height,omitempty"`
	// Size is the advertised byte size, zero when unknown.
	Size        int64    `json:"size,omitempty"`
	Title       string   `json:"title,omitempty"`
	Uploader    string   `json:"uploader,omitempty"`
	Description string   `json:"description,omitempty"`
	MultiItem   bool     `json:"multi_item,omitempty"`
	Index       int      `json:"index"`
	Provider    Provider `json:"provider"`
	// Page is the source URL the rendition was resolved from. Conversion
	// services take the page URL rather than the locator.
	Page string `json:"page,omitempty"`
}

// RenditionList is ordered by ascending Index.
type RenditionList []Rendition

// Caption carries the human-facing text of a request. Only the first
// rendition contributes to it.
type Caption struct {
	Title       string
	Uploader    string
	Description string
}

// Caption returns the caption source of the list. An empty list yields a zero Caption.
func (l RenditionList) Caption() Caption {
	if len(l) == 0 {
		return Caption{}
	}
	first := l[0]
	return Caption{Title: first.Title, Uploader: first.Uploader, Description: first.Description}
}

// Status is the terminal state of one rendition attempt.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome is recorded once per rendition attempt.
type Outcome struct {
	Status Status `json:"status"`
	// Kind is the error code of a failed attempt.
	Kind     string `json:"kind,omitempty"`
	Bytes    int64  `json:"bytes"`
	Strategy string `json:"strategy,omitempty"`
	Index    int    `json:"index"`
	// MessageID is the transport message holding the delivered file.
	MessageID int `json:"message_id,omitempty"`
}

// Result aggregates the outcomes of one request.
type Result struct {
	RequestID string    `json:"request_id"`
	Outcomes  []Outcome `json:"outcomes"`
	// Err is the request-level failure, nil when anything was delivered.
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Count returns how many outcomes have status s.
func (r Result) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Delivered reports whether at least one item reached the chat.
func (r Result) Delivered() bool {
	return r.Count(StatusDelivered) > 0
}

// Bytes sums the bytes moved by the pipeline itself.
func (r Result) Bytes() int64 {
	var n int64
	for _, o := range r.Outcomes {
		n += o.Bytes
	}
	return n
}
