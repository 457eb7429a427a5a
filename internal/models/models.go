package models

import "time"

// ItemStatus is the lifecycle state of a single generation item.
type ItemStatus string

const (
	StatusPending   ItemStatus = "pending"
	StatusSuccess   ItemStatus = "success"
	StatusError     ItemStatus = "error"
	StatusCancelled ItemStatus = "cancelled"
)

// EncodedImage is an image payload prepared for transmission to the model,
// or returned by it.
type EncodedImage struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// Subject is a person to be depicted, bound to one source photo.
type Subject struct {
	ID          string `json:"id"`
	PhotoID     string `json:"photo_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Pending     bool   `json:"pending"`
}

// SourcePhoto is an uploaded reference photo and the subjects detected in it.
type SourcePhoto struct {
	ID              string     `json:"id"`
	OriginalName    string     `json:"original_name"`
	StoredPath      string     `json:"-"`
	PreviewURL      string     `json:"preview_url"`
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	AnalysisPending bool       `json:"analysis_pending"`
	AnalysisError   string     `json:"analysis_error,omitempty"`
	Subjects        []*Subject `json:"subjects"`

	// Encoded is the size-capped payload sent to the model as a reference
	// image. Prepared once at upload time.
	Encoded EncodedImage `json:"-"`
}

// GenerationItem is one placeholder/result slot within a batch. Items are
// mutated in place as their remote call settles and are never destroyed
// mid-session, so the UI can keep rendering cancelled and failed slots.
type GenerationItem struct {
	ID           string        `json:"id"`
	Status       ItemStatus    `json:"status"`
	Result       *EncodedImage `json:"result,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	IsQuotaError bool          `json:"is_quota_error,omitempty"`
	RetryCount   int           `json:"retry_count,omitempty"`
}

// Batch is one user-triggered generation request producing a fixed number of
// output variations, all sharing one assembled prompt and reference set.
type Batch struct {
	ID              string            `json:"id"`
	CreatedAt       time.Time         `json:"created_at"`
	ScenePrompt     string            `json:"scene_prompt"`
	OptimizedPrompt string            `json:"optimized_prompt,omitempty"`
	Items           []*GenerationItem `json:"items"`
}

// StudioSession groups the photos, subjects and batches of one editing
// session, as returned to the UI.
type StudioSession struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Photos    []*SourcePhoto `json:"photos"`
	Batches   []*Batch       `json:"batches"`
	Busy      bool           `json:"busy"`
}
