package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentType identifies where a piece of content will be published
type ContentType string

const (
	ContentTypePost      ContentType = "post"
	ContentTypeComment   ContentType = "comment"
	ContentTypeProfile   ContentType = "profile"
	ContentTypeMessage   ContentType = "message"
	ContentTypeImageText ContentType = "image_text"
)

// Valid reports whether t is one of the known content types
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypePost, ContentTypeComment, ContentTypeProfile, ContentTypeMessage, ContentTypeImageText:
		return true
	}
	return false
}

// Status is the moderation verdict
type Status string

const (
	StatusApproved      Status = "approved"
	StatusFlagged       Status = "flagged"
	StatusPendingReview Status = "pending_review"
	StatusRejected      Status = "rejected"
)

// ModerationRequest is a single piece of content submitted for moderation
type ModerationRequest struct {
	Content     string      `json:"content"`
	ContentType ContentType `json:"contentType"`
	AuthorID    string      `json:"authorId"`
	MediaRefs   []string    `json:"mediaRefs,omitempty"`
}

// ModerationResult is the verdict produced for a request. It is never mutated
// after being returned; use Clone before changing a cached copy.
type ModerationResult struct {
	Status              Status   `json:"status"`
	RiskScore           int      `json:"riskScore"`
	Flags               []string `json:"flags"`
	Confidence          float64  `json:"confidence"`
	ProcessingTimeMs    int64    `json:"processingTimeMs"`
	RequiresHumanReview bool     `json:"requiresHumanReview"`
	Reason              string   `json:"reason,omitempty"`
	Suggestions         []string `json:"suggestions,omitempty"`
}

// Clone returns a deep copy of r
func (r *ModerationResult) Clone() *ModerationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Flags = append([]string(nil), r.Flags...)
	if out.Flags == nil {
		out.Flags = []string{}
	}
	if r.Suggestions != nil {
		out.Suggestions = append([]string(nil), r.Suggestions...)
	}
	return &out
}

// Priority orders entries in the human review queue
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// PriorityForScore derives the review priority from a risk score
func PriorityForScore(score int) Priority {
	switch {
	case score >= 20:
		return PriorityHigh
	case score >= 10:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Rank orders priorities; higher is more urgent
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ReviewQueueEntry is content waiting for a human moderator
type ReviewQueueEntry struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	AuthorID    string           `json:"authorId" db:"author_id"`
	ContentType ContentType      `json:"contentType" db:"content_type"`
	Content     string           `json:"content" db:"content"`
	Result      ModerationResult `json:"result" db:"result"`
	Priority    Priority         `json:"priority" db:"priority"`
	QueuedAt    time.Time        `json:"queuedAt" db:"queued_at"`
}

// AuditLogEntry records every verdict the engine produced
type AuditLogEntry struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	AuthorID    string         `json:"authorId" db:"author_id"`
	ContentType ContentType    `json:"contentType" db:"content_type"`
	ContentHash string         `json:"contentHash" db:"content_hash"`
	Action      Status         `json:"action" db:"action"`
	RiskScore   int            `json:"riskScore" db:"risk_score"`
	Flags       []string       `json:"flags" db:"flags"`
	Reason      *string        `json:"reason,omitempty" db:"reason"`
	Metadata    map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time      `json:"createdAt" db:"created_at"`
}

// ModerateContentRequest is the HTTP payload accepted by the moderate endpoint
type ModerateContentRequest struct {
	Content  string `json:"content"`
	Type     string `json:"type" binding:"required"`
	UserID   string `json:"userId" binding:"required"`
	ImageURL string `json:"imageUrl,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// ModerateContentResponse wraps a verdict for HTTP callers
type ModerateContentResponse struct {
	Success    bool              `json:"success"`
	Moderation *ModerationResult `json:"moderation"`
}
