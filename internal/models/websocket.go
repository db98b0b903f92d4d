package models

// WebSocket event types
const (
	EventModerationSubmit = "moderation.submit"
	EventModerationResult = "moderation.result"
	EventReviewQueued     = "review.queued"
	EventError            = "error"
)

type WSMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

type WSModerationSubmitPayload struct {
	Content   string   `json:"content"`
	Type      string   `json:"type"`
	MediaRefs []string `json:"mediaRefs,omitempty"`
}

type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
