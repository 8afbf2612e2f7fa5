package protocol

import "time"

// NavigationEvent is emitted when the listener recognizes a navigation phrase.
type NavigationEvent struct {
	Command   string    `json:"command"`
	Phrase    string    `json:"phrase"`
	SessionID uint64    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// AssistantStatus reports the listener state over HTTP and the bus.
type AssistantStatus struct {
	State     string    `json:"state"`
	SessionID uint64    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HTTP bodies.
type (
	SynthesisRequest struct {
		Text string `json:"text"`
	}
	SynthesisResponse struct {
		AudioURL string `json:"audioUrl"`
	}
	TranscriptResponse struct {
		Text string `json:"text"`
	}
	MessageResponse struct {
		Message string `json:"message"`
	}
	ErrorResponse struct {
		Error string `json:"error"`
	}
)

const (
	SubjectNavigation = "assistant.navigation"
	SubjectStatus     = "assistant.status"
)
