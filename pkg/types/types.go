// Package types holds small value types shared across the SignConnect
// provider interfaces and pipeline packages.
package types

// Transcript is a single recognition result produced by an STT session.
type Transcript struct {
	// Text is the transcribed text. May be empty for keep-alive results.
	Text string

	// IsFinal reports whether the provider has committed to this result.
	// Non-final (interim) transcripts may be revised by later results.
	IsFinal bool

	// Confidence is the provider's confidence in the range [0.0, 1.0].
	// Zero when the provider does not report confidence for this result.
	Confidence float64
}

// Message is a single turn in an LLM conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser, RoleAssistant.
	Role string

	// Content is the message text.
	Content string
}

// Conversation roles understood by every LLM provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
