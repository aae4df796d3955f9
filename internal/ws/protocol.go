// Package ws implements the realtime websocket endpoint: the authentication
// handshake, the per-connection message loop, and the wiring between the
// audio queue, the recognition supervisor, and the suggestion requester.
package ws

// Client message types.
const (
	TypeAuthenticate   = "authenticate"
	TypeAudio          = "audio"
	TypeGetSuggestions = "get_suggestions"
	TypePing           = "ping"
)

// Server message types.
const (
	TypeAuthSuccess       = "auth_success"
	TypeAuthFailed        = "auth_failed"
	TypeInterimTranscript = "interim_transcript"
	TypeFinalTranscript   = "final_transcript"
	TypeSuggestions       = "suggestions"
	TypePong              = "pong"
	TypeServerShutdown    = "server_shutdown"
)

// PongData is the fixed payload of every pong message.
const PongData = "Connection alive"

// ClientMessage is the envelope for every client-to-server message. Which
// fields are set depends on Type: authenticate carries Token, audio carries
// base64 frame bytes in Data, get_suggestions carries Transcript and an
// optional ConversationHistory.
type ClientMessage struct {
	Type                string   `json:"type"`
	Token               string   `json:"token,omitempty"`
	Data                string   `json:"data,omitempty"`
	Transcript          string   `json:"transcript,omitempty"`
	ConversationHistory []string `json:"conversation_history,omitempty"`
}

// ServerMessage is the envelope for every server-to-client message. Data is a
// string for transcripts and pong, and a string slice for suggestions.
type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func authSuccessMsg() ServerMessage {
	return ServerMessage{Type: TypeAuthSuccess}
}

func authFailedMsg() ServerMessage {
	return ServerMessage{Type: TypeAuthFailed}
}

func transcriptMsg(kind, text string) ServerMessage {
	return ServerMessage{Type: kind, Data: text}
}

func suggestionsMsg(suggestions []string) ServerMessage {
	return ServerMessage{Type: TypeSuggestions, Data: suggestions}
}

func pongMsg() ServerMessage {
	return ServerMessage{Type: TypePong, Data: PongData}
}

// ShutdownMsg is broadcast to every live connection when the server begins a
// graceful shutdown.
func ShutdownMsg() ServerMessage {
	return ServerMessage{Type: TypeServerShutdown, Data: "Server is shutting down"}
}
