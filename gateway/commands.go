package gateway

// Command is the closed set of control-frame commands. Anything the
// parser does not recognize maps to CommandUnknown rather than falling
// through silently.
type Command int

const (
	CommandUnknown Command = iota
	CommandStopRecording
	CommandGetTranscript
	CommandClearTranscript
	CommandGetSessionInfo
)

func (c Command) String() string {
	switch c {
	case CommandStopRecording:
		return "stop_recording"
	case CommandGetTranscript:
		return "get_transcript"
	case CommandClearTranscript:
		return "clear_transcript"
	case CommandGetSessionInfo:
		return "get_session_info"
	default:
		return "unknown"
	}
}

func ParseCommand(s string) Command {
	switch s {
	case "stop_recording":
		return CommandStopRecording
	case "get_transcript":
		return CommandGetTranscript
	case "clear_transcript":
		return CommandClearTranscript
	case "get_session_info":
		return CommandGetSessionInfo
	default:
		return CommandUnknown
	}
}

// controlFrame is the client->server JSON shape. An init frame sets
// Type; every later control frame sets Command.
type controlFrame struct {
	Type         string `json:"type,omitempty"`
	Command      string `json:"command,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
}
