package domain

// SessionState is where the single session is in its lifecycle.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionConnecting
	SessionActive
	SessionEnding
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionConnecting:
		return "connecting"
	case SessionActive:
		return "active"
	case SessionEnding:
		return "ending"
	default:
		return "unknown"
	}
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to SessionState) bool {
	switch from {
	case SessionIdle:
		return to == SessionConnecting
	case SessionConnecting:
		return to == SessionActive || to == SessionEnding
	case SessionActive:
		return to == SessionEnding
	case SessionEnding:
		return to == SessionIdle
	}
	return false
}

// Intent is the session state the user asked for last.
type Intent int

const (
	IntentEnd Intent = iota
	IntentStart
)

func (i Intent) String() string {
	if i == IntentStart {
		return "start"
	}
	return "end"
}

func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// AppConfig is the static option set supplied at startup.
type AppConfig struct {
	SupportsChatInput         bool   `json:"supportsChatInput" mapstructure:"supports_chat_input"`
	SupportsVideoInput        bool   `json:"supportsVideoInput" mapstructure:"supports_video_input"`
	SupportsScreenShare       bool   `json:"supportsScreenShare" mapstructure:"supports_screen_share"`
	IsPreConnectBufferEnabled bool   `json:"isPreConnectBufferEnabled" mapstructure:"is_pre_connect_buffer_enabled"`
	AgentName                 string `json:"agentName,omitempty" mapstructure:"agent_name"`
	SandboxID                 string `json:"sandboxId,omitempty" mapstructure:"sandbox_id"`
}

// DefaultAppConfig enumerates every option with its default.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		SupportsChatInput:         true,
		SupportsVideoInput:        false,
		SupportsScreenShare:       false,
		IsPreConnectBufferEnabled: true,
	}
}
