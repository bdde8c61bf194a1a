package domain

// AgentEvent is a decoded side-channel event. The set of variants is closed:
// ImageEvent and UnknownEvent.
type AgentEvent interface {
	agentEvent()
	Tag() string
}

const TagImage = "image"

// ImageEvent asks the UI to show a generated image.
type ImageEvent struct {
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
}

func (ImageEvent) agentEvent() {}
func (ImageEvent) Tag() string { return TagImage }

// UnknownEvent carries a tag this client does not understand. It is inert.
type UnknownEvent struct {
	Type string
}

func (UnknownEvent) agentEvent()   {}
func (e UnknownEvent) Tag() string { return e.Type }
