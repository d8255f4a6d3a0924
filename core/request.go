package core

import "fmt"

// Channel identifies the conversational surface a request arrived on.
// Routing uses it to pick a channel profile with different agent and
// tool availability.
type Channel string

const (
	// ChannelChat is the default text chat surface.
	ChannelChat Channel = "chat"
	// ChannelVoice is the voice surface; voice runs are restricted to
	// tools whose output reads well aloud.
	ChannelVoice Channel = "voice"
)

// Validate reports whether the channel is one of the known surfaces.
func (c Channel) Validate() error {
	switch c {
	case ChannelChat, ChannelVoice:
		return nil
	default:
		return fmt.Errorf("unknown channel %q", c)
	}
}

// Request is a single conversational turn submitted to the engine.
type Request struct {
	// Text is the raw user utterance. Must be non-empty.
	Text string `json:"text"`

	// SessionID ties the turn to an existing conversation. When empty
	// the engine creates a new session and returns its id on the run.
	SessionID string `json:"session_id,omitempty"`

	// Channel defaults to ChannelChat when empty.
	Channel Channel `json:"channel,omitempty"`
}

// Validate checks the request before a run is admitted.
func (r *Request) Validate() error {
	if r == nil {
		return fmt.Errorf("request is nil")
	}
	if r.Text == "" {
		return fmt.Errorf("request text is empty")
	}
	if r.Channel != "" {
		if err := r.Channel.Validate(); err != nil {
			return err
		}
	}
	return nil
}
