package models

// MessageKind classifies a status message.
type MessageKind string

const (
	MessageError   MessageKind = "error"
	MessageSuccess MessageKind = "success"
)

// Message is the transient status line shown to the user.
type Message struct {
	Text string      `json:"text" msgpack:"text"`
	Kind MessageKind `json:"kind,omitempty" msgpack:"kind"`
}

// IsZero reports whether there is no message to show.
func (m Message) IsZero() bool {
	return m.Text == ""
}

// ErrorMessage builds an error-kind message.
func ErrorMessage(text string) Message {
	return Message{Text: text, Kind: MessageError}
}

// SuccessMessage builds a success-kind message.
func SuccessMessage(text string) Message {
	return Message{Text: text, Kind: MessageSuccess}
}
