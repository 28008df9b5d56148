// Package message defines the unit that flows through connectors: an opaque
// payload tagged as data or as one of the two control signals.
package message

import "fmt"

// Flag tags a message as data or as a control signal.
type Flag uint8

const (
	// Data carries a payload.
	Data Flag = iota
	// EndOfEpoch marks the end of one pass over the data.
	EndOfEpoch
	// EndOfFile marks permanent termination of the stream.
	EndOfFile
)

func (f Flag) String() string {
	switch f {
	case Data:
		return "data"
	case EndOfEpoch:
		return "eoe"
	case EndOfFile:
		return "eof"
	default:
		return fmt.Sprintf("flag(%d)", uint8(f))
	}
}

// Message is what producers push and consumers pop. Payload is never
// interpreted by the engine.
type Message struct {
	Flag    Flag
	Payload any
}

// NewData wraps a payload in a data message.
func NewData(payload any) Message {
	return Message{Flag: Data, Payload: payload}
}

// EOE returns an end-of-epoch control message.
func EOE() Message {
	return Message{Flag: EndOfEpoch}
}

// EOF returns an end-of-file control message.
func EOF() Message {
	return Message{Flag: EndOfFile}
}

func (m Message) IsData() bool { return m.Flag == Data }
func (m Message) IsEOE() bool  { return m.Flag == EndOfEpoch }
func (m Message) IsEOF() bool  { return m.Flag == EndOfFile }

// IsControl reports whether the message is EoE or EoF.
func (m Message) IsControl() bool { return m.Flag != Data }

func (m Message) String() string {
	if m.IsData() {
		return fmt.Sprintf("data(%v)", m.Payload)
	}
	return m.Flag.String()
}
