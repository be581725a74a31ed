// Package chat holds the transport-neutral types exchanged between the
// engine and the chat platform.
package chat

import "context"

// Kind distinguishes a usable inbound message from an ignorable update.
type Kind int

const (
	// NotApplicable marks updates that carry no text message: malformed
	// payloads, edits, joins, stickers and the like. It is not an error.
	NotApplicable Kind = iota
	// Text marks a normalized text message.
	Text
)

func (k Kind) String() string {
	switch k {
	case NotApplicable:
		return "not_applicable"
	case Text:
		return "text"
	default:
		return "unknown"
	}
}

// Inbound is a normalized text message.
type Inbound struct {
	ChatID    int64
	Sender    string
	Text      string
	Timestamp uint64
}

// Normalized is the outcome of normalizing one transport payload.
type Normalized struct {
	Kind    Kind
	Message Inbound
}

// Skip is the NotApplicable outcome.
var Skip = Normalized{Kind: NotApplicable}

// Applicable reports whether the update carried a text message.
func (n Normalized) Applicable() bool {
	return n.Kind == Text
}

// Format hints how the transport should render a notice.
type Format int

const (
	FormatPlain Format = iota
	FormatHTML
)

// Notifier sends outbound notices to a chat.
type Notifier interface {
	SendNotice(ctx context.Context, chatID int64, text string, format Format) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, chatID int64, text string, format Format) error

// SendNotice calls f.
func (f NotifierFunc) SendNotice(ctx context.Context, chatID int64, text string, format Format) error {
	return f(ctx, chatID, text, format)
}
