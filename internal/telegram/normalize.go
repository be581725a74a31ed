package telegram

import (
	"encoding/json"

	"chatproof/internal/chat"
)

// Normalize turns one raw update payload into a chat message.
//
// Anything that is not a new text message yields chat.Skip: payloads that
// fail to decode, updates without a message (edits, channel posts,
// callbacks), messages without a text body, and negative dates. A missing
// sender username becomes the empty string.
func Normalize(payload []byte) chat.Normalized {
	var u Update
	if err := json.Unmarshal(payload, &u); err != nil {
		return chat.Skip
	}

	msg := u.Message
	if msg == nil || msg.Text == nil || msg.Date < 0 {
		return chat.Skip
	}

	var sender string
	if msg.From != nil {
		sender = msg.From.Username
	}

	return chat.Normalized{
		Kind: chat.Text,
		Message: chat.Inbound{
			ChatID:    msg.Chat.ID,
			Sender:    sender,
			Text:      *msg.Text,
			Timestamp: uint64(msg.Date),
		},
	}
}
