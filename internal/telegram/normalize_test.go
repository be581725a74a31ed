package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chatproof/internal/chat"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    chat.Normalized
	}{
		{
			name:    "text message",
			payload: `{"update_id":1,"message":{"message_id":5,"from":{"id":9,"is_bot":false,"first_name":"Alice","username":"alice"},"chat":{"id":42,"type":"group"},"date":1700000000,"text":"hello world"}}`,
			want: chat.Normalized{Kind: chat.Text, Message: chat.Inbound{
				ChatID: 42, Sender: "alice", Text: "hello world", Timestamp: 1700000000,
			}},
		},
		{
			name:    "missing username",
			payload: `{"update_id":2,"message":{"message_id":6,"from":{"id":9,"is_bot":false,"first_name":"Bob"},"chat":{"id":42,"type":"group"},"date":10,"text":"hi"}}`,
			want: chat.Normalized{Kind: chat.Text, Message: chat.Inbound{
				ChatID: 42, Sender: "", Text: "hi", Timestamp: 10,
			}},
		},
		{
			name:    "missing sender",
			payload: `{"update_id":3,"message":{"message_id":7,"chat":{"id":-100,"type":"supergroup"},"date":11,"text":"anon"}}`,
			want: chat.Normalized{Kind: chat.Text, Message: chat.Inbound{
				ChatID: -100, Text: "anon", Timestamp: 11,
			}},
		},
		{
			name:    "empty text is still text",
			payload: `{"update_id":4,"message":{"message_id":8,"chat":{"id":1,"type":"private"},"date":12,"text":""}}`,
			want:    chat.Normalized{Kind: chat.Text, Message: chat.Inbound{ChatID: 1, Timestamp: 12}},
		},
		{
			name:    "sticker without text",
			payload: `{"update_id":5,"message":{"message_id":9,"chat":{"id":1,"type":"private"},"date":13,"sticker":{}}}`,
			want:    chat.Skip,
		},
		{
			name:    "edited message",
			payload: `{"update_id":6,"edited_message":{"message_id":9,"chat":{"id":1,"type":"private"},"date":13,"text":"x"}}`,
			want:    chat.Skip,
		},
		{
			name:    "negative date",
			payload: `{"update_id":7,"message":{"message_id":9,"chat":{"id":1,"type":"private"},"date":-1,"text":"x"}}`,
			want:    chat.Skip,
		},
		{
			name:    "malformed",
			payload: `{"update_id":`,
			want:    chat.Skip,
		},
		{
			name:    "not an object",
			payload: `[1,2,3]`,
			want:    chat.Skip,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize([]byte(tt.payload))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Kind == chat.Text, got.Applicable())
		})
	}
}
