package bootstrap

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeReadsTokenThenURL(t *testing.T) {
	src := NewLineSource(strings.NewReader("123:abc\nhttps://proofs.example.org\n"))

	var prompts []string
	creds, err := Handshake(src, Credentials{}, func(m string) { prompts = append(prompts, m) })
	require.NoError(t, err)

	assert.Equal(t, Credentials{Token: "123:abc", BaseURL: "https://proofs.example.org"}, creds)
	assert.Equal(t, []string{TokenPrompt, BaseURLPrompt}, prompts)
}

func TestHandshakeUsesPreset(t *testing.T) {
	src := &StaticSource{[]byte("https://late.example.org")}

	creds, err := Handshake(src, Credentials{Token: "preset"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "preset", creds.Token)
	assert.Equal(t, "https://late.example.org", creds.BaseURL)
	assert.Empty(t, *src)

	empty := &StaticSource{}
	creds, err = Handshake(empty, Credentials{Token: "t", BaseURL: "http://x.example"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://x.example", creds.BaseURL)
}

func TestHandshakeErrors(t *testing.T) {
	tests := []struct {
		name     string
		payloads [][]byte
		want     error
	}{
		{"invalid token utf8", [][]byte{{0xff, 0xfe}, []byte("https://x.example")}, ErrInvalidUTF8},
		{"invalid url utf8", [][]byte{[]byte("tok"), {'h', 0xc3, 0x28}}, ErrInvalidUTF8},
		{"no payloads", nil, ErrMissingPayload},
		{"no url", [][]byte{[]byte("tok")}, ErrMissingPayload},
		{"blank token", [][]byte{[]byte("   "), []byte("https://x.example")}, ErrMissingPayload},
		{"relative url", [][]byte{[]byte("tok"), []byte("proofs/here")}, ErrInvalidBaseURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := StaticSource(tt.payloads)
			_, err := Handshake(&src, Credentials{}, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestLineSourceTrimsCRLF(t *testing.T) {
	src := NewLineSource(strings.NewReader("tok\r\nhttps://x.example\r\n"))
	creds, err := Handshake(src, Credentials{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tok", creds.Token)
	assert.Equal(t, "https://x.example", creds.BaseURL)
}
