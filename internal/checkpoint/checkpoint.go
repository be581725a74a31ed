// Package checkpoint implements the time-bounded message checkpoints.
//
// Incoming chat messages accumulate in an open buffer. When a message
// arrives more than the configured gap after the previous closure, the
// buffer (including that message) is sealed into a Checkpoint:
//
//   - Hash: SHA-256 over the canonical serialization of the messages
//   - Messages: the exact snapshot the hash was computed from
//
// Checkpoints are keyed by the timestamp of the message that closed them
// and are never modified after closure.
package checkpoint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ChatMessage is a single history entry. Sender and Text may be empty.
type ChatMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp uint64 `json:"timestamp"`
}

// Checkpoint is a sealed batch of chronologically contiguous messages.
type Checkpoint struct {
	// Timestamp of the message that closed this checkpoint.
	Timestamp uint64 `json:"timestamp"`

	Hash     [32]byte      `json:"hash"`
	Messages []ChatMessage `json:"messages"`
}

// ErrHashMismatch is returned by Verify when the stored hash does not
// match the messages.
var ErrHashMismatch = errors.New("checkpoint: hash mismatch")

// Serialize returns the canonical byte encoding of a message sequence.
//
// The encoding is a JSON array of objects with the fields in declaration
// order (sender, text, timestamp). HTML escaping is disabled and the
// trailing newline written by json.Encoder is dropped, so the output only
// depends on the messages and their order.
//
// Sender and Text must be valid UTF-8. The encoder replaces invalid bytes
// with U+FFFD, so distinct invalid inputs could share a hash; the engine
// discards such messages before they reach the buffer.
func Serialize(msgs []ChatMessage) ([]byte, error) {
	if msgs == nil {
		msgs = []ChatMessage{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msgs); err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// HashMessages computes the integrity hash of a message sequence.
func HashMessages(msgs []ChatMessage) ([32]byte, error) {
	data, err := Serialize(msgs)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// HashHex returns the hex encoding of the checkpoint hash.
func (cp *Checkpoint) HashHex() string {
	return hex.EncodeToString(cp.Hash[:])
}

// Verify recomputes the hash over the stored messages.
func (cp *Checkpoint) Verify() error {
	computed, err := HashMessages(cp.Messages)
	if err != nil {
		return err
	}
	if computed != cp.Hash {
		return fmt.Errorf("checkpoint %d: %w", cp.Timestamp, ErrHashMismatch)
	}
	return nil
}

// Contains reports whether any message text contains s as a substring.
func (cp *Checkpoint) Contains(s string) bool {
	for _, m := range cp.Messages {
		if strings.Contains(m.Text, s) {
			return true
		}
	}
	return false
}

// clone returns a deep copy of the checkpoint.
func (cp *Checkpoint) clone() *Checkpoint {
	c := *cp
	c.Messages = append([]ChatMessage(nil), cp.Messages...)
	return &c
}
