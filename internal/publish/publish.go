// Package publish binds proof artifacts to retrievable paths.
//
// An artifact published under id is served at /<id> relative to the
// daemon's identity; the presenter turns that path into the public link.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Fetch for unknown or expired ids.
	ErrNotFound = errors.New("publish: artifact not found")
	// ErrTooLarge is returned when an artifact exceeds the size limit.
	ErrTooLarge = errors.New("publish: artifact too large")
	// ErrInvalidID is returned for ids that cannot form a single path
	// segment.
	ErrInvalidID = errors.New("publish: invalid id")
)

// Publisher makes artifacts retrievable.
type Publisher interface {
	// Publish stores data under id and returns its path ("/" + id).
	Publish(ctx context.Context, id, contentType string, data []byte) (string, error)
	// Fetch returns a published artifact and its content type.
	Fetch(ctx context.Context, id string) (data []byte, contentType string, err error)
}

// PathFor returns the path an artifact id is bound at.
func PathFor(id string) string {
	return "/" + id
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, "/?#") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func checkSize(data []byte, limit int) error {
	if limit > 0 && len(data) > limit {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), limit)
	}
	return nil
}

// Entries are stored as the content type, a NUL byte, then the data.
func encodeEntry(contentType string, data []byte) []byte {
	out := make([]byte, 0, len(contentType)+1+len(data))
	out = append(out, contentType...)
	out = append(out, 0)
	return append(out, data...)
}

func decodeEntry(entry []byte) ([]byte, string, error) {
	i := bytes.IndexByte(entry, 0)
	if i < 0 {
		return nil, "", errors.New("publish: corrupt entry")
	}
	return entry[i+1:], string(entry[:i]), nil
}
