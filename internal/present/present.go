// Package present renders proof results back to the chat and publishes
// the proof artifact behind a shareable link.
package present

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatproof/internal/chat"
	"chatproof/internal/prover"
	"chatproof/internal/publish"
)

// NoResults is sent when the prover proved nothing.
const NoResults = "No results found"

// DateLayout formats match timestamps, always in UTC.
const DateLayout = "2006-01-02 15:04"

// MaxNoticeLen is the Bot API limit on message length in characters.
const MaxNoticeLen = 4096

// ErrPublishFailed marks a Present call that delivered the matches but
// could not publish the artifact, so no link was sent.
var ErrPublishFailed = errors.New("publish artifact")

// Render formats a result as one line per match:
//
//	2023-11-14 22:13 alice: hello world
func Render(result prover.Result) string {
	lines := make([]string, 0, len(result))
	for _, m := range result {
		ts := time.Unix(int64(m.Checkpoint), 0).UTC().Format(DateLayout)
		lines = append(lines, ts+" "+m.Sender+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}

// Chunk splits text into pieces of at most limit runes, breaking at line
// boundaries where possible.
func Chunk(text string, limit int) []string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		for len(runes) > limit {
			flush()
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}

		need := len(runes)
		if curLen > 0 {
			need++
		}
		if curLen+need > limit {
			flush()
			need = len(runes)
		}
		if curLen > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(string(runes))
		curLen += need
	}
	flush()
	return chunks
}

// Link builds the public URL of a published path:
// <base>/<identity><path>, with exactly one slash between parts.
func Link(baseURL, identity, path string) string {
	base := strings.TrimRight(baseURL, "/")
	identity = strings.Trim(identity, "/")
	path = "/" + strings.TrimLeft(path, "/")
	if identity == "" {
		return base + path
	}
	return base + "/" + identity + path
}

// Anchor renders link as an HTML hyperlink whose text is the link itself.
func Anchor(link string) string {
	escaped := html.EscapeString(link)
	return `<a href="` + escaped + `">` + escaped + `</a>`
}

// Presenter delivers proof outcomes.
type Presenter struct {
	Notifier  chat.Notifier
	Publisher publish.Publisher
	BaseURL   string
	Identity  string

	// NewID returns a fresh artifact id. Defaults to a random UUID.
	NewID func() string
}

// Outcome describes what Present delivered.
type Outcome struct {
	Notices int
	ID      string
	Link    string
}

// Present sends the outcome of a proof to chatID.
//
// An empty result sends only NoResults; nothing is published. Otherwise
// the rendered matches are sent, the artifact is published under a fresh
// id, and the link is sent as an HTML hyperlink.
func (p *Presenter) Present(ctx context.Context, chatID int64, result prover.Result, artifact prover.Artifact) (Outcome, error) {
	var out Outcome

	if len(result) == 0 {
		if err := p.Notifier.SendNotice(ctx, chatID, NoResults, chat.FormatPlain); err != nil {
			return out, fmt.Errorf("send no-results notice: %w", err)
		}
		out.Notices = 1
		return out, nil
	}

	for _, part := range Chunk(Render(result), MaxNoticeLen) {
		if err := p.Notifier.SendNotice(ctx, chatID, part, chat.FormatPlain); err != nil {
			return out, fmt.Errorf("send result notice: %w", err)
		}
		out.Notices++
	}

	newID := p.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	out.ID = newID()

	path, err := p.Publisher.Publish(ctx, out.ID, prover.ContentType, artifact)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	out.Link = Link(p.BaseURL, p.Identity, path)
	if err := p.Notifier.SendNotice(ctx, chatID, Anchor(out.Link), chat.FormatHTML); err != nil {
		return out, fmt.Errorf("send link notice: %w", err)
	}
	out.Notices++
	return out, nil
}
