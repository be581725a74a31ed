package present

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatproof/internal/chat"
	"chatproof/internal/prover"
	"chatproof/internal/publish"
)

type notice struct {
	ChatID int64
	Text   string
	Format chat.Format
}

type recorder struct {
	notices []notice
	failAt  int // 1-based notice index that fails; 0 never fails
}

func (r *recorder) SendNotice(_ context.Context, chatID int64, text string, format chat.Format) error {
	if r.failAt > 0 && len(r.notices)+1 == r.failAt {
		return errors.New("send failed")
	}
	r.notices = append(r.notices, notice{chatID, text, format})
	return nil
}

func (r *recorder) transcript() []byte {
	var b strings.Builder
	for _, n := range r.notices {
		mode := "plain"
		if n.Format == chat.FormatHTML {
			mode = "html"
		}
		fmt.Fprintf(&b, "--- chat %d (%s)\n%s\n", n.ChatID, mode, n.Text)
	}
	return []byte(b.String())
}

type mapPublisher struct {
	entries map[string][]byte
	types   map[string]string
	err     error
}

func newMapPublisher() *mapPublisher {
	return &mapPublisher{entries: map[string][]byte{}, types: map[string]string{}}
}

func (m *mapPublisher) Publish(_ context.Context, id, contentType string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.entries[id] = data
	m.types[id] = contentType
	return publish.PathFor(id), nil
}

func (m *mapPublisher) Fetch(_ context.Context, id string) ([]byte, string, error) {
	d, ok := m.entries[id]
	if !ok {
		return nil, "", publish.ErrNotFound
	}
	return d, m.types[id], nil
}

func sampleResult() prover.Result {
	return prover.Result{
		{Checkpoint: 1700000000, Sender: "alice", Text: "hello world"},
		{Checkpoint: 1700000060, Sender: "", Text: "anonymous <b>hi</b>"},
		{Checkpoint: 1700003600, Sender: "bob", Text: "new world"},
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

// =============================================================================
// Render
// =============================================================================

func TestRenderGolden(t *testing.T) {
	g := newGoldie(t)
	g.Assert(t, "render_matches", []byte(Render(sampleResult())))
}

func TestRenderUsesUTC(t *testing.T) {
	got := Render(prover.Result{{Checkpoint: 108, Sender: "bob", Text: "goodbye world"}})
	assert.Equal(t, "1970-01-01 00:01 bob: goodbye world", got)
}

func TestRenderEmpty(t *testing.T) {
	assert.Equal(t, "", Render(nil))
}

// =============================================================================
// Link / Anchor / Chunk
// =============================================================================

func TestLink(t *testing.T) {
	tests := []struct {
		base, identity, path, want string
	}{
		{"https://proofs.example.org", "chatproof", "/abc", "https://proofs.example.org/chatproof/abc"},
		{"https://proofs.example.org/", "chatproof", "/abc", "https://proofs.example.org/chatproof/abc"},
		{"https://proofs.example.org//", "/chatproof/", "abc", "https://proofs.example.org/chatproof/abc"},
		{"https://proofs.example.org/x", "", "/abc", "https://proofs.example.org/x/abc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Link(tt.base, tt.identity, tt.path))
	}
}

func TestAnchor(t *testing.T) {
	assert.Equal(t,
		`<a href="https://p.example/bot/1">https://p.example/bot/1</a>`,
		Anchor("https://p.example/bot/1"))
	assert.Equal(t,
		`<a href="https://p.example/?a=1&amp;b=2">https://p.example/?a=1&amp;b=2</a>`,
		Anchor("https://p.example/?a=1&b=2"))
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{"short"}, Chunk("short", 10))
	assert.Equal(t, []string{"aaa\nbbb", "ccc"}, Chunk("aaa\nbbb\nccc", 7))
	assert.Equal(t, []string{"abcde", "fgh", "xy"}, Chunk("abcdefgh\nxy", 5))

	for _, part := range Chunk(strings.Repeat("line of text\n", 1000), MaxNoticeLen) {
		assert.LessOrEqual(t, len([]rune(part)), MaxNoticeLen)
	}
}

// =============================================================================
// Present
// =============================================================================

func newPresenter(rec *recorder, pub publish.Publisher) *Presenter {
	return &Presenter{
		Notifier:  rec,
		Publisher: pub,
		BaseURL:   "https://proofs.example.org/",
		Identity:  "chatproof",
		NewID:     func() string { return "3b241101-e2bb-4255-8caf-4136c566a962" },
	}
}

func TestPresentEmptyResult(t *testing.T) {
	rec := &recorder{}
	pub := newMapPublisher()

	out, err := newPresenter(rec, pub).Present(context.Background(), 42, prover.Result{}, prover.Artifact(`{"matches":[]}`))
	require.NoError(t, err)

	require.Len(t, rec.notices, 1)
	assert.Equal(t, notice{42, NoResults, chat.FormatPlain}, rec.notices[0])
	assert.Empty(t, pub.entries, "nothing may be published for an empty result")
	assert.Equal(t, Outcome{Notices: 1}, out)
}

func TestPresentResultGolden(t *testing.T) {
	rec := &recorder{}
	pub := newMapPublisher()
	artifact := prover.Artifact(`{"matches":[],"proof":"00"}`)

	out, err := newPresenter(rec, pub).Present(context.Background(), -1001, sampleResult(), artifact)
	require.NoError(t, err)

	g := newGoldie(t)
	g.Assert(t, "present_transcript", rec.transcript())

	assert.Equal(t, "https://proofs.example.org/chatproof/3b241101-e2bb-4255-8caf-4136c566a962", out.Link)
	assert.Equal(t, 2, out.Notices)
	assert.Equal(t, []byte(artifact), pub.entries[out.ID])
	assert.Equal(t, "application/json", pub.types[out.ID])
}

func TestPresentDefaultIDIsUnique(t *testing.T) {
	rec := &recorder{}
	pub := newMapPublisher()
	p := newPresenter(rec, pub)
	p.NewID = nil

	first, err := p.Present(context.Background(), 1, sampleResult(), prover.Artifact("{}"))
	require.NoError(t, err)
	second, err := p.Present(context.Background(), 1, sampleResult(), prover.Artifact("{}"))
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, pub.entries, 2)
}

func TestPresentPublishFailure(t *testing.T) {
	rec := &recorder{}
	pub := newMapPublisher()
	pub.err = publish.ErrTooLarge

	_, err := newPresenter(rec, pub).Present(context.Background(), 1, sampleResult(), prover.Artifact("{}"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, publish.ErrTooLarge))
	assert.True(t, errors.Is(err, ErrPublishFailed))
	assert.Len(t, rec.notices, 1, "results are sent before publishing")
}

func TestPresentNotifyFailure(t *testing.T) {
	rec := &recorder{failAt: 1}
	pub := newMapPublisher()

	_, err := newPresenter(rec, pub).Present(context.Background(), 1, sampleResult(), prover.Artifact("{}"))
	require.Error(t, err)
	assert.Empty(t, pub.entries)
}
