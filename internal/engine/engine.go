// Package engine runs the sequential event loop: every inbound update is
// fully handled, either appended to the checkpoint history or executed as
// a proof command, before the next one is read.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"chatproof/internal/chat"
	"chatproof/internal/checkpoint"
	"chatproof/internal/health"
	"chatproof/internal/logging"
	"chatproof/internal/metrics"
	"chatproof/internal/present"
	"chatproof/internal/prover"
	"chatproof/internal/search"
	"chatproof/internal/store"
)

// DefaultCommandPrefix introduces a proof command. The search string is
// everything after it, verbatim.
const DefaultCommandPrefix = "/prove "

// FailureNotice is sent, best effort, when a proof request fails.
const FailureNotice = "Proof request failed, please try again"

// LinkFailureNotice is sent, best effort, when the matches were delivered
// but the proof artifact could not be published.
const LinkFailureNotice = "Proof link could not be published, please try again"

// Poller yields raw inbound payloads in delivery order.
type Poller interface {
	Poll(ctx context.Context) ([][]byte, error)
}

// Journal records closed checkpoints and proof requests.
type Journal interface {
	RecordCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error
	RecordProof(ctx context.Context, p *store.ProofRecord) error
}

// Feed is told about every closed checkpoint.
type Feed interface {
	CheckpointClosed(cp *checkpoint.Checkpoint)
}

// Config holds engine settings.
type Config struct {
	// CommandPrefix defaults to DefaultCommandPrefix.
	CommandPrefix string
	// Gap is the checkpoint closure threshold in seconds.
	Gap uint64
	// Start is the initial last-closure time. Zero means now.
	Start uint64
	// RetryDelay is the pause after a failed poll.
	RetryDelay time.Duration
	// IsFatal reports poll errors that must stop the loop.
	IsFatal func(error) bool
}

// Deps are the engine's collaborators. Normalize, Coordinator, Presenter
// and Notifier are required; the rest may be nil.
type Deps struct {
	Normalize   func([]byte) chat.Normalized
	Coordinator *prover.Coordinator
	Presenter   *present.Presenter
	Notifier    chat.Notifier

	Journal   Journal
	Feed      Feed
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
	Audit     *logging.AuditLogger
	Heartbeat *health.Heartbeat
}

// Engine owns the open buffer, the last closure time and the checkpoint
// store. It is not safe for concurrent use: Handle and Run must be called
// from one goroutine.
type Engine struct {
	cfg   Config
	deps  Deps
	store *checkpoint.Store
	acc   *checkpoint.Accumulator
	log   *logging.Logger
	now   func() time.Time
}

// New creates an engine with an empty store.
func New(cfg Config, deps Deps) *Engine {
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = DefaultCommandPrefix
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Start == 0 {
		cfg.Start = uint64(time.Now().Unix())
	}

	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}

	st := checkpoint.NewStore()
	return &Engine{
		cfg:   cfg,
		deps:  deps,
		store: st,
		acc:   checkpoint.NewAccumulator(st, cfg.Start, cfg.Gap),
		log:   log.WithComponent("engine"),
		now:   time.Now,
	}
}

// Store returns the checkpoint store.
func (e *Engine) Store() *checkpoint.Store {
	return e.store
}

// Pending returns a copy of the open buffer.
func (e *Engine) Pending() []checkpoint.ChatMessage {
	return e.acc.Pending()
}

// LastCheckpoint returns the last closure time.
func (e *Engine) LastCheckpoint() uint64 {
	return e.acc.LastCheckpoint()
}

// Handle processes one inbound payload.
//
// Ignorable payloads, and texts or senders that are not valid UTF-8,
// return nil with no effect. A text starting with the
// command prefix runs a proof request and is never recorded in history;
// any other text is appended to the open buffer.
func (e *Engine) Handle(ctx context.Context, payload []byte) error {
	n := e.deps.Normalize(payload)
	if !n.Applicable() {
		e.deps.Metrics.UpdateDiscarded()
		e.log.Debug("update ignored", "kind", n.Kind.String())
		return nil
	}

	msg := n.Message
	if !utf8.ValidString(msg.Text) || !utf8.ValidString(msg.Sender) {
		e.deps.Metrics.UpdateDiscarded()
		e.log.Warn("update ignored", "reason", "invalid UTF-8", "chat_id", msg.ChatID)
		return nil
	}
	if s, ok := strings.CutPrefix(msg.Text, e.cfg.CommandPrefix); ok {
		return e.prove(ctx, msg.ChatID, s)
	}
	return e.record(ctx, msg)
}

func (e *Engine) record(ctx context.Context, msg chat.Inbound) error {
	cp, err := e.acc.Append(checkpoint.ChatMessage{
		Sender:    msg.Sender,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}

	e.deps.Metrics.MessageIngested(len(e.acc.Pending()))
	e.log.Debug("message recorded", "sender", msg.Sender, "text", msg.Text, "timestamp", msg.Timestamp)

	if cp == nil {
		return nil
	}

	e.log.Info("checkpoint closed",
		"timestamp", cp.Timestamp,
		"hash", cp.HashHex(),
		"messages", len(cp.Messages),
	)
	e.deps.Metrics.CheckpointClosed(cp.Timestamp, len(cp.Messages))
	if err := e.deps.Audit.LogCheckpoint(ctx, cp.Timestamp, cp.HashHex(), len(cp.Messages)); err != nil {
		e.log.Warn("audit write failed", "error", err)
	}
	if e.deps.Journal != nil {
		if err := e.deps.Journal.RecordCheckpoint(ctx, cp); err != nil {
			e.deps.Metrics.JournalError()
			e.log.Error("journal checkpoint failed", "timestamp", cp.Timestamp, "error", err)
		}
	}
	if e.deps.Feed != nil {
		e.deps.Feed.CheckpointClosed(cp)
	}
	return nil
}

func (e *Engine) prove(ctx context.Context, chatID int64, s string) error {
	candidates := search.Filter(e.store, s)
	log := e.log.With("chat_id", chatID, "candidates", len(candidates))
	log.Info("proof requested")
	log.Debug("proof search", "search", s)

	if err := e.deps.Audit.LogProofRequested(ctx, chatID, len(candidates)); err != nil {
		log.Warn("audit write failed", "error", err)
	}

	rec := &store.ProofRecord{
		ChatID:      chatID,
		Search:      s,
		Candidates:  len(candidates),
		RequestedAt: e.now(),
	}

	start := e.now()
	result, artifact, err := e.deps.Coordinator.RequestProof(ctx, candidates, s)
	elapsed := e.now().Sub(start)
	rec.Duration = elapsed

	if err != nil {
		e.deps.Metrics.ProofFinished(metrics.OutcomeFailed, elapsed)
		log.Error("proof request failed", "error", err, "duration", elapsed)
		if aerr := e.deps.Audit.LogProofFailed(ctx, chatID, err); aerr != nil {
			log.Warn("audit write failed", "error", aerr)
		}
		rec.Outcome = metrics.OutcomeFailed
		rec.Error = err.Error()
		e.journalProof(ctx, rec)

		if nerr := e.deps.Notifier.SendNotice(ctx, chatID, FailureNotice, chat.FormatPlain); nerr != nil {
			log.Warn("failure notice not delivered", "error", nerr)
		}
		return fmt.Errorf("proof request: %w", err)
	}

	rec.Matches = len(result)
	rec.Outcome = metrics.OutcomeNoResult
	if len(result) > 0 {
		rec.Outcome = metrics.OutcomeProved
	}
	e.deps.Metrics.ProofFinished(rec.Outcome, elapsed)
	log.Info("proof finished", "matches", len(result), "duration", elapsed)

	out, err := e.deps.Presenter.Present(ctx, chatID, result, artifact)
	rec.ArtifactID = out.ID
	rec.Link = out.Link
	if out.Link != "" {
		e.deps.Metrics.ArtifactPublished()
		if aerr := e.deps.Audit.LogArtifactPublished(ctx, chatID, out.Link, len(artifact)); aerr != nil {
			log.Warn("audit write failed", "error", aerr)
		}
	}
	if err != nil {
		rec.Error = err.Error()
	}
	e.journalProof(ctx, rec)

	if err != nil {
		log.Error("present result failed", "error", err)
		if errors.Is(err, present.ErrPublishFailed) {
			if nerr := e.deps.Notifier.SendNotice(ctx, chatID, LinkFailureNotice, chat.FormatPlain); nerr != nil {
				log.Warn("link failure notice not delivered", "error", nerr)
			}
		}
		return fmt.Errorf("present result: %w", err)
	}
	return nil
}

func (e *Engine) journalProof(ctx context.Context, rec *store.ProofRecord) {
	if e.deps.Journal == nil {
		return
	}
	if err := e.deps.Journal.RecordProof(ctx, rec); err != nil {
		e.deps.Metrics.JournalError()
		e.log.Error("journal proof failed", "error", err)
	}
}

// Run polls src until ctx is cancelled or a fatal poll error occurs.
// Payloads of one batch are handled in order; handling errors are logged
// and the loop moves on. While a proof runs nothing is polled, so later
// updates wait at the transport.
func (e *Engine) Run(ctx context.Context, src Poller) error {
	e.log.Info("engine started",
		"gap", e.acc.Gap(),
		"start", e.acc.LastCheckpoint(),
		"command_prefix", e.cfg.CommandPrefix,
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		payloads, err := src.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if e.cfg.IsFatal != nil && e.cfg.IsFatal(err) {
				return fmt.Errorf("poll: %w", err)
			}
			e.log.Warn("poll failed", "error", err, "retry_in", e.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(e.cfg.RetryDelay):
			}
			continue
		}

		if e.deps.Heartbeat != nil {
			e.deps.Heartbeat.Beat()
		}

		for _, p := range payloads {
			if err := e.Handle(ctx, p); err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return nil
				}
				e.log.Error("update failed", "error", err)
			}
		}
	}
}
