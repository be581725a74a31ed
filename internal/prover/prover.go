// Package prover coordinates proof requests with an external prover.
//
// The prover receives the candidate checkpoints and the search string as
// one JSON document and answers with the matches it proved plus an opaque
// proof object:
//
//	{"matches":[{"checkpoint":108,"sender":"bob","text":"goodbye world"}],"proof":{...}}
//
// The whole answer is kept as the shareable artifact.
package prover

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"chatproof/internal/checkpoint"
)

var (
	// ErrProverFailed is matched by every error from a prover backend.
	ErrProverFailed = errors.New("prover: request failed")
	// ErrInvalidOutput is returned when the prover answer does not decode
	// or does not satisfy the output schema.
	ErrInvalidOutput = errors.New("prover: invalid output")
)

// Error wraps a prover collaborator failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "prover " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every *Error match ErrProverFailed.
func (e *Error) Is(target error) bool {
	return target == ErrProverFailed
}

// Prover runs one proof. Input and output are JSON documents.
type Prover interface {
	Prove(ctx context.Context, input []byte) ([]byte, error)
}

// ProverFunc adapts a function to Prover.
type ProverFunc func(ctx context.Context, input []byte) ([]byte, error)

// Prove calls f.
func (f ProverFunc) Prove(ctx context.Context, input []byte) ([]byte, error) {
	return f(ctx, input)
}

// Match is one proved message.
type Match struct {
	Checkpoint uint64 `json:"checkpoint"`
	Sender     string `json:"sender"`
	Text       string `json:"text"`
}

// Result is the ordered list of proved matches. It may be empty.
type Result []Match

// Artifact is the raw prover output, served as application/json.
type Artifact []byte

// ContentType of published artifacts.
const ContentType = "application/json"

//go:embed output.schema.json
var outputSchemaJSON string

var outputSchema = jsonschema.MustCompileString("output.schema.json", outputSchemaJSON)

type inputCheckpoint struct {
	Timestamp uint64                   `json:"timestamp"`
	Hash      string                   `json:"hash"`
	Messages  []checkpoint.ChatMessage `json:"messages"`
}

type input struct {
	Checkpoints []inputCheckpoint `json:"checkpoints"`
	Search      string            `json:"search"`
}

type output struct {
	Matches []Match `json:"matches"`
}

// Coordinator turns candidate checkpoints into a prover request and
// decodes the answer.
type Coordinator struct {
	prover   Prover
	validate bool
}

// NewCoordinator creates a coordinator. When validate is set the prover
// output is checked against the output schema before decoding.
func NewCoordinator(p Prover, validate bool) *Coordinator {
	return &Coordinator{prover: p, validate: validate}
}

// BuildInput encodes the candidates, in the given order, followed by the
// search string. A candidate whose messages no longer match its hash is
// rejected with checkpoint.ErrHashMismatch.
func (c *Coordinator) BuildInput(candidates []*checkpoint.Checkpoint, search string) ([]byte, error) {
	in := input{
		Checkpoints: make([]inputCheckpoint, 0, len(candidates)),
		Search:      search,
	}
	for _, cp := range candidates {
		if err := cp.Verify(); err != nil {
			return nil, fmt.Errorf("build prover input: %w", err)
		}
		msgs := cp.Messages
		if msgs == nil {
			msgs = []checkpoint.ChatMessage{}
		}
		in.Checkpoints = append(in.Checkpoints, inputCheckpoint{
			Timestamp: cp.Timestamp,
			Hash:      cp.HashHex(),
			Messages:  msgs,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(in); err != nil {
		return nil, fmt.Errorf("encode prover input: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// RequestProof runs the prover over the candidates and returns the proved
// matches with the raw output as artifact. It never touches checkpoint
// state; the candidates are only read.
func (c *Coordinator) RequestProof(ctx context.Context, candidates []*checkpoint.Checkpoint, search string) (Result, Artifact, error) {
	in, err := c.BuildInput(candidates, search)
	if err != nil {
		return nil, nil, err
	}

	out, err := c.prover.Prove(ctx, in)
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			return nil, nil, err
		}
		return nil, nil, &Error{Op: "prove", Err: err}
	}

	result, err := c.decode(out)
	if err != nil {
		return nil, nil, err
	}
	return result, Artifact(out), nil
}

func (c *Coordinator) decode(out []byte) (Result, error) {
	if c.validate {
		var doc any
		dec := json.NewDecoder(bytes.NewReader(out))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
		}
		if err := outputSchema.Validate(doc); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidOutput, strings.TrimSpace(err.Error()))
		}
	}

	var o output
	if err := json.Unmarshal(out, &o); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if o.Matches == nil {
		return Result{}, nil
	}
	return Result(o.Matches), nil
}
