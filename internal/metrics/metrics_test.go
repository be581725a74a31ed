package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.MessageIngested(1)
	m.UpdateDiscarded()
	m.CheckpointClosed(10, 2)
	m.ProofFinished(OutcomeFailed, time.Second)
	m.ArtifactPublished()
	m.JournalError()
	m.HTTPRequest("GET", "/healthz", "200", time.Millisecond)
}

func TestRecorders(t *testing.T) {
	m := newWithRegistry(prometheus.NewRegistry())

	m.MessageIngested(1)
	m.MessageIngested(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesIngested))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OpenBufferMessages))

	m.CheckpointClosed(108, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckpointsClosed))
	assert.Equal(t, 108.0, testutil.ToFloat64(m.LastCheckpointTs))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OpenBufferMessages))

	m.ProofFinished(OutcomeProved, 2*time.Second)
	m.ProofFinished(OutcomeFailed, time.Second)
	m.ProofFinished(OutcomeFailed, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProofRequests.WithLabelValues(OutcomeProved)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProofRequests.WithLabelValues(OutcomeFailed)))

	m.UpdateDiscarded()
	m.ArtifactPublished()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpdatesDiscarded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArtifactsPublished))
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.CheckpointClosed(1, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	for _, name := range []string{
		"chatproof_checkpoints_closed_total 1",
		"chatproof_messages_ingested_total",
		"chatproof_checkpoint_messages_bucket",
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(out, name), "missing %s", name)
	}
}
