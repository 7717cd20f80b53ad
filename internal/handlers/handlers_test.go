package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/agent-arena/agent-arena/internal/challenges"
	"github.com/agent-arena/agent-arena/internal/config"
	"github.com/agent-arena/agent-arena/internal/database"
	"github.com/agent-arena/agent-arena/internal/metrics"
	"github.com/agent-arena/agent-arena/internal/models"
	"github.com/agent-arena/agent-arena/internal/scheduler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testChallengeID = "compression-v1"

const testDecompressor = "def decompress(data):\n    return data\n"

// stubChallenge satisfies challenges.Challenge with a canned result so
// handler tests never touch a Python interpreter.
type stubChallenge struct {
	mu     sync.Mutex
	result *models.ChallengeResult
}

func (c *stubChallenge) ID() string                 { return testChallengeID }
func (c *stubChallenge) Title() string              { return "Data Compression" }
func (c *stubChallenge) Description() string        { return "Compress the reference input" }
func (c *stubChallenge) ScoringDescription() string { return "compressed + decompressor bytes" }
func (c *stubChallenge) InputData() ([]byte, error) { return []byte("reference"), nil }
func (c *stubChallenge) InputHash() (string, error) { return "0badc0de", nil }

func (c *stubChallenge) Evaluate(ctx context.Context, compressed []byte, decompressor string) *models.ChallengeResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *stubChallenge) setResult(r *models.ChallengeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = r
}

type testEnv struct {
	engine *gin.Engine
	store  *database.Store
	sched  *scheduler.Scheduler
	stub   *stubChallenge
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	ctx := context.Background()
	store, err := database.Open(ctx, filepath.Join(t.TempDir(), "arena.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	score := int64(100)
	stub := &stubChallenge{result: &models.ChallengeResult{
		Success: true,
		Score:   &score,
		Breakdown: map[string]interface{}{
			"compressed_bytes":   int64(90),
			"decompressor_bytes": int64(10),
		},
		ExecutionTimeMS: 12,
	}}
	registry := challenges.NewRegistry()
	registry.Register(stub)
	require.NoError(t, store.UpsertChallenge(ctx, &models.Challenge{
		ID:                 testChallengeID,
		Title:              stub.Title(),
		Description:        stub.Description(),
		ScoringDescription: stub.ScoringDescription(),
		InputHash:          "0badc0de",
		InputSizeBytes:     9,
		IsActive:           true,
	}))

	cfg := config.Config{}
	cfg.Scheduler.WorkerCount = 1
	cfg.Scheduler.QueueSize = 4
	cfg.Scheduler.StopGrace = 5 * time.Second
	cfg.RateLimit.SubmissionsPerHour = 10
	cfg.Sandbox.Timeout = 5 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	collector := metrics.NewCollectorFor(prometheus.NewRegistry())
	sched := scheduler.New(store, registry, collector, cfg, logger)

	engine := gin.New()
	RegisterHealthRoutes(engine, NewHealthHandler(store, config.Version, logger))
	RegisterChallengeRoutes(engine, NewChallengeHandler(store, registry, logger))
	RegisterSubmissionRoutes(engine, NewSubmissionHandler(store, sched, logger))
	RegisterAgentRoutes(engine, NewAgentHandler(store, logger))

	return &testEnv{engine: engine, store: store, sched: sched, stub: stub}
}

// request runs one request through the engine. A non-nil body is sent as
// JSON.
func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	decodeJSON(t, w, &resp)
	require.Equal(t, "error", resp.Status)
	return resp
}

// seedScored writes a terminal scored submission straight to the store and
// recomputes ranks, bypassing the scheduler.
func (e *testEnv) seedScored(t *testing.T, agentID string, score int64) *models.Submission {
	t.Helper()
	ctx := context.Background()

	sub := &models.Submission{
		ID:                    uuid.New().String(),
		AgentID:               agentID,
		ChallengeID:           testChallengeID,
		CompressedSizeBytes:   score - 10,
		DecompressorSizeBytes: 10,
	}
	require.NoError(t, e.store.CreateSubmission(ctx, sub, 1000, time.Hour))

	claimed, err := e.store.ClaimProcessing(ctx, sub.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	done, err := e.store.CompleteSubmission(ctx, sub.ID, models.StatusScored, score, nil, nil,
		map[string]interface{}{
			"compressed_bytes":   score - 10,
			"decompressor_bytes": int64(10),
			"total_score":        score,
		}, 12)
	require.NoError(t, err)
	require.True(t, done)

	require.NoError(t, e.store.RecomputeRanks(ctx, testChallengeID))
	return sub
}

// seedFailed writes a terminal error submission straight to the store.
func (e *testEnv) seedFailed(t *testing.T, agentID, errCode, errMsg string) *models.Submission {
	t.Helper()
	ctx := context.Background()

	sub := &models.Submission{
		ID:                    uuid.New().String(),
		AgentID:               agentID,
		ChallengeID:           testChallengeID,
		CompressedSizeBytes:   42,
		DecompressorSizeBytes: 10,
	}
	require.NoError(t, e.store.CreateSubmission(ctx, sub, 1000, time.Hour))

	failed, err := e.store.FailSubmission(ctx, sub.ID, errCode, errMsg, 8)
	require.NoError(t, err)
	require.True(t, failed)
	return sub
}
