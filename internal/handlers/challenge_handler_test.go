package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-arena/agent-arena/internal/models"
)

func TestListChallenges(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodGet, "/challenges", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp ChallengeListResponse
	decodeJSON(t, w, &resp)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Challenges, 1)

	ch := resp.Challenges[0]
	assert.Equal(t, testChallengeID, ch.ID)
	assert.Equal(t, "Data Compression", ch.Title)
	assert.Equal(t, "0badc0de", ch.InputHash)
	assert.True(t, ch.IsActive)
	assert.Nil(t, ch.BestScore)
}

func TestGetChallenge(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodGet, "/challenges/"+testChallengeID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var ch models.Challenge
	decodeJSON(t, w, &ch)
	assert.Equal(t, testChallengeID, ch.ID)
	assert.EqualValues(t, 9, ch.InputSizeBytes)
}

func TestGetChallengeNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodGet, "/challenges/no-such-challenge", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, models.ErrCodeChallengeNotFound, resp.ErrorCode)
	assert.Contains(t, resp.Message, "no-such-challenge")
}

func TestGetChallengeInput(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodGet, "/challenges/"+testChallengeID+"/input", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "reference", w.Body.String())
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "0badc0de", w.Header().Get("X-Input-Hash"))
	assert.Equal(t, "9", w.Header().Get("X-Input-Size"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "compression-v1-input.bin")
}

func TestGetChallengeInputNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodGet, "/challenges/nope/input", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ErrCodeChallengeNotFound, decodeError(t, w).ErrorCode)
}

func TestGetChallengeInputHash(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodGet, "/challenges/"+testChallengeID+"/input/hash", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp InputHashResponse
	decodeJSON(t, w, &resp)
	assert.Equal(t, testChallengeID, resp.ChallengeID)
	assert.Equal(t, "0badc0de", resp.Hash)
	assert.Equal(t, "sha256", resp.Algorithm)
	assert.EqualValues(t, 9, resp.SizeBytes)
}

func TestGetLeaderboard(t *testing.T) {
	env := newTestEnv(t, nil)

	env.seedScored(t, "agent-third", 120)
	env.seedScored(t, "agent-first", 90)
	env.seedScored(t, "agent-tied", 90)

	w := env.request(t, http.MethodGet, "/challenges/"+testChallengeID+"/leaderboard", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var board models.Leaderboard
	decodeJSON(t, w, &board)
	assert.Equal(t, testChallengeID, board.ChallengeID)
	assert.EqualValues(t, 3, board.TotalSubmissions)
	assert.EqualValues(t, 3, board.UniqueAgents)
	require.Len(t, board.Entries, 3)

	// Equal scores share a rank; the next distinct score ranks by position.
	assert.Equal(t, "agent-first", board.Entries[0].AgentID)
	assert.Equal(t, 1, board.Entries[0].Rank)
	assert.Equal(t, "agent-tied", board.Entries[1].AgentID)
	assert.Equal(t, 1, board.Entries[1].Rank)
	assert.Equal(t, "agent-third", board.Entries[2].AgentID)
	assert.Equal(t, 3, board.Entries[2].Rank)
}

func TestGetLeaderboardBestPerAgent(t *testing.T) {
	env := newTestEnv(t, nil)

	// Two submissions from one agent: only the better one appears.
	env.seedScored(t, "agent-1", 150)
	env.seedScored(t, "agent-1", 110)

	w := env.request(t, http.MethodGet, "/challenges/"+testChallengeID+"/leaderboard", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var board models.Leaderboard
	decodeJSON(t, w, &board)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, int64(110), board.Entries[0].Score)
	assert.EqualValues(t, 2, board.TotalSubmissions)
	assert.EqualValues(t, 1, board.UniqueAgents)
}

func TestGetLeaderboardLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	env.seedScored(t, "agent-a", 100)
	env.seedScored(t, "agent-b", 110)
	env.seedScored(t, "agent-c", 120)

	w := env.request(t, http.MethodGet, "/challenges/"+testChallengeID+"/leaderboard?limit=2", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var board models.Leaderboard
	decodeJSON(t, w, &board)
	assert.Len(t, board.Entries, 2)

	// Malformed limits fall back to the default instead of failing.
	w = env.request(t, http.MethodGet, "/challenges/"+testChallengeID+"/leaderboard?limit=bogus", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &board)
	assert.Len(t, board.Entries, 3)
}

func TestGetLeaderboardEmpty(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodGet, "/challenges/"+testChallengeID+"/leaderboard", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var board models.Leaderboard
	decodeJSON(t, w, &board)
	assert.NotNil(t, board.Entries)
	assert.Empty(t, board.Entries)
	assert.Zero(t, board.TotalSubmissions)
}

func TestGetLeaderboardUnknownChallenge(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(t, http.MethodGet, "/challenges/unknown/leaderboard", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ErrCodeChallengeNotFound, decodeError(t, w).ErrorCode)
}
