package challenges

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/agent-arena/agent-arena/internal/models"
)

const (
	// CompressionChallengeID identifies the v1 compression challenge.
	CompressionChallengeID = "compression-v1"

	// entryFunction is the function every decompressor must define.
	entryFunction = "decompress"

	// maxDecompressorBytes caps decompressor source size.
	maxDecompressorBytes = 100_000
)

const compressionDescription = `# Compression Challenge

Your goal is to compress the provided dataset to the smallest possible size,
while also providing code that can decompress it back to the original.

## Rules

1. Submit compressed data (any format you invent)
2. Submit Python decompressor code
3. Your code must define: ` + "`def decompress(data: bytes) -> bytes`" + `
4. The decompressed output must be byte-identical to the original
5. Your score is: ` + "`len(compressed_data) + len(decompressor_code)`" + `

## Constraints

- Decompressor must run in < 60 seconds
- Decompressor must use < 512MB memory
- Only whitelisted Python modules allowed (see docs)

## Scoring

Lower is better. The leaderboard ranks by total score.`

const compressionScoring = "score = len(compressed_data) + len(decompressor_code) — lower is better"

// CompressionChallenge scores submissions by compressed size plus
// decompressor source size, provided the decompressor reconstructs the
// reference input byte for byte.
type CompressionChallenge struct {
	inputFile string
	runner    CodeRunner
	logger    *logrus.Logger

	loadOnce sync.Once
	loadErr  error
	input    []byte
	hash     string
}

// NewCompressionChallenge uses the input file at inputFile, generating a
// deterministic default there when the file does not exist yet.
func NewCompressionChallenge(inputFile string, runner CodeRunner, logger *logrus.Logger) *CompressionChallenge {
	return &CompressionChallenge{
		inputFile: inputFile,
		runner:    runner,
		logger:    logger,
	}
}

func (c *CompressionChallenge) ID() string                 { return CompressionChallengeID }
func (c *CompressionChallenge) Title() string              { return "Compression Challenge" }
func (c *CompressionChallenge) Description() string        { return compressionDescription }
func (c *CompressionChallenge) ScoringDescription() string { return compressionScoring }

func (c *CompressionChallenge) InputData() ([]byte, error) {
	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}
	return c.input, nil
}

func (c *CompressionChallenge) InputHash() (string, error) {
	if err := c.ensureLoaded(); err != nil {
		return "", err
	}
	return c.hash, nil
}

func (c *CompressionChallenge) ensureLoaded() error {
	c.loadOnce.Do(func() {
		data, err := os.ReadFile(c.inputFile)
		if errors.Is(err, os.ErrNotExist) {
			data, err = c.generateDefaultInput()
		}
		if err != nil {
			c.loadErr = fmt.Errorf("load challenge input %s: %w", c.inputFile, err)
			return
		}
		sum := sha256.Sum256(data)
		c.input = data
		c.hash = hex.EncodeToString(sum[:])
	})
	return c.loadErr
}

// generateDefaultInput builds a mixed-compressibility dataset: repeated
// text, a JSON document, seeded pseudo-random bytes and a binary pattern,
// joined by section markers. Seeding keeps regeneration reproducible.
func (c *CompressionChallenge) generateDefaultInput() ([]byte, error) {
	rng := rand.New(rand.NewSource(42))

	parts := [][]byte{
		bytes.Repeat([]byte("The quick brown fox jumps over the lazy dog. "), 100),
		bytes.Repeat([]byte("Lorem ipsum dolor sit amet, consectetur adipiscing elit. "), 50),
		bytes.Repeat([]byte("AAAAAAAAAA"), 500),
		bytes.Repeat([]byte("ABABABABABABABAB"), 200),
	}

	type user struct {
		ID     int    `json:"id"`
		Name   string `json:"name"`
		Active bool   `json:"active"`
	}
	users := make([]user, 1000)
	for i := range users {
		users[i] = user{ID: i, Name: fmt.Sprintf("User %d", i), Active: i%2 == 0}
	}
	doc := struct {
		Users    []user            `json:"users"`
		Metadata map[string]string `json:"metadata"`
	}{
		Users:    users,
		Metadata: map[string]string{"version": "1.0", "generated": "2026-01-01"},
	}
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	parts = append(parts, encoded)

	semiRandom := make([]byte, 10000)
	for i := range semiRandom {
		semiRandom[i] = byte(rng.Intn(256))
	}
	parts = append(parts, semiRandom)

	parts = append(parts, bytes.Repeat([]byte{0x00, 0xFF, 0x55, 0xAA}, 5000))

	data := bytes.Join(parts, []byte("\n---SECTION---\n"))

	if err := os.MkdirAll(filepath.Dir(c.inputFile), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(c.inputFile, data, 0o644); err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"challenge_id": c.ID(),
		"path":         c.inputFile,
		"size_bytes":   len(data),
	}).Info("Generated default challenge input")
	return data, nil
}

// Evaluate checks submission size constraints, runs the decompressor in
// the sandbox and verifies byte-exact reconstruction of the input.
func (c *CompressionChallenge) Evaluate(ctx context.Context, compressed []byte, decompressor string) *models.ChallengeResult {
	original, err := c.InputData()
	if err != nil {
		return &models.ChallengeResult{
			Breakdown: map[string]interface{}{},
			Error:     fmt.Sprintf("failed to load challenge input: %v", err),
			ErrorCode: models.ErrCodeInternal,
		}
	}
	originalHash, _ := c.InputHash()

	compressedSize := int64(len(compressed))
	codeSize := int64(len(decompressor))

	if compressedSize == 0 {
		return failure(sizeBreakdown(0, codeSize),
			"Compressed data is empty", models.ErrCodeEmptyCompressed, 0)
	}
	if codeSize == 0 {
		return failure(sizeBreakdown(compressedSize, 0),
			"Decompressor code is empty", models.ErrCodeEmptyDecompressor, 0)
	}
	if codeSize > maxDecompressorBytes {
		return failure(sizeBreakdown(compressedSize, codeSize),
			fmt.Sprintf("Decompressor code too large (%d bytes > 100KB limit)", codeSize),
			models.ErrCodeCodeTooLarge, 0)
	}
	if compressedSize > int64(len(original))*2 {
		return failure(sizeBreakdown(compressedSize, codeSize),
			fmt.Sprintf("Compressed data larger than 2x original (%d > %d)", compressedSize, int64(len(original))*2),
			models.ErrCodeCompressedTooLarge, 0)
	}

	result := c.runner.Execute(ctx, decompressor, entryFunction, compressed)

	if !result.Success {
		errorType := string(result.ErrorType)
		if errorType == "" {
			errorType = "ERROR"
		}
		return failure(sizeBreakdown(compressedSize, codeSize),
			fmt.Sprintf("Decompression failed: %s", result.Error),
			"DECOMPRESSION_"+errorType, result.ExecutionTimeMS)
	}

	if !result.HasBytesResult() {
		typeName := result.ResultTypeName
		if typeName == "" {
			typeName = "unknown"
		}
		return failure(sizeBreakdown(compressedSize, codeSize),
			fmt.Sprintf("decompress() must return bytes, got %s", typeName),
			models.ErrCodeWrongReturnType, result.ExecutionTimeMS)
	}

	decompressed := result.ResultBytes
	if !bytes.Equal(decompressed, original) {
		actualSum := sha256.Sum256(decompressed)
		diffPos := firstDiff(original, decompressed)

		breakdown := sizeBreakdown(compressedSize, codeSize)
		breakdown["expected_hash"] = originalHash[:16]
		breakdown["actual_hash"] = hex.EncodeToString(actualSum[:])[:16]
		breakdown["expected_size"] = int64(len(original))
		breakdown["actual_size"] = int64(len(decompressed))
		breakdown["first_diff_at"] = int64(diffPos)

		return failure(breakdown,
			fmt.Sprintf("Decompressed output doesn't match original (diff at byte %d)", diffPos),
			models.ErrCodeMismatch, result.ExecutionTimeMS)
	}

	score := compressedSize + codeSize
	c.logger.WithFields(logrus.Fields{
		"challenge_id":      c.ID(),
		"score":             score,
		"compression_ratio": float64(len(original)) / float64(compressedSize),
	}).Debug("Submission reconstructed input exactly")

	return &models.ChallengeResult{
		Success: true,
		Score:   &score,
		Breakdown: map[string]interface{}{
			"compressed_bytes":   compressedSize,
			"decompressor_bytes": codeSize,
			"original_size":      int64(len(original)),
			"compression_ratio":  float64(len(original)) / float64(compressedSize),
		},
		ExecutionTimeMS: result.ExecutionTimeMS,
	}
}

func sizeBreakdown(compressedSize, codeSize int64) map[string]interface{} {
	return map[string]interface{}{
		"compressed_bytes":   compressedSize,
		"decompressor_bytes": codeSize,
	}
}

func failure(breakdown map[string]interface{}, msg, code string, execMS int64) *models.ChallengeResult {
	return &models.ChallengeResult{
		Breakdown:       breakdown,
		Error:           msg,
		ErrorCode:       code,
		ExecutionTimeMS: execMS,
	}
}

// firstDiff returns the index of the first differing byte, or the shorter
// length when one input is a prefix of the other.
func firstDiff(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
