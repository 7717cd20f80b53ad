package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agent-arena/agent-arena/internal/config"
	"github.com/agent-arena/agent-arena/internal/models"
)

const (
	// sandboxGrace is how long past the execution timeout the parent waits
	// for the worker to deliver a result before terminating it.
	sandboxGrace = 2 * time.Second

	// resultTransportSlack is headroom on the stdout pipe for the JSON
	// envelope and the base64 expansion of a legitimate result, on top of
	// the captured-output caps.
	resultTransportSlack = 128 << 20
)

// Executor runs untrusted Python in a separate interpreter process. Each
// Execute call validates the code, spawns a fresh isolated interpreter
// with kernel resource limits and exchanges a single JSON request/response
// pair with it over pipes.
type Executor struct {
	cfg       config.SandboxConfig
	validator *Validator
	logger    *logrus.Logger
}

func NewExecutor(cfg config.SandboxConfig, logger *logrus.Logger) *Executor {
	return &Executor{
		cfg:       cfg,
		validator: NewValidator(),
		logger:    logger,
	}
}

type harnessRequest struct {
	Code           string   `json:"code"`
	Entry          string   `json:"entry"`
	Args           []string `json:"args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	MemoryMB       int      `json:"memory_mb"`
	MaxOutputBytes int64    `json:"max_output_bytes"`
}

type harnessResult struct {
	Success         bool            `json:"success"`
	ResultB64       string          `json:"result_b64"`
	ResultJSON      json.RawMessage `json:"result_json"`
	ResultType      string          `json:"result_type"`
	Error           string          `json:"error"`
	ErrorType       string          `json:"error_type"`
	Stdout          string          `json:"stdout"`
	Stderr          string          `json:"stderr"`
	ExecutionTimeMS int64           `json:"execution_time_ms"`
	MemoryUsedBytes int64           `json:"memory_used_bytes"`
}

// Execute validates code and, if clean, runs it in the sandbox calling the
// entry function with the given byte arguments. Failures are reported
// through the result's Error/ErrorType fields, never as a Go error.
func (e *Executor) Execute(ctx context.Context, code, entry string, args ...[]byte) *models.ExecutionResult {
	if vr := e.validator.Validate(code); !vr.Valid {
		return &models.ExecutionResult{
			Error:     "Code validation failed: " + strings.Join(vr.Violations, ", "),
			ErrorType: models.ErrorTypeValidation,
		}
	}

	encodedArgs := make([]string, len(args))
	for i, a := range args {
		encodedArgs[i] = base64.StdEncoding.EncodeToString(a)
	}
	timeoutSecs := int(e.cfg.Timeout / time.Second)
	reqBody, err := json.Marshal(harnessRequest{
		Code:           code,
		Entry:          entry,
		Args:           encodedArgs,
		TimeoutSeconds: timeoutSecs,
		MemoryMB:       e.cfg.MemoryMB,
		MaxOutputBytes: e.cfg.MaxOutputBytes,
	})
	if err != nil {
		return e.sandboxFailure(fmt.Sprintf("encode request: %v", err))
	}

	workDir, err := os.MkdirTemp("", "arena-sandbox-*")
	if err != nil {
		return e.sandboxFailure(fmt.Sprintf("create working directory: %v", err))
	}
	defer os.RemoveAll(workDir)

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout+sandboxGrace)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.cfg.PythonBin, "-I", "-c", harnessSource)
	cmd.Dir = workDir
	cmd.Env = []string{"PATH=" + os.Getenv("PATH"), "LANG=C.UTF-8"}
	cmd.Stdin = bytes.NewReader(reqBody)

	stdout := &limitedWriter{limit: 2*e.cfg.MaxOutputBytes + resultTransportSlack}
	stderr := &limitedWriter{limit: 64 << 10}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// The interpreter gets its own process group so termination reaches
	// anything it might have managed to fork.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = sandboxGrace

	e.logger.WithFields(logrus.Fields{
		"entry":      entry,
		"code_bytes": len(code),
		"args":       len(args),
	}).Debug("Starting sandbox execution")

	started := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(started)

	if execCtx.Err() == context.DeadlineExceeded {
		e.logger.WithField("elapsed", elapsed).Warn("Sandbox execution exceeded timeout")
		return e.timeoutResult()
	}
	if killedByLimit(runErr) && elapsed >= e.cfg.Timeout {
		e.logger.WithField("elapsed", elapsed).Warn("Sandbox worker killed by CPU limit")
		return e.timeoutResult()
	}

	line := lastLine(stdout.Bytes())
	var wire harnessResult
	if len(line) == 0 || json.Unmarshal(line, &wire) != nil {
		detail := strings.TrimSpace(stderr.String())
		if runErr != nil && detail == "" {
			detail = runErr.Error()
		}
		return e.sandboxFailure(detail)
	}

	res := &models.ExecutionResult{
		Success:         wire.Success,
		ResultJSON:      wire.ResultJSON,
		ResultTypeName:  wire.ResultType,
		Error:           wire.Error,
		ErrorType:       models.ErrorType(wire.ErrorType),
		Stdout:          wire.Stdout,
		Stderr:          wire.Stderr,
		ExecutionTimeMS: wire.ExecutionTimeMS,
	}
	if wire.MemoryUsedBytes > 0 {
		mem := wire.MemoryUsedBytes
		res.MemoryUsedBytes = &mem
	}
	if wire.ResultB64 != "" {
		raw, decErr := base64.StdEncoding.DecodeString(wire.ResultB64)
		if decErr != nil {
			return e.sandboxFailure(fmt.Sprintf("decode result payload: %v", decErr))
		}
		res.ResultBytes = raw
	}
	if !res.Success && res.ErrorType == "" {
		res.ErrorType = models.ErrorTypeSandbox
	}
	return res
}

func (e *Executor) timeoutResult() *models.ExecutionResult {
	secs := int(e.cfg.Timeout / time.Second)
	return &models.ExecutionResult{
		Error:           fmt.Sprintf("Execution timeout (%ds)", secs),
		ErrorType:       models.ErrorTypeTimeout,
		ExecutionTimeMS: int64(secs) * 1000,
	}
}

func (e *Executor) sandboxFailure(detail string) *models.ExecutionResult {
	if detail != "" {
		e.logger.WithField("detail", detail).Warn("Sandbox did not produce a result")
	}
	return &models.ExecutionResult{
		Error:     "Failed to get result from sandbox",
		ErrorType: models.ErrorTypeSandbox,
	}
}

// killedByLimit reports whether the worker died from SIGXCPU or SIGKILL,
// the signals the kernel uses when the CPU rlimit trips.
func killedByLimit(runErr error) bool {
	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		return false
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return false
	}
	return ws.Signal() == syscall.SIGXCPU || ws.Signal() == syscall.SIGKILL
}

// lastLine returns the final non-empty line. The harness writes exactly
// one result line, but the interpreter may emit noise first.
func lastLine(b []byte) []byte {
	b = bytes.TrimRight(b, "\r\n")
	if idx := bytes.LastIndexByte(b, '\n'); idx >= 0 {
		b = b[idx+1:]
	}
	return bytes.TrimSpace(b)
}

// limitedWriter keeps at most limit bytes and silently drops the rest so
// a hostile worker cannot balloon parent memory through its pipes.
type limitedWriter struct {
	buf   bytes.Buffer
	limit int64
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if remain := w.limit - int64(w.buf.Len()); remain > 0 {
		if int64(n) > remain {
			p = p[:remain]
		}
		w.buf.Write(p)
	}
	return n, nil
}

func (w *limitedWriter) Bytes() []byte  { return w.buf.Bytes() }
func (w *limitedWriter) String() string { return w.buf.String() }
