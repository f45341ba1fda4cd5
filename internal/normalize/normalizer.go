// Package normalize turns provider payloads into the canonical execution output.
package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

// DefaultMaxOutputBytes caps stdout and stderr independently.
const DefaultMaxOutputBytes = 64 * 1024

// maxElapsed bounds a reported execution time; anything larger is not a real run.
const maxElapsed = 24 * time.Hour

var errNotObject = errors.New("payload is not a JSON object")

// Normalizer decodes adapter-specific payloads and truncates output.
type Normalizer struct {
	maxOutput int
	marker    string
}

// New creates a Normalizer. maxOutputBytes <= 0 selects the default.
func New(maxOutputBytes int) *Normalizer {
	if maxOutputBytes <= 0 {
		maxOutputBytes = DefaultMaxOutputBytes
	}
	return &Normalizer{
		maxOutput: maxOutputBytes,
		marker:    fmt.Sprintf("\n... output truncated (%s limit) ...", sizeLabel(maxOutputBytes)),
	}
}

// Normalize decodes payload according to adapter. Decoding failures are
// returned as MalformedProviderResponse attributed to providerID.
func (n *Normalizer) Normalize(adapter domain.Adapter, providerID string, payload []byte) (domain.Output, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.Output{}, domain.ProviderError(domain.KindMalformedProviderResponse, providerID, errNotObject)
	}

	var (
		out domain.Output
		err error
	)
	switch adapter {
	case domain.AdapterPiston:
		out, err = decodePiston(trimmed)
	case domain.AdapterJudge0:
		out, err = decodeJudge0(trimmed)
	default:
		out, err = decodeGeneric(trimmed)
	}
	if err != nil {
		var execErr *domain.ExecError
		if errors.As(err, &execErr) {
			execErr.ProviderID = providerID
			return domain.Output{}, execErr
		}
		return domain.Output{}, domain.ProviderError(domain.KindMalformedProviderResponse, providerID,
			fmt.Errorf("normalize: %s payload: %w", adapter, err))
	}

	var cutOut, cutErr bool
	out.Stdout, cutOut = n.truncate(out.Stdout)
	out.Stderr, cutErr = n.truncate(out.Stderr)
	out.Truncated = cutOut || cutErr
	return out, nil
}

// truncate cuts s to the cap on a rune boundary and appends the marker.
func (n *Normalizer) truncate(s string) (string, bool) {
	if len(s) <= n.maxOutput {
		return s, false
	}
	cut := n.maxOutput
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + n.marker, true
}

type genericPayload struct {
	Stdout             string `json:"stdout"`
	Stderr             string `json:"stderr"`
	ExitCode           *int   `json:"exit_code"`
	ExitCodeAlt        *int   `json:"exitCode"`
	ExecutionTimeMs    *int64 `json:"execution_time_ms"`
	ExecutionTimeMsAlt *int64 `json:"executionTimeMs"`
}

func decodeGeneric(data []byte) (domain.Output, error) {
	var p genericPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Output{}, err
	}
	ms, err := checkMillis("execution_time_ms", firstInt64(p.ExecutionTimeMs, p.ExecutionTimeMsAlt))
	if err != nil {
		return domain.Output{}, err
	}
	return domain.Output{
		Stdout:          p.Stdout,
		Stderr:          p.Stderr,
		ExitCode:        firstInt(p.ExitCode, p.ExitCodeAlt),
		ExecutionTimeMs: ms,
	}, nil
}

type pistonStage struct {
	Stdout   string  `json:"stdout"`
	Stderr   string  `json:"stderr"`
	Output   string  `json:"output"`
	Code     *int    `json:"code"`
	Signal   *string `json:"signal"`
	WallTime *int64  `json:"wall_time"`
}

type pistonPayload struct {
	Run     *pistonStage `json:"run"`
	Compile *pistonStage `json:"compile"`
	Message string       `json:"message"`
}

func decodePiston(data []byte) (domain.Output, error) {
	var p pistonPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Output{}, err
	}

	var elapsed int64
	if c := p.Compile; c != nil {
		ms, err := checkMillis("compile.wall_time", firstInt64(c.WallTime))
		if err != nil {
			return domain.Output{}, err
		}
		elapsed += ms
		if c.failed() {
			stderr := c.Stderr
			if stderr == "" {
				stderr = c.Output
			}
			return domain.Output{
				Stdout:          c.Stdout,
				Stderr:          stderr,
				ExitCode:        c.exitCode(),
				ExecutionTimeMs: elapsed,
			}, nil
		}
	}

	if p.Run == nil {
		if p.Message != "" {
			return domain.Output{}, fmt.Errorf("missing run stage: %s", p.Message)
		}
		return domain.Output{}, errors.New("missing run stage")
	}
	ms, err := checkMillis("run.wall_time", firstInt64(p.Run.WallTime))
	if err != nil {
		return domain.Output{}, err
	}
	elapsed += ms

	return domain.Output{
		Stdout:          p.Run.Stdout,
		Stderr:          p.Run.Stderr,
		ExitCode:        p.Run.exitCode(),
		ExecutionTimeMs: elapsed,
	}, nil
}

func (s *pistonStage) failed() bool {
	return (s.Code != nil && *s.Code != 0) || (s.Signal != nil && *s.Signal != "")
}

// exitCode follows the shell convention of 128+n for a signalled process.
func (s *pistonStage) exitCode() int {
	if s.Code != nil {
		return *s.Code
	}
	if s.Signal != nil {
		if n, ok := signalNumbers[*s.Signal]; ok {
			return 128 + n
		}
		return 1
	}
	return 0
}

var signalNumbers = map[string]int{
	"SIGHUP":  1,
	"SIGINT":  2,
	"SIGABRT": 6,
	"SIGKILL": 9,
	"SIGSEGV": 11,
	"SIGPIPE": 13,
	"SIGTERM": 15,
	"SIGXCPU": 24,
	"SIGXFSZ": 25,
}

type judge0Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type judge0Payload struct {
	Stdout        *string       `json:"stdout"`
	Stderr        *string       `json:"stderr"`
	CompileOutput *string       `json:"compile_output"`
	Message       *string       `json:"message"`
	ExitCode      *int          `json:"exit_code"`
	Time          *string       `json:"time"`
	Status        *judge0Status `json:"status"`
}

// Judge0 status ids.
const (
	judge0Processing       = 2
	judge0Accepted         = 3
	judge0TimeLimit        = 5
	judge0CompilationError = 6
	judge0InternalError    = 13
)

func decodeJudge0(data []byte) (domain.Output, error) {
	var p judge0Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Output{}, err
	}
	if p.Status == nil {
		return domain.Output{}, errors.New("missing status")
	}

	switch id := p.Status.ID; {
	case id <= judge0Processing:
		return domain.Output{}, domain.NewExecError(domain.KindProviderUnavailable,
			"submission not finished (status %d)", id)
	case id >= judge0InternalError:
		return domain.Output{}, domain.NewExecError(domain.KindProviderUnavailable,
			"provider internal error (status %d %s)", id, p.Status.Description)
	}

	ms, err := judge0Millis(p.Time)
	if err != nil {
		return domain.Output{}, err
	}

	out := domain.Output{
		Stdout:          deref(p.Stdout),
		Stderr:          deref(p.Stderr),
		ExecutionTimeMs: ms,
	}

	switch {
	case p.ExitCode != nil:
		out.ExitCode = *p.ExitCode
	case p.Status.ID == judge0Accepted:
		out.ExitCode = 0
	case p.Status.ID == judge0TimeLimit:
		out.ExitCode = 124
	default:
		out.ExitCode = 1
	}

	if p.Status.ID == judge0CompilationError {
		out.Stderr = joinNonEmpty(out.Stderr, deref(p.CompileOutput))
	} else if out.Stderr == "" && p.Status.ID != judge0Accepted {
		out.Stderr = deref(p.Message)
	}
	return out, nil
}

// judge0Millis parses Judge0's seconds-as-string time field.
func judge0Millis(t *string) (int64, error) {
	if t == nil || *t == "" {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(*t, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", *t, err)
	}
	if math.IsNaN(secs) || secs < 0 || secs > maxElapsed.Seconds() {
		return 0, fmt.Errorf("time %q out of range", *t)
	}
	return int64(secs*1000 + 0.5), nil
}

// checkMillis rejects negative or implausibly large elapsed times.
func checkMillis(field string, ms int64) (int64, error) {
	if ms < 0 || ms > maxElapsed.Milliseconds() {
		return 0, fmt.Errorf("%s %d out of range", field, ms)
	}
	return ms, nil
}

func sizeLabel(n int) string {
	if n%1024 == 0 {
		return strconv.Itoa(n/1024) + " KB"
	}
	return strconv.Itoa(n) + " bytes"
}

func firstInt(vals ...*int) int {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstInt64(vals ...*int64) int64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
