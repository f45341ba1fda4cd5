// Package validator bounds-checks execution requests before anything is dispatched.
package validator

import (
	"strings"
	"unicode/utf8"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

const (
	DefaultMaxCodeBytes  = 50_000
	DefaultMaxStdinBytes = 64 * 1024

	maxLanguageKeyLen = 32
)

// LanguageSupport answers whether any provider accepts a language key.
type LanguageSupport interface {
	Supports(language string) bool
}

// Validator is pure: no side effects and no network access.
type Validator struct {
	languages     LanguageSupport
	maxCodeBytes  int
	maxStdinBytes int
}

// New creates a Validator. Non-positive limits fall back to the defaults.
func New(languages LanguageSupport, maxCodeBytes, maxStdinBytes int) *Validator {
	if maxCodeBytes <= 0 {
		maxCodeBytes = DefaultMaxCodeBytes
	}
	if maxStdinBytes <= 0 {
		maxStdinBytes = DefaultMaxStdinBytes
	}
	return &Validator{
		languages:     languages,
		maxCodeBytes:  maxCodeBytes,
		maxStdinBytes: maxStdinBytes,
	}
}

// Validate returns a *domain.ExecError describing the first problem found, or nil.
func (v *Validator) Validate(req *domain.ExecutionRequest) error {
	if req == nil {
		return domain.NewExecError(domain.KindMalformedRequest, "request is empty")
	}
	if strings.TrimSpace(req.RequestorID) == "" {
		return domain.NewExecError(domain.KindMalformedRequest, "requestor id is required")
	}
	if !validLanguageKey(req.Language) {
		return domain.NewExecError(domain.KindMalformedRequest, "language key %q is malformed", truncateKey(req.Language))
	}

	// Size first: the content scans below are linear in the input.
	if len(req.SourceCode) > v.maxCodeBytes {
		return domain.NewExecError(domain.KindCodeTooLarge,
			"source code is %d bytes, limit is %d", len(req.SourceCode), v.maxCodeBytes)
	}
	if len(req.Stdin) > v.maxStdinBytes {
		return domain.NewExecError(domain.KindMalformedRequest,
			"stdin is %d bytes, limit is %d", len(req.Stdin), v.maxStdinBytes)
	}

	if !v.languages.Supports(req.Language) {
		return domain.NewExecError(domain.KindUnsupportedLanguage, "language %q is not supported", req.Language)
	}

	if strings.TrimSpace(req.SourceCode) == "" {
		return domain.NewExecError(domain.KindMalformedRequest, "source code cannot be empty")
	}
	if err := checkText("source code", req.SourceCode); err != nil {
		return err
	}
	return checkText("stdin", req.Stdin)
}

// checkText rejects invalid UTF-8 and C0 control bytes other than tab, LF and CR.
func checkText(field, s string) error {
	if !utf8.ValidString(s) {
		return domain.NewExecError(domain.KindMalformedRequest, "%s is not valid UTF-8", field)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		if c < 0x20 || c == 0x7f {
			return domain.NewExecError(domain.KindMalformedRequest, "%s contains control byte 0x%02x at offset %d", field, c, i)
		}
	}
	return nil
}

func validLanguageKey(s string) bool {
	if s == "" || len(s) > maxLanguageKeyLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '+', c == '#', c == '.', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

func truncateKey(s string) string {
	if len(s) > maxLanguageKeyLen {
		return s[:maxLanguageKeyLen] + "..."
	}
	return s
}
