package logger

import (
	"io"
	"regexp"
)

// Redactor redacts credentials from log output
type Redactor struct {
	patterns []redaction
}

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []redaction{
			// Connection string credentials, keeping the scheme
			{regexp.MustCompile(`(://)[^/@\s"]+@`), "${1}[REDACTED]@"},

			// Password fields in descriptors
			{regexp.MustCompile(`(?i)("password"\s*:\s*)"[^"]*"`), `${1}"[REDACTED]"`},
			{regexp.MustCompile(`(?i)(\\"password\\"\s*:\s*)\\"[^\\]*\\"`), `${1}\"[REDACTED]\"`},
			{regexp.MustCompile(`(?i)(password=)[^\s&"]+`), "${1}[REDACTED]"},

			// Bearer tokens
			{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`), "[REDACTED]"},

			// AWS keys
			{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[REDACTED]"},
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, redaction{pattern: re, replacement: "[REDACTED]"})
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	result := s
	for _, p := range r.patterns {
		result = p.pattern.ReplaceAllString(result, p.replacement)
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

// redactingWriter is an io.Writer that redacts sensitive information
type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	return len(p), nil
}
