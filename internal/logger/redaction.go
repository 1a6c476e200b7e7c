package logger

import (
	"io"
	"regexp"
)

// Scrubber masks credentials before log lines reach persistent sinks.
type Scrubber struct {
	patterns []*regexp.Regexp
}

// NewScrubber creates a scrubber covering the credential shapes the daemon
// handles: model provider keys, bearer tokens, and generic key/value secrets.
func NewScrubber() *Scrubber {
	return &Scrubber{
		patterns: []*regexp.Regexp{
			// Anthropic and OpenAI API keys
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),

			// Bearer tokens
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

			// key/value style secrets
			regexp.MustCompile(`api_key["\s:=]+[^\s"]+`),
			regexp.MustCompile(`password["\s:=]+[^\s"]+`),
			regexp.MustCompile(`token["\s:=]+[a-zA-Z0-9._-]{20,}`),
			regexp.MustCompile(`secret["\s:=]+[^\s"]+`),
		},
	}
}

// AddPattern registers an extra masking pattern.
func (s *Scrubber) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}

// Scrub masks every matching credential in the string.
func (s *Scrubber) Scrub(line string) string {
	out := line
	for _, pattern := range s.patterns {
		out = pattern.ReplaceAllString(out, "[REDACTED]")
	}
	return out
}

// Wrap returns a writer that scrubs everything passing through it.
func (s *Scrubber) Wrap(w io.Writer) io.Writer {
	return &scrubbingWriter{writer: w, scrubber: s}
}

type scrubbingWriter struct {
	writer   io.Writer
	scrubber *Scrubber
}

func (w *scrubbingWriter) Write(p []byte) (n int, err error) {
	scrubbed := w.scrubber.Scrub(string(p))
	return w.writer.Write([]byte(scrubbed))
}
