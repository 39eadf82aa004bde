package repl

import (
	"strings"
	"time"
)

// readResponse reads the stdout and stderr sections, each ended by EOT.
// Both terminators are required.
func (s *Session) readResponse(timeout time.Duration) (string, error) {
	bound := stdoutTimeoutFloor
	if scaled := timeout * stdoutTimeoutScale; scaled > bound {
		bound = scaled
	}
	stdout, err := s.readUntil(terminatorBytes, bound, "stdout")
	if err != nil {
		return "", err
	}
	stderr, err := s.readUntil(terminatorBytes, stderrTimeout, "stderr")
	if err != nil {
		return "", err
	}
	if len(stderr) > 0 {
		return "", &RemoteError{Text: normalizeNewlines(string(stderr))}
	}
	return strings.TrimRight(normalizeNewlines(string(stdout)), "\n"), nil
}

var newlineReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func normalizeNewlines(s string) string {
	return newlineReplacer.Replace(s)
}
