package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

var sessionFile *os.File

// ToStderr routes the standard logger to stderr with short flags. This is the
// mode for one-shot commands, where log lines sit next to the command output.
func ToStderr() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime | log.Lshortfile)
}

// ToFile appends the standard logger to a dated session file under dir,
// creating the directory as needed. An empty dir falls back to
// ~/.tracelens/logs. Long-running commands log to a file so the terminal
// stays usable; each session is bracketed by start/end markers.
func ToFile(dir string) error {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".tracelens", "logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("tracelens-%s.log", time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %q: %w", path, err)
	}

	sessionFile = f
	log.SetOutput(f)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Printf("=== session started ===")
	return nil
}

// Close marks the session end and releases the log file, if one is open.
func Close() {
	if sessionFile == nil {
		return
	}
	log.Printf("=== session ended ===")
	sessionFile.Close()
	sessionFile = nil
	log.SetOutput(os.Stderr)
}

// Discard silences the standard logger entirely.
func Discard() {
	log.SetOutput(io.Discard)
}
