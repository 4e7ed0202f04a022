package logging

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestToFileWritesSessionMarkers(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(ToStderr)

	if err := ToFile(dir); err != nil {
		t.Fatal(err)
	}
	log.Printf("tracing begins")
	Close()

	matches, err := filepath.Glob(filepath.Join(dir, "tracelens-*.log"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("log files = %v (%v), want one dated file", matches, err)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	for _, want := range []string{"session started", "tracing begins", "session ended"} {
		if !strings.Contains(body, want) {
			t.Errorf("log missing %q:\n%s", want, body)
		}
	}
}

func TestToFileAppendsAcrossSessions(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(ToStderr)

	for i := 0; i < 2; i++ {
		if err := ToFile(dir); err != nil {
			t.Fatal(err)
		}
		Close()
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "tracelens-*.log"))
	if len(matches) != 1 {
		t.Fatalf("log files = %v, want sessions appended to one file", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "session started"); n != 2 {
		t.Errorf("session starts = %d, want 2", n)
	}
}

func TestCloseWithoutFileIsHarmless(t *testing.T) {
	t.Cleanup(ToStderr)
	Close()
	Close()
}
