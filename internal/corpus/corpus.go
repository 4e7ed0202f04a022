package corpus

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// Document is one training text with its provenance.
type Document struct {
	Source string
	Text   string
}

// Loader reads training texts from a directory of plain-text, markdown and
// PDF files.
type Loader struct {
	extensions map[string]bool
}

// NewLoader accepts the file extensions to load (with leading dots). An
// empty list falls back to .txt, .md and .pdf.
func NewLoader(extensions []string) *Loader {
	if len(extensions) == 0 {
		extensions = []string{".txt", ".md", ".pdf"}
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &Loader{extensions: allowed}
}

// LoadFile reads a single document.
func (l *Loader) LoadFile(path string) (Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !l.extensions[ext] {
		return Document{}, fmt.Errorf("unsupported corpus file type %q", ext)
	}

	text, err := extractText(path, ext)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read corpus file %q: %w", path, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Document{}, fmt.Errorf("corpus file %q has no text", path)
	}

	return Document{Source: filepath.Base(path), Text: text}, nil
}

// LoadDir walks dir and loads every supported document, sorted by path for
// stable ordering. Unreadable or empty files are skipped rather than failing
// the whole walk.
func (l *Loader) LoadDir(dir string) ([]Document, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if l.extensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk corpus directory %q: %w", dir, err)
	}
	sort.Strings(paths)

	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		doc, err := l.LoadFile(path)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func extractText(path, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDFText(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func extractPDFText(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = file.Close()
	}()
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
