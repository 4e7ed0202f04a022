package assets

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// FontFace is one @font-face declaration extracted from a stylesheet.
type FontFace struct {
	Family string
	Style  string
	Weight string
	URL    string
	Format string
}

// userAgent requests woff2 sources; font CDNs serve legacy formats to
// unknown clients.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

var (
	faceRe   = regexp.MustCompile(`@font-face\s*\{[^}]*\}`)
	familyRe = regexp.MustCompile(`font-family:\s*'([^']+)'`)
	styleRe  = regexp.MustCompile(`font-style:\s*(\w+)`)
	weightRe = regexp.MustCompile(`font-weight:\s*(\w+)`)
	srcRe    = regexp.MustCompile(`url\(([^)]+)\)(?:\s*format\('([^']+)'\))?`)
)

// ParseFontFaces extracts the font faces a stylesheet declares.
func ParseFontFaces(css string) []FontFace {
	var faces []FontFace
	for _, block := range faceRe.FindAllString(css, -1) {
		var f FontFace
		if m := familyRe.FindStringSubmatch(block); m != nil {
			f.Family = m[1]
		}
		if m := styleRe.FindStringSubmatch(block); m != nil {
			f.Style = m[1]
		}
		if m := weightRe.FindStringSubmatch(block); m != nil {
			f.Weight = m[1]
		}
		if m := srcRe.FindStringSubmatch(block); m != nil {
			f.URL = strings.Trim(m[1], `'"`)
			f.Format = m[2]
		}
		if f.URL != "" {
			faces = append(faces, f)
		}
	}
	return faces
}

// LocalName derives a stable filename for a face from its properties.
func LocalName(f FontFace) string {
	family := strings.ToLower(strings.ReplaceAll(f.Family, " ", "-"))
	if family == "" {
		family = "font"
	}
	style := f.Style
	if style == "" {
		style = "normal"
	}
	weight := f.Weight
	if weight == "" {
		weight = "400"
	}
	ext := ".woff2"
	if f.Format != "" && f.Format != "woff2" {
		ext = "." + f.Format
	}
	return fmt.Sprintf("%s-%s-%s%s", family, style, weight, ext)
}

// RewriteCSS replaces remote font URLs with their local names.
func RewriteCSS(css string, faces []FontFace) string {
	for _, f := range faces {
		css = strings.ReplaceAll(css, f.URL, LocalName(f))
	}
	return css
}

// Downloader mirrors a font stylesheet and its referenced files into a local
// directory.
type Downloader struct {
	Dir        string
	httpClient *http.Client
}

// NewDownloader creates a downloader writing under dir.
func NewDownloader(dir string) *Downloader {
	return &Downloader{
		Dir:        dir,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads the stylesheet at cssURL, mirrors every referenced font
// file (skipping ones already on disk) and writes a rewritten fonts.css that
// points at the local copies. Returns how many font files were downloaded.
func (d *Downloader) Fetch(ctx context.Context, cssURL string) (int, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create assets directory %q: %w", d.Dir, err)
	}

	css, err := d.fetchText(ctx, cssURL)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch stylesheet: %w", err)
	}

	faces := ParseFontFaces(css)
	if len(faces) == 0 {
		return 0, fmt.Errorf("stylesheet at %s declares no font faces", cssURL)
	}

	downloaded := 0
	for _, face := range faces {
		path := filepath.Join(d.Dir, LocalName(face))
		if _, err := os.Stat(path); err == nil {
			log.Printf("font %s already present, skipping", LocalName(face))
			continue
		}

		if err := d.fetchFile(ctx, face.URL, path); err != nil {
			return downloaded, fmt.Errorf("failed to download %s: %w", face.URL, err)
		}
		downloaded++
	}

	local := RewriteCSS(css, faces)
	cssPath := filepath.Join(d.Dir, "fonts.css")
	if err := os.WriteFile(cssPath, []byte(local), 0o644); err != nil {
		return downloaded, fmt.Errorf("failed to write %q: %w", cssPath, err)
	}

	return downloaded, nil
}

func (d *Downloader) fetchText(ctx context.Context, url string) (string, error) {
	data, err := d.fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (d *Downloader) fetchFile(ctx context.Context, url, path string) error {
	data, err := d.fetch(ctx, url)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (d *Downloader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}
