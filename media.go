package mdxport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/alnah/go-mdxport/internal/logger"
)

const (
	maxImageBytes   = 50 << 20
	downloadTimeout = 60 * time.Second
)

// downloader saves remote images into a per-document directory. Notion
// file URLs are signed and expire, so images are fetched while rendering.
type downloader struct {
	client *http.Client
	dir    string
	logger logger.Logger
	seen   map[string]string
	names  map[string]bool
}

func newDownloader(client *http.Client, dir string, log logger.Logger) *downloader {
	if client == nil {
		client = &http.Client{Timeout: downloadTimeout}
	}
	return &downloader{
		client: client,
		dir:    dir,
		logger: log,
		seen:   make(map[string]string),
		names:  make(map[string]bool),
	}
}

func (d *downloader) log() logger.Logger {
	if d.logger == nil {
		return logger.NewNop()
	}
	return d.logger
}

// Fetch downloads rawURL and returns the local file path. The file name is
// the URL's base name; a missing or wrong extension is taken from the
// sniffed content type.
func (d *downloader) Fetch(ctx context.Context, rawURL string) (string, error) {
	if p, ok := d.seen[rawURL]; ok {
		return p, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.client.Do(req) // #nosec G107 -- image URLs come from the document
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: %s", redactQuery(rawURL), resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}

	mt := mimetype.Detect(data)
	name := d.uniqueName(fileNameFor(rawURL, mt))
	dst := filepath.Join(d.dir, name)
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return "", err
	}
	d.log().Debug("downloaded %s (%s, %d bytes)", name, mt.String(), len(data))
	d.seen[rawURL] = dst
	return dst, nil
}

// fileNameFor picks the file name for a download. The extension reflects
// the content, not the URL.
func fileNameFor(rawURL string, mt *mimetype.MIME) string {
	base := "image"
	if u, err := url.Parse(rawURL); err == nil {
		if b := path.Base(u.Path); b != "." && b != "/" && b != "" {
			if unescaped, err := url.PathUnescape(b); err == nil {
				b = unescaped
			}
			base = b
		}
	}
	stem := strings.TrimSuffix(base, path.Ext(base))
	ext := strings.ToLower(path.Ext(base))
	if sniffed := mt.Extension(); sniffed != "" && !sameImageExt(ext, sniffed) {
		ext = sniffed
	}
	if stem == "" {
		stem = "image"
	}
	return stem + ext
}

func sameImageExt(a, b string) bool {
	norm := func(e string) string {
		if e == ".jpeg" {
			return ".jpg"
		}
		return e
	}
	return norm(a) == norm(b)
}

func (d *downloader) uniqueName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 2; d.names[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	d.names[candidate] = true
	return candidate
}

// redactQuery drops signed query parameters from error messages.
func redactQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
