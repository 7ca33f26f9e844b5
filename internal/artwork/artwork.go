// Package artwork opens poster and backdrop images by catalog path, from a
// local directory or an HTTP origin. Images are streamed through the
// service so catalog paths never reach the player.
package artwork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
	"time"
)

var ErrNotFound = errors.New("artwork not found")

type Image struct {
	Body        io.ReadCloser
	ContentType string
	// Size is -1 when the origin did not say.
	Size int64
}

type Source interface {
	Open(ctx context.Context, path string) (Image, error)
}

// New picks an HTTP origin for http(s) URLs and a directory otherwise.
func New(source string, timeout time.Duration) Source {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return NewHTTP(source, timeout)
	}
	return NewDir(source)
}

// cleanPath turns a catalog path into a rooted-relative one with no way
// out of the root.
func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func contentType(name, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type Dir struct {
	fsys fs.FS
}

func NewDir(root string) *Dir {
	return &Dir{fsys: os.DirFS(root)}
}

func (d *Dir) Open(_ context.Context, p string) (Image, error) {
	name := cleanPath(p)
	if name == "" || !fs.ValidPath(name) {
		return Image{}, ErrNotFound
	}
	f, err := d.fsys.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return Image{}, ErrNotFound
	}
	if err != nil {
		return Image{}, fmt.Errorf("opening artwork: %w", err)
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return Image{}, ErrNotFound
	}
	return Image{Body: f, ContentType: contentType(name, ""), Size: info.Size()}, nil
}

type HTTP struct {
	base   string
	client *http.Client
}

func NewHTTP(base string, timeout time.Duration) *HTTP {
	return &HTTP{
		base:   strings.TrimSuffix(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (h *HTTP) Open(ctx context.Context, p string) (Image, error) {
	name := cleanPath(p)
	if name == "" {
		return Image{}, ErrNotFound
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+"/"+name, nil)
	if err != nil {
		return Image{}, fmt.Errorf("building artwork request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("fetching artwork: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return Image{}, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return Image{}, fmt.Errorf("fetching artwork: unexpected status %d", resp.StatusCode)
	}
	return Image{
		Body:        resp.Body,
		ContentType: contentType(name, resp.Header.Get("Content-Type")),
		Size:        resp.ContentLength,
	}, nil
}

var (
	_ Source = (*Dir)(nil)
	_ Source = (*HTTP)(nil)
)
