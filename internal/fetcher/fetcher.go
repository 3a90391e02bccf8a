// Package fetcher retrieves input files from local paths, HTTP(S) and FTP.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// DefaultMaxBytes caps the size of a fetched input.
const DefaultMaxBytes = 256 << 20

// Options configures Fetch.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	MaxBytes   int64 // 0 = DefaultMaxBytes
	UserAgent  string
}

// Fetch reads the input named by uri into memory. uri may be a local path,
// a file:// URL, an http(s):// URL or an ftp:// URL. The returned name is
// the base file name, used for format detection.
func Fetch(ctx context.Context, uri string, opts Options) (string, []byte, error) {
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	rc, name, err := open(ctx, uri, opts)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return "", nil, eris.Wrapf(err, "fetch: read %s", uri)
	}
	if int64(len(data)) > maxBytes {
		return "", nil, eris.Errorf("fetch: %s exceeds %d bytes", uri, maxBytes)
	}
	return name, data, nil
}

func open(ctx context.Context, uri string, opts Options) (io.ReadCloser, string, error) {
	u, err := url.Parse(uri)
	if err != nil || len(u.Scheme) <= 1 {
		// Plain paths, including Windows drive letters.
		f, err := os.Open(uri)
		if err != nil {
			return nil, "", eris.Wrapf(err, "fetch: open %s", uri)
		}
		return f, filepath.Base(uri), nil
	}

	name := path.Base(u.Path)
	switch strings.ToLower(u.Scheme) {
	case "file":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, "", eris.Wrapf(err, "fetch: open %s", u.Path)
		}
		return f, name, nil
	case "http", "https":
		if fn := u.Query().Get("filename"); fn != "" {
			name = fn
		}
		f := NewHTTPFetcher(HTTPOptions{
			UserAgent:  opts.UserAgent,
			Timeout:    opts.Timeout,
			MaxRetries: opts.MaxRetries,
		})
		rc, err := f.Download(ctx, uri)
		return rc, name, err
	case "ftp":
		rc, err := NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}).Download(ctx, uri)
		return rc, name, err
	default:
		return nil, "", eris.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
}
