// Package publish writes rendered pages and their static assets to a
// directory or an S3 bucket.
//
// A destination is either a file path or an s3://bucket/key URL:
//
//	dest, key, err := publish.Open(ctx, "s3://site/index.html", cfg.Publish)
//	err = dest.Put(ctx, key, "text/html; charset=utf-8", html)
//	n, err := publish.PutDir(ctx, dest, cfg.StaticDir(), "static")
package publish

import (
	"bytes"
	"context"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vango-dev/tapas/internal/config"
	"github.com/vango-dev/tapas/internal/errors"
)

// Store receives published objects.
type Store interface {
	// Put stores body under key. Keys use forward slashes.
	Put(ctx context.Context, key, contentType string, body []byte) error
}

// Open parses dest and returns the store it names together with the key
// of the page inside it.
func Open(ctx context.Context, dest string, cfg config.PublishConfig) (Store, string, error) {
	if rest, ok := strings.CutPrefix(dest, "s3://"); ok {
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, "", errors.New("E145").WithDetailf("%q names no bucket", dest)
		}
		if key == "" || strings.HasSuffix(key, "/") {
			key += "index.html"
		}
		s, err := NewS3Store(ctx, bucket, cfg)
		if err != nil {
			return nil, "", err
		}
		return s, key, nil
	}

	abs, err := filepath.Abs(dest)
	if err != nil {
		return nil, "", err
	}
	return &DirStore{Root: filepath.Dir(abs)}, filepath.Base(abs), nil
}

// AssetPrefix returns the key prefix assets get when the page is stored at
// pageKey and served with the given URL prefix.
func AssetPrefix(pageKey, urlPrefix string) string {
	dir := path.Dir(pageKey)
	prefix := strings.Trim(urlPrefix, "/")
	if dir == "." {
		return prefix
	}
	return path.Join(dir, prefix)
}

// PutDir uploads every regular file below dir under prefix and returns the
// number of files written.
func PutDir(ctx context.Context, s Store, dir, prefix string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		body, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		if err := s.Put(ctx, key, ContentType(p, body), body); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, errors.FromError(err, "E145")
	}
	return n, nil
}

// ContentType guesses the MIME type of a file from its extension, then
// from its first bytes.
func ContentType(name string, body []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return http.DetectContentType(body)
}

// DirStore writes objects below a local directory.
type DirStore struct {
	Root string
}

// Put writes body to Root/key, creating parent directories.
func (d *DirStore) Put(ctx context.Context, key, contentType string, body []byte) error {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return errors.New("E145").WithDetailf("empty key %q", key)
	}
	target := filepath.Join(d.Root, filepath.FromSlash(clean[1:]))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.FromError(err, "E145")
	}
	existing, err := os.ReadFile(target)
	if err == nil && bytes.Equal(existing, body) {
		return nil
	}
	if err := os.WriteFile(target, body, 0644); err != nil {
		return errors.FromError(err, "E145")
	}
	return nil
}
