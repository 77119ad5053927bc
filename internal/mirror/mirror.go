// Package mirror implements the optional plain-Markdown mirror: a
// separate store, keyed by url, holding the latest rendered Markdown
// for each page independently of the vector store. It sits entirely
// on top of internal/objectstore, reusing its ObjectStore contract
// instead of inventing a second storage abstraction.
package mirror

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"corpussync/internal/objectstore"
)

const keyPrefix = "pages/"

// Mirror is the markdown-mirror contract used by the change-detection
// cascade (layer 1) and the crawl loop's post-run cleanup (§4.7).
type Mirror interface {
	// Get returns the stored Markdown for url, and whether it exists.
	Get(ctx context.Context, url string) (content string, ok bool, err error)

	// Put upserts the Markdown for url.
	Put(ctx context.Context, url, content string) error

	// Delete removes url from the mirror. Not an error if absent.
	Delete(ctx context.Context, url string) error

	// URLs returns every url currently present in the mirror.
	URLs(ctx context.Context) (map[string]struct{}, error)

	// Contains reports whether url is present, without reading its body.
	Contains(ctx context.Context, url string) (bool, error)
}

type store struct {
	backend objectstore.ObjectStore
}

// New wraps an ObjectStore (S3-backed or in-memory) as a Mirror.
func New(backend objectstore.ObjectStore) Mirror {
	return &store{backend: backend}
}

// urlToKey encodes a url as a reversible, object-store-safe key. Raw
// urls contain characters ("://", query separators) that don't survive
// round-tripping through arbitrary backends untouched, so the url is
// base64url-encoded rather than lightly escaped.
func urlToKey(url string) string {
	return keyPrefix + base64.RawURLEncoding.EncodeToString([]byte(url))
}

func keyToURL(key string) (string, bool) {
	encoded := strings.TrimPrefix(key, keyPrefix)
	if encoded == key {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (s *store) Get(ctx context.Context, url string) (string, bool, error) {
	r, _, err := s.backend.Get(ctx, urlToKey(url))
	if errors.Is(err, objectstore.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("mirror get %q: %w", url, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", false, fmt.Errorf("mirror read %q: %w", url, err)
	}
	return string(data), true, nil
}

func (s *store) Put(ctx context.Context, url, content string) error {
	_, err := s.backend.Put(ctx, urlToKey(url), strings.NewReader(content), objectstore.PutOptions{
		ContentType: "text/markdown",
	})
	if err != nil {
		return fmt.Errorf("mirror put %q: %w", url, err)
	}
	return nil
}

func (s *store) Delete(ctx context.Context, url string) error {
	if err := s.backend.Delete(ctx, urlToKey(url)); err != nil {
		return fmt.Errorf("mirror delete %q: %w", url, err)
	}
	return nil
}

func (s *store) URLs(ctx context.Context) (map[string]struct{}, error) {
	urls := make(map[string]struct{})
	token := ""
	for {
		res, err := s.backend.List(ctx, objectstore.ListOptions{
			Prefix:            keyPrefix,
			MaxKeys:           1000,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("mirror list: %w", err)
		}
		for _, obj := range res.Objects {
			if url, ok := keyToURL(obj.Key); ok {
				urls[url] = struct{}{}
			}
		}
		if !res.IsTruncated {
			break
		}
		token = res.NextContinuationToken
	}
	return urls, nil
}

func (s *store) Contains(ctx context.Context, url string) (bool, error) {
	ok, err := s.backend.Exists(ctx, urlToKey(url))
	if err != nil {
		return false, fmt.Errorf("mirror exists %q: %w", url, err)
	}
	return ok, nil
}
