// Package sync wires the per-source drivers, the chunkers, the
// embedding oracle and the vector store together into the end-to-end
// ingestion pipeline (§2): source driver -> content producer -> chunker
// -> embed -> reconcile -> store, with watermark advancement gated on
// success and a sequential, declaration-ordered run across sources.
package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"corpussync/internal/changedetect"
	"corpussync/internal/chunk/code"
	"corpussync/internal/chunk/markdown"
	"corpussync/internal/config"
	"corpussync/internal/crawl"
	"corpussync/internal/embedding"
	"corpussync/internal/logging"
	"corpussync/internal/mirror"
	"corpussync/internal/observability"
	"corpussync/internal/source"
	"corpussync/internal/store"
	"corpussync/internal/urlutil"
)

// Engine runs every configured source against one vector-store backend.
type Engine struct {
	Store      store.VectorStore
	Embedder   embedding.Oracle
	Mirror     mirror.Mirror         // optional; nil disables the plain-Markdown mirror
	Fetcher    crawl.Fetcher         // required for website sources
	Classifier crawl.ErrorClassifier // optional; crawl defaults apply if nil
	Metrics    *observability.Metrics // optional; nil disables counters
}

// Run executes every source in cfg.Sources, in declaration order (§5: no
// intra-sync parallelism across sources). A source's failure does not
// abort the run; it is logged and the next source proceeds.
func (e *Engine) Run(ctx context.Context, cfg config.Config) error {
	if err := e.Store.Open(ctx); err != nil {
		return fmt.Errorf("sync: open store: %w", err)
	}
	if err := e.Store.InitMetadata(ctx); err != nil {
		return fmt.Errorf("sync: init metadata: %w", err)
	}

	for _, sc := range cfg.Sources {
		logging.Log.WithField("source", sc.Name).WithField("type", sc.Type).Info("sync: starting source")
		var err error
		switch sc.Type {
		case config.SourceWebsite:
			err = e.runWebsite(ctx, sc)
		case config.SourceLocalDirectory:
			err = e.runLocalDirectory(ctx, sc)
		case config.SourceCode:
			err = e.runCode(ctx, sc)
		case config.SourceZendesk:
			err = e.runZendesk(ctx, sc)
		default:
			err = fmt.Errorf("unknown source type %q", sc.Type)
		}
		if err != nil {
			logging.Log.WithField("source", sc.Name).WithError(err).Error("sync: source failed")
		}
	}
	return nil
}

// embedAndReconcile skips embedding entirely when the url's stored hash
// multiset equals the new chunks' hashes (§4.3 layer 4); otherwise it
// assigns embeddings to chunks and swaps the url's stored chunks via
// store.Reconcile. A permanently failed batch (§6's empty-array sentinel)
// returns an error and nothing is reconciled for the url.
func (e *Engine) embedAndReconcile(ctx context.Context, url string, chunks []store.Chunk) (bool, error) {
	if len(chunks) == 0 {
		return store.Reconcile(ctx, e.Store, url, nil)
	}
	stored, err := e.Store.GetHashesByURL(ctx, url)
	if err != nil {
		return false, err
	}
	fresh := make([]string, len(chunks))
	for i, c := range chunks {
		fresh[i] = c.Hash
	}
	sort.Strings(fresh)
	sort.Strings(stored)
	if strings.Join(fresh, "\n") == strings.Join(stored, "\n") {
		return false, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors := e.Embedder.Embed(ctx, texts)
	if len(vectors) != len(chunks) {
		logging.Log.WithField("url", url).Warn("sync: embedding batch failed, skipping reconcile for this url")
		return false, fmt.Errorf("sync: embedding failed for url %q", url)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	if e.Metrics != nil {
		e.Metrics.ChunksEmbedded(ctx, int64(len(chunks)))
	}
	return store.Reconcile(ctx, e.Store, url, chunks)
}

// headFunc wraps httpHead with a head_requests_total count when metrics
// are configured, otherwise it is httpHead unchanged.
func (e *Engine) headFunc() changedetect.HeadFunc {
	if e.Metrics == nil {
		return httpHead
	}
	return func(ctx context.Context, url string) (changedetect.HeadResult, error) {
		e.Metrics.HeadRequests(ctx, 1)
		return httpHead(ctx, url)
	}
}

// runWebsite delegates crawling to internal/crawl, chunking each fetched
// page as it is processed, then performs the post-loop cleanup (§4.7's
// closing paragraph): prefix-scoped garbage collection, mirror 404
// cleanup, and the sync_complete marker.
func (e *Engine) runWebsite(ctx context.Context, sc config.SourceConfig) error {
	prefix := urlutil.Prefix(sc.BaseURL)

	known, err := e.Store.GetURLsByPrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("sync: seed known urls: %w", err)
	}
	knownURLs := make([]string, 0, len(known))
	for u := range known {
		knownURLs = append(knownURLs, u)
	}
	for _, u := range sc.KnownURLs {
		knownURLs = append(knownURLs, u)
	}

	var sitemapURLs []crawl.QueueItem
	if sc.SitemapURL != "" {
		entries, err := fetchSitemap(ctx, e.Fetcher, sc.SitemapURL)
		if err != nil {
			logging.Log.WithError(err).Warn("sync: sitemap fetch failed, continuing without it")
		} else {
			sitemapURLs = entries
		}
	}

	marker, err := e.Store.GetMetadata(ctx, store.SyncCompleteKey(prefix), "")
	if err != nil {
		return fmt.Errorf("sync: read sync_complete marker: %w", err)
	}

	visited := make(map[string]struct{})
	cfg := crawl.Config{
		BaseURL:          sc.BaseURL,
		Prefix:           prefix,
		KnownURLs:        knownURLs,
		SitemapURLs:      sitemapURLs,
		Fetcher:          e.Fetcher,
		Classifier:       e.Classifier,
		Head:             e.headFunc(),
		Backoff:          changedetect.NewBackoff(),
		EtagStore:        storeKV{e.Store, "etag:"},
		LastmodStore:     storeKV{e.Store, "lastmod:"},
		ForceFullSync:    sc.ForceFullSync,
		SourceIncomplete: marker == "",
		MarkdownMirror:   e.Mirror,
		Visited:          visited,
		OnSkip: func(url string) {
			observability.LoggerWithTrace(ctx).Info().Str("url", url).Str("decision", "skip").Msg("change-detection cascade")
			if e.Metrics != nil {
				e.Metrics.PagesSkipped(ctx, 1)
			}
		},
		OnProcessed: func(url string) {
			observability.LoggerWithTrace(ctx).Info().Str("url", url).Str("decision", "process").Msg("change-detection cascade")
			if e.Metrics != nil {
				e.Metrics.PagesProcessed(ctx, 1)
			}
		},
		Process: func(ctx context.Context, url, content string) error {
			chunks := markdown.Chunk(content, markdown.Config{
				ProductName: sc.ProductName,
				Version:     sc.Version,
				URL:         url,
			})
			if e.Mirror != nil {
				if err := e.Mirror.Put(ctx, url, content); err != nil {
					logging.Log.WithField("url", url).WithError(err).Warn("sync: mirror put failed")
				}
			}
			_, err := e.embedAndReconcile(ctx, url, chunks)
			return err
		},
	}

	result, err := source.RunWebsite(ctx, cfg)
	if err != nil {
		return fmt.Errorf("sync: website crawl: %w", err)
	}

	if !result.HasNetworkErrors {
		if err := e.Store.RemoveObsoleteURLs(ctx, prefix, visited); err != nil {
			logging.Log.WithError(err).Warn("sync: obsolete url cleanup failed")
		}
		if e.Mirror != nil {
			if err := cleanupMirror(ctx, e.Mirror, visited, result.NotFoundURLs); err != nil {
				logging.Log.WithError(err).Warn("sync: mirror cleanup failed")
			}
		}
		if err := e.Store.SetMetadata(ctx, store.SyncCompleteKey(prefix), time.Now().UTC().Format(time.RFC3339), 0); err != nil {
			logging.Log.WithError(err).Warn("sync: failed to write sync_complete marker")
		}
	}
	return nil
}

func cleanupMirror(ctx context.Context, m mirror.Mirror, visited map[string]struct{}, notFound map[string]struct{}) error {
	urls, err := m.URLs(ctx)
	if err != nil {
		return err
	}
	for u := range urls {
		if _, ok := notFound[u]; ok {
			_ = m.Delete(ctx, u)
			continue
		}
		if _, ok := visited[u]; !ok {
			_ = m.Delete(ctx, u)
		}
	}
	return nil
}

// storeKV adapts store.VectorStore's side-band metadata accessors to
// crawl.KV, namespacing keys with a fixed prefix (etag:/lastmod:).
type storeKV struct {
	s      store.VectorStore
	prefix string
}

func (k storeKV) Get(ctx context.Context, url string) (string, bool, error) {
	v, err := k.s.GetMetadata(ctx, k.prefix+url, "")
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (k storeKV) Set(ctx context.Context, url, value string) error {
	return k.s.SetMetadata(ctx, k.prefix+url, value, 0)
}

// runLocalDirectory walks a directory tree and chunks every eligible
// file as a Markdown document (non-code source per §4.8).
func (e *Engine) runLocalDirectory(ctx context.Context, sc config.SourceConfig) error {
	root := sc.Path
	seen, err := source.Walk(ctx, source.WalkConfig{
		Root:              root,
		Recursive:         sc.Recursive,
		IncludeExtensions: sc.IncludeExtensions,
		ExcludeExtensions: sc.ExcludeExtensions,
		MaxSize:           sc.MaxSizeBytes,
	}, func(f source.FileItem) error {
		url := "file://" + filepath.ToSlash(filepath.Join(root, f.Path))
		chunks := markdown.Chunk(f.Content, markdown.Config{
			ProductName: sc.ProductName,
			Version:     sc.Version,
			URL:         url,
		})
		if e.Metrics != nil {
			e.Metrics.PagesProcessed(ctx, 1)
		}
		_, err := e.embedAndReconcile(ctx, url, chunks)
		return err
	})
	if err != nil {
		return fmt.Errorf("sync: local directory walk: %w", err)
	}
	return e.Store.RemoveObsoleteFiles(ctx, root, seen, "file://"+filepath.ToSlash(root))
}

// runCode checks out (or opens) a code repository and chunks every
// eligible source file with the AST-guided code chunker.
func (e *Engine) runCode(ctx context.Context, sc config.SourceConfig) error {
	repoCfg := source.RepoConfig{
		RepoURL:   sc.RepoURL,
		LocalPath: sc.Path,
		Branch:    sc.Branch,
	}
	checkout, err := source.Checkout(ctx, repoCfg)
	if err != nil {
		return fmt.Errorf("sync: repo checkout: %w", err)
	}

	normalizedRepo := urlutil.NormalizeMetadataKey(firstNonEmpty(sc.RepoURL, sc.Path))
	normalizedBranch := urlutil.NormalizeMetadataKey(checkout.Branch)
	shaKey := fmt.Sprintf("code_sha:%s:%s", normalizedRepo, normalizedBranch)

	lastSHA, err := e.Store.GetMetadata(ctx, shaKey, "")
	if err != nil {
		return fmt.Errorf("sync: read code_sha: %w", err)
	}
	if lastSHA == checkout.CommitSHA {
		logging.Log.WithField("source", sc.Name).Info("sync: code source unchanged, skipping")
		return nil
	}

	seen, err := source.WalkRepo(ctx, repoCfg, func(f source.FileItem) error {
		url := "repo://" + filepath.ToSlash(filepath.Join(sc.RepoURL, f.Path))
		lang := languageFromExtension(f.Path)
		chunks := code.Chunk(ctx, f.Content, code.Config{
			ProductName: sc.ProductName,
			Version:     sc.Version,
			URL:         url,
			FilePath:    f.Path,
			Language:    lang,
			Branch:      checkout.Branch,
			Repo:        sc.RepoURL,
		})
		if e.Metrics != nil {
			e.Metrics.PagesProcessed(ctx, 1)
		}
		_, err := e.embedAndReconcile(ctx, url, chunks)
		return err
	})
	if err != nil {
		return fmt.Errorf("sync: repo walk: %w", err)
	}

	urlRewrite := "repo://" + filepath.ToSlash(sc.RepoURL)
	if err := e.Store.RemoveObsoleteFiles(ctx, sc.Path, seen, urlRewrite); err != nil {
		return fmt.Errorf("sync: obsolete file cleanup: %w", err)
	}
	return e.Store.SetMetadata(ctx, shaKey, checkout.CommitSHA, 0)
}

// runZendesk pages through a ticket stream, upserting or deleting
// chunks per ticket status.
func (e *Engine) runZendesk(ctx context.Context, sc config.SourceConfig) error {
	cursorKey := "zendesk_cursor:" + urlutil.NormalizeMetadataKey(sc.APIBaseURL)
	return source.Run(ctx, source.Config{
		Fetch:       zendeskFetcher(sc),
		CursorKey:   cursorKey,
		CursorStore: storeCursorStore{e.Store},
		ProcessTicket: func(ctx context.Context, t source.Ticket) error {
			url := fmt.Sprintf("%s/tickets/%s", sc.APIBaseURL, t.ID)
			chunks := markdown.Chunk(t.Content, markdown.Config{
				ProductName: sc.ProductName,
				Version:     sc.Version,
				URL:         url,
			})
			if e.Metrics != nil {
				e.Metrics.PagesProcessed(ctx, 1)
			}
			_, err := e.embedAndReconcile(ctx, url, chunks)
			return err
		},
		DeleteTicket: func(ctx context.Context, t source.Ticket) error {
			url := fmt.Sprintf("%s/tickets/%s", sc.APIBaseURL, t.ID)
			return e.Store.RemoveByURL(ctx, url)
		},
	})
}

type storeCursorStore struct{ s store.VectorStore }

func (c storeCursorStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.s.GetMetadata(ctx, key, "")
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (c storeCursorStore) Set(ctx context.Context, key, value string) error {
	return c.s.SetMetadata(ctx, key, value, 0)
}

func languageFromExtension(p string) string {
	ext := strings.TrimPrefix(filepath.Ext(p), ".")
	switch ext {
	case "go":
		return "go"
	case "py":
		return "python"
	case "js", "jsx":
		return "javascript"
	case "ts":
		return "typescript"
	case "tsx":
		return "tsx"
	case "md":
		return "markdown"
	default:
		return ext
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
