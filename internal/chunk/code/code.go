// Package code implements the AST-guided code chunker (§4.5): parse
// with a tree-sitter grammar, recurse into the tree emitting any node
// that fits the token budget, fall back to a leaf-as-is or a pure
// token chunker when parsing is unavailable, then greedily merge
// adjacent candidates back together without crossing the budget.
package code

import (
	"context"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"corpussync/internal/chunk/markdown"
	"corpussync/internal/fingerprint"
	"corpussync/internal/store"
	"corpussync/internal/urlutil"
)

// Config configures one chunking run.
type Config struct {
	ProductName string
	Version     string
	URL         string
	FilePath    string // relative path, used in the [File: ...] prefix
	Language    string // grammar name; hyphens normalized to underscores
	Branch      string
	Repo        string

	// Budget is the per-chunk token budget (default 512, per §4.5).
	Budget int
}

const defaultBudget = 512

var grammars = map[string]*sitter.Language{
	"go":         golang.GetLanguage(),
	"javascript": javascript.GetLanguage(),
	"jsx":        javascript.GetLanguage(),
	"typescript": typescript.GetLanguage(),
	"tsx":        tsx.GetLanguage(),
	"python":     python.GetLanguage(),
}

// normalizeLanguage replaces hyphens with underscores, e.g. "c-sharp"
// -> "c_sharp", matching the grammar-lookup convention of §4.5.
func normalizeLanguage(lang string) string {
	return strings.ReplaceAll(lang, "-", "_")
}

// Chunk segments source into an ordered sequence of store.Chunk. For
// ".md" files it delegates entirely to the Markdown chunker, treating
// FilePath as the root of the heading hierarchy.
func Chunk(ctx context.Context, source string, cfg Config) []store.Chunk {
	if cfg.Budget <= 0 {
		cfg.Budget = defaultBudget
	}
	if path.Ext(cfg.FilePath) == ".md" {
		return chunkMarkdownFile(source, cfg)
	}

	lang := normalizeLanguage(cfg.Language)
	tsLang, ok := grammars[lang]
	if !ok {
		return finalize(tokenChunk(source, cfg.Budget), cfg)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(tsLang)

	tree, err := parser.ParseCtx(ctx, nil, []byte(source))
	if err != nil || tree == nil {
		return finalize(tokenChunk(source, cfg.Budget), cfg)
	}
	root := tree.RootNode()

	var candidates []string
	collectCandidates(root, []byte(source), cfg.Budget, &candidates)
	merged := mergeCandidates(candidates, cfg.Budget)
	return finalize(merged, cfg)
}

// collectCandidates recurses over the AST: a node whose text fits the
// budget is emitted whole; otherwise its children are visited instead.
// A childless node that still exceeds budget is emitted as-is, since
// it cannot be divided further without data loss.
func collectCandidates(n *sitter.Node, source []byte, budget int, out *[]string) {
	text := string(source[n.StartByte():n.EndByte()])
	if tokenCount(text) <= budget || n.ChildCount() == 0 {
		if strings.TrimSpace(text) != "" {
			*out = append(*out, text)
		}
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		collectCandidates(child, source, budget, out)
	}
}

// mergeCandidates greedily joins adjacent candidates while their
// combined token count stays within budget (§4.5 step 3). Candidates
// whose trimmed text is empty are skipped entirely.
func mergeCandidates(candidates []string, budget int) []string {
	var merged []string
	var current string
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if current == "" {
			current = c
			continue
		}
		joined := current + "\n" + c
		if tokenCount(joined) <= budget {
			current = joined
			continue
		}
		merged = append(merged, current)
		current = c
	}
	if current != "" {
		merged = append(merged, current)
	}
	return merged
}

// tokenChunk is the pure whitespace-token fallback used when parsing
// fails or the language has no registered grammar.
func tokenChunk(source string, budget int) []string {
	tokens := urlutil.Tokenize(source)
	if len(tokens) == 0 {
		return nil
	}
	var out []string
	for i := 0; i < len(tokens); i += budget {
		end := i + budget
		if end > len(tokens) {
			end = len(tokens)
		}
		piece := strings.Join(tokens[i:end], "")
		if strings.TrimSpace(piece) != "" {
			out = append(out, piece)
		}
	}
	return out
}

func tokenCount(s string) int {
	return len(urlutil.Tokenize(s))
}

// finalize wraps each raw piece in the [File: ...] prefix, derives its
// hash/id, and assigns ChunkIndex/TotalChunks. Branch/Repo are recorded
// only in the Chunk's own fields, never in the prefix.
func finalize(pieces []string, cfg Config) []store.Chunk {
	filePath := normalizeFilePath(cfg.FilePath)
	prefix := "[File: " + filePath + "]\n\n"

	chunks := make([]store.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		prefixed := prefix + piece
		hash := fingerprint.Hash(prefixed)
		chunks = append(chunks, store.Chunk{
			ChunkID:     fingerprint.HashToUUID(hash),
			Content:     prefixed,
			Hash:        hash,
			URL:         cfg.URL,
			ProductName: cfg.ProductName,
			Version:     cfg.Version,
			Branch:      cfg.Branch,
			Repo:        cfg.Repo,
			Section:     filePath,
		})
	}
	for i := range chunks {
		chunks[i].ChunkIndex = i
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

func normalizeFilePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// chunkMarkdownFile delegates a .md source file to the Markdown
// chunker, rooting its heading hierarchy at the file's relative path.
func chunkMarkdownFile(source string, cfg Config) []store.Chunk {
	return markdown.Chunk(source, markdown.Config{
		ProductName:   cfg.ProductName,
		Version:       cfg.Version,
		URL:           cfg.URL,
		RootHierarchy: []string{normalizeFilePath(cfg.FilePath)},
		MaxTokens:     cfg.Budget * 2,
	})
}
