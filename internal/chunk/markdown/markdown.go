// Package markdown implements the heading-aware Markdown chunker
// (§4.4): hierarchy breadcrumbs, small-section merge, large-section
// split with fractional overlap, and a safety-valve flush against
// unbounded buffering.
package markdown

import (
	"math"
	"regexp"
	"strings"

	"corpussync/internal/fingerprint"
	"corpussync/internal/store"
	"corpussync/internal/urlutil"
)

// Config configures one chunking run.
type Config struct {
	ProductName string
	Version     string
	URL         string

	// RootHierarchy seeds every chunk's heading breadcrumb with a fixed
	// prefix, ahead of any in-document headings. Used by the code
	// chunker (§4.5) to root a repo-tree .md file's hierarchy at its
	// relative file path.
	RootHierarchy []string

	// MaxTokens is the per-section budget (MAX_TOKENS in §4.4): a longer
	// section is split into pieces of at most MaxTokens tokens before
	// overlap is prepended. A merged run of small sections is not capped
	// by it, and a piece with its overlap can exceed it.
	MaxTokens int
	// MergeThreshold is the boundary below which a section is folded
	// into the pending merge buffer instead of emitted standalone.
	MergeThreshold int
}

const (
	defaultMaxTokens      = 1024
	defaultMergeThreshold = 128
	overlapFraction       = 0.10
)

var headingRE = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
var trailingAnchorRE = regexp.MustCompile(`\s*\[\]\(#[^)]*\)\s*$`)

type pendingSection struct {
	hierarchy []string
	content   string
}

// Chunk segments a Markdown document into an ordered sequence of
// store.Chunk, with ChunkIndex/TotalChunks assigned in a final pass.
func Chunk(doc string, cfg Config) []store.Chunk {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MergeThreshold <= 0 {
		cfg.MergeThreshold = defaultMergeThreshold
	}

	w := &walker{cfg: cfg}
	doc = strings.ReplaceAll(doc, "\r\n", "\n")
	lines := strings.Split(doc, "\n")

	for _, line := range lines {
		if m := headingRE.FindStringSubmatch(line); m != nil {
			w.finalizeSection()
			level := len(m[1])
			heading := trailingAnchorRE.ReplaceAllString(strings.TrimSpace(m[2]), "")
			if level-1 < len(w.hierarchy) {
				w.hierarchy = w.hierarchy[:level-1]
			}
			w.hierarchy = append(w.hierarchy, heading)
			continue
		}
		w.buffer = append(w.buffer, line)
		// Safety valve: flush whenever the unheaded accumulator alone
		// exceeds MAX_TOKENS, to bound buffering independent of the
		// next heading ever arriving.
		if tokenCount(strings.Join(w.buffer, "\n")) > cfg.MaxTokens {
			w.finalizeSection()
		}
	}
	w.finalizeSection()
	w.flushPendingMerge()

	for i := range w.chunks {
		w.chunks[i].ChunkIndex = i
		w.chunks[i].TotalChunks = len(w.chunks)
	}
	return w.chunks
}

type walker struct {
	cfg        Config
	hierarchy  []string
	buffer     []string
	pendingBuf []pendingSection
	chunks     []store.Chunk
}

func tokenCount(s string) int {
	return len(urlutil.Tokenize(s))
}

// finalizeSection decides the fate of the section accumulated so far
// under the current hierarchy, then resets the buffer.
func (w *walker) finalizeSection() {
	content := strings.TrimSpace(strings.Join(w.buffer, "\n"))
	w.buffer = w.buffer[:0]
	if content == "" {
		return
	}
	hierarchy := append(append([]string(nil), w.cfg.RootHierarchy...), w.hierarchy...)
	count := tokenCount(content)

	switch {
	case count < w.cfg.MergeThreshold:
		w.pendingBuf = append(w.pendingBuf, pendingSection{hierarchy: hierarchy, content: content})
	case count <= w.cfg.MaxTokens:
		w.flushPendingMerge()
		w.emit(hierarchy, content)
	default:
		w.flushPendingMerge()
		for _, piece := range splitWithOverlap(content, w.cfg.MaxTokens) {
			w.emit(hierarchy, piece)
		}
	}
}

// flushPendingMerge emits the accumulated small sections as a single
// chunk, whose hierarchy is the deepest common ancestor of every
// merged section's hierarchy.
func (w *walker) flushPendingMerge() {
	if len(w.pendingBuf) == 0 {
		return
	}
	hierarchies := make([][]string, len(w.pendingBuf))
	bodies := make([]string, len(w.pendingBuf))
	for i, s := range w.pendingBuf {
		hierarchies[i] = s.hierarchy
		bodies[i] = s.content
	}
	common := commonAncestor(hierarchies)
	merged := strings.Join(bodies, "\n\n")
	w.pendingBuf = w.pendingBuf[:0]
	w.emit(common, merged)
}

func (w *walker) emit(hierarchy []string, content string) {
	section := "Introduction"
	if len(hierarchy) > 0 {
		section = hierarchy[len(hierarchy)-1]
	}
	breadcrumb := "[Topic: " + strings.Join(hierarchy, " > ") + "]\n\n"
	prefixed := breadcrumb + content
	hash := fingerprint.Hash(prefixed)
	w.chunks = append(w.chunks, store.Chunk{
		ChunkID:          fingerprint.HashToUUID(hash),
		Content:          prefixed,
		Hash:             hash,
		URL:              w.cfg.URL,
		ProductName:      w.cfg.ProductName,
		Version:          w.cfg.Version,
		HeadingHierarchy: hierarchy,
		Section:          section,
	})
}

// commonAncestor returns the longest shared prefix across all hierarchy
// slices. A single-entry input returns that entry's own hierarchy,
// which is trivially its own common ancestor.
func commonAncestor(hierarchies [][]string) []string {
	if len(hierarchies) == 0 {
		return nil
	}
	common := append([]string(nil), hierarchies[0]...)
	for _, h := range hierarchies[1:] {
		n := len(common)
		if len(h) < n {
			n = len(h)
		}
		i := 0
		for i < n && common[i] == h[i] {
			i++
		}
		common = common[:i]
	}
	return common
}

// splitWithOverlap greedily splits content into pieces of at most
// maxTokens tokens; every piece after the first prepends a trailing
// slice of the previous piece's tokens, ≈10% of its length, as overlap.
func splitWithOverlap(content string, maxTokens int) []string {
	tokens := urlutil.Tokenize(content)
	if len(tokens) == 0 {
		return nil
	}
	var pieces [][]string
	for i := 0; i < len(tokens); i += maxTokens {
		end := i + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		pieces = append(pieces, tokens[i:end])
	}
	out := make([]string, 0, len(pieces))
	var prev []string
	for i, p := range pieces {
		if i == 0 {
			out = append(out, strings.Join(p, ""))
			prev = p
			continue
		}
		overlapCount := int(math.Round(float64(len(prev)) * overlapFraction))
		if overlapCount < 1 {
			overlapCount = 1
		}
		if overlapCount > len(prev) {
			overlapCount = len(prev)
		}
		overlap := prev[len(prev)-overlapCount:]
		combined := make([]string, 0, len(overlap)+len(p))
		combined = append(combined, overlap...)
		combined = append(combined, p...)
		out = append(out, strings.Join(combined, ""))
		prev = p
	}
	return out
}
