package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"corpussync/internal/fingerprint"
)

// qdrantStore is the remote vector-service backend (§6 backend 2): one
// collection per (product, version), chunk points keyed by a UUID
// derived from chunk_id, and side-band metadata stored as zero-vector
// points flagged is_metadata: true.
type qdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrant opens (and lazily creates) a Qdrant collection for one
// (product, version) pair. dsn may carry an api_key query parameter,
// e.g. "http://localhost:6334?api_key=...".
func NewQdrant(dsn, collection string, dimension int, metric string) (VectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("store: qdrant collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("store: invalid port in qdrant dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create qdrant client: %w", err)
	}
	return &qdrantStore{
		client:     client,
		collection: collection,
		dimension:  dimension,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
	}, nil
}

func (q *qdrantStore) Open(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("store: check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	if q.dimension <= 0 {
		return fmt.Errorf("store: qdrant requires a positive dimension")
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("store: create collection: %w", err)
	}
	return nil
}

// InitMetadata is a no-op: metadata rows share the chunk collection,
// distinguished only by the is_metadata payload flag.
func (q *qdrantStore) InitMetadata(context.Context) error { return nil }

func (q *qdrantStore) pointID(id string) string {
	uuidStr := fingerprint.HashToUUID(fingerprint.Hash(id))
	if looksLikeUUID(id) {
		uuidStr = id
	}
	return uuidStr
}

func looksLikeUUID(s string) bool {
	return len(s) == 36 && s[8] == '-' && s[13] == '-' && s[18] == '-' && s[23] == '-'
}

func (q *qdrantStore) Insert(ctx context.Context, c Chunk) error {
	if c.Hash == "" {
		c.Hash = fingerprint.Hash(c.Content)
	}
	uuidStr := q.pointID(c.ChunkID)
	hierarchy, err := json.Marshal(c.HeadingHierarchy)
	if err != nil {
		return fmt.Errorf("store: marshal heading hierarchy: %w", err)
	}
	payload := map[string]any{
		OriginalIDField:     c.ChunkID,
		"content":           c.Content,
		"hash":              c.Hash,
		"url":               c.URL,
		"product_name":      c.ProductName,
		"version":           c.Version,
		"branch":            c.Branch,
		"repo":              c.Repo,
		"heading_hierarchy": string(hierarchy),
		"section":           c.Section,
		"chunk_index":       int64(c.ChunkIndex),
		"total_chunks":      int64(c.TotalChunks),
	}
	vec := make([]float32, len(c.Embedding))
	copy(vec, c.Embedding)
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (q *qdrantStore) GetHashesByURL(ctx context.Context, u string) ([]string, error) {
	points, err := q.scrollByFilter(ctx, urlFilter(u, false))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(points))
	for _, p := range points {
		if h, ok := p.Payload["hash"]; ok {
			out = append(out, h.GetStringValue())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (q *qdrantStore) RemoveByURL(ctx context.Context, u string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelectorFilter(urlFilter(u, false)),
	})
	return err
}

func (q *qdrantStore) RemoveObsoleteURLs(ctx context.Context, prefix string, visited map[string]struct{}) error {
	points, err := q.scrollByFilter(ctx, prefixFilter(prefix))
	if err != nil {
		return err
	}
	for _, p := range points {
		u := p.Payload["url"].GetStringValue()
		if _, ok := visited[u]; ok {
			continue
		}
		if err := q.RemoveByURL(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (q *qdrantStore) RemoveObsoleteFiles(ctx context.Context, basePath string, seen map[string]struct{}, urlRewrite string) error {
	rewrite := strings.TrimSuffix(strings.TrimPrefix(urlRewrite, "./"), "/")
	points, err := q.scrollByFilter(ctx, prefixFilter(basePath))
	if err != nil {
		return err
	}
	for _, p := range points {
		u := p.Payload["url"].GetStringValue()
		candidate := u
		if rewrite != "" {
			candidate = strings.TrimPrefix(u, rewrite+"/")
		}
		_, seenCandidate := seen[candidate]
		_, seenRaw := seen[u]
		if seenCandidate || seenRaw {
			continue
		}
		if err := q.RemoveByURL(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (q *qdrantStore) GetURLsByPrefix(ctx context.Context, prefix string) (map[string]struct{}, error) {
	points, err := q.scrollByFilter(ctx, prefixFilter(prefix))
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{})
	for _, p := range points {
		out[p.Payload["url"].GetStringValue()] = struct{}{}
	}
	return out, nil
}

func (q *qdrantStore) GetMetadata(ctx context.Context, key string, def string) (string, error) {
	id := fingerprint.NamespaceUUID(key)
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return "", err
	}
	if len(points) == 0 {
		return def, nil
	}
	if v, ok := points[0].Payload["value"]; ok {
		return v.GetStringValue(), nil
	}
	return def, nil
}

func (q *qdrantStore) SetMetadata(ctx context.Context, key, value string, dim int) error {
	id := fingerprint.NamespaceUUID(key)
	if dim <= 0 {
		dim = q.dimension
	}
	if dim <= 0 {
		dim = 1
	}
	zero := make([]float32, dim)
	payload := map[string]any{
		IsMetadataField: true,
		"key":           key,
		"value":         value,
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectorsDense(zero),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (q *qdrantStore) Close() error { return q.client.Close() }

// scrollByFilter pages through every point matching filter, excluding
// is_metadata rows via must_not, per §4.6's query/scroll contract.
func (q *qdrantStore) scrollByFilter(ctx context.Context, matchFilter *qdrant.Condition) ([]*qdrant.RetrievedPoint, error) {
	full := &qdrant.Filter{
		Must:    []*qdrant.Condition{matchFilter},
		MustNot: []*qdrant.Condition{qdrant.NewMatchBool(IsMetadataField, true)},
	}
	var out []*qdrant.RetrievedPoint
	var offset *qdrant.PointId
	const pageSize = 256
	for {
		limit := uint32(pageSize)
		resp, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Filter:         full,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, resp...)
		if len(resp) < pageSize {
			break
		}
		offset = resp[len(resp)-1].Id
	}
	return out, nil
}

func urlFilter(u string, _ bool) *qdrant.Condition {
	return qdrant.NewMatch("url", u)
}

func prefixFilter(prefix string) *qdrant.Condition {
	return qdrant.NewMatchText("url", prefix)
}
