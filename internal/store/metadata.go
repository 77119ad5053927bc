package store

import "corpussync/internal/urlutil"

// IsMetadataField is the reserved payload flag that marks a remote-backend
// point as a side-band kv entry rather than a chunk; it must be excluded
// from every similarity and prefix query via a must_not filter.
const IsMetadataField = "is_metadata"

// OriginalIDField retains a chunk or metadata key's pre-UUID identity in
// the payload of backends that require UUID primary keys.
const OriginalIDField = "original_chunk_id"

// Metadata key builders (§6 "Metadata keys used by the core").

func ETagKey(url string) string     { return "etag:" + url }
func LastmodKey(url string) string  { return "lastmod:" + url }
func SyncCompleteKey(prefix string) string { return "sync_complete:" + prefix }

func LastRunDateKey(repo string) string {
	return "last_run_date:" + urlutil.NormalizeMetadataKey(repo)
}

func ZendeskCursorKey(source string) string {
	return "zendesk_cursor:" + urlutil.NormalizeMetadataKey(source)
}

func CodeSHAKey(repo, branch string) string {
	return "code_sha:" + urlutil.NormalizeMetadataKey(repo) + ":" + urlutil.NormalizeMetadataKey(branch)
}
