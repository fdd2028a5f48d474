package cache

import "fmt"

// Key namespaces. Transcript snapshots are keyed per (user, companion) pair
// so different companions of the same user cache independently.
const (
	transcriptPrefix = "transcript:"
	pendingPrefix    = "pending:"
)

// TranscriptKey returns the cache key for a (user, companion) transcript
// snapshot.
func TranscriptKey(userID, companionID string) string {
	return fmt.Sprintf("%s%s:%s", transcriptPrefix, userID, companionID)
}

// PendingKey returns the cache key for a user's durable pending-message
// list.
func PendingKey(userID string) string {
	return pendingPrefix + userID
}

// TranscriptPrefix returns the namespace prefix for all transcript keys.
func TranscriptPrefix() string { return transcriptPrefix }
