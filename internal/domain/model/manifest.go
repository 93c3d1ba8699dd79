package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ManifestKey is the composite identity of a depot manifest.
type ManifestKey struct {
	AppID      uint32
	DepotID    uint32
	ManifestID uint64
}

// String renders the key as "app/depot/manifest", the form used in blob
// keys and log lines.
func (k ManifestKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.AppID, k.DepotID, k.ManifestID)
}

// ManifestRecord pairs a manifest key with its raw payload and the time
// the archiver first saw it. Records are immutable once written.
type ManifestRecord struct {
	Key          ManifestKey
	Payload      []byte
	DiscoveredAt time.Time
}

// RetentionTag is a timestamped marker that keeps a manifest reachable in
// the backing repository. The creation time is embedded in the tag name so
// prune eligibility never requires a metadata read.
type RetentionTag struct {
	Name      string
	CreatedAt time.Time
}

// retentionTagPrefix namespaces retention tags away from any other refs
// the backing repository may carry.
const retentionTagPrefix = "keep/"

// NewRetentionTag builds the tag for a manifest key created at t.
func NewRetentionTag(key ManifestKey, t time.Time) RetentionTag {
	name := fmt.Sprintf("%s%d-%d-%d/%d", retentionTagPrefix, key.AppID, key.DepotID, key.ManifestID, t.Unix())
	return RetentionTag{Name: name, CreatedAt: t.Truncate(time.Second)}
}

// ParseRetentionTag recovers a RetentionTag from its name. Returns false
// for refs that are not retention tags or whose timestamp suffix does not
// parse; callers skip those rather than failing the sweep.
func ParseRetentionTag(name string) (RetentionTag, bool) {
	if !strings.HasPrefix(name, retentionTagPrefix) {
		return RetentionTag{}, false
	}
	idx := strings.LastIndex(name, "/")
	if idx < 0 || idx == len(name)-1 {
		return RetentionTag{}, false
	}
	unix, err := strconv.ParseInt(name[idx+1:], 10, 64)
	if err != nil {
		return RetentionTag{}, false
	}
	return RetentionTag{Name: name, CreatedAt: time.Unix(unix, 0)}, true
}

// Expired reports whether the tag is older than the retention window,
// measured from now.
func (t RetentionTag) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(t.CreatedAt) > window
}
