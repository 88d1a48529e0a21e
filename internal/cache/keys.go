package cache

import "fmt"

const (
	KeySyncFull    = "sync:full"
	KeyFeedVersion = "feed:version"
)

func KeyRelationGeometry(relationID int64) string {
	return fmt.Sprintf("relation:%d", relationID)
}

func KeyRoutedPath(routeID string) string {
	return fmt.Sprintf("routed:%s", routeID)
}

// PatternEnrichment matches every enrichment geometry key, for invalidation
// after a feed reload.
const PatternEnrichment = "routed:*"
