package cache

import (
	"fmt"
	"time"
)

// GenerateKey creates a cache key with prefix and ID.
func GenerateKey(prefix string, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

// WindowKey suffixes key with the index of the window containing now, so
// each fixed window counts under its own key.
func WindowKey(key string, window time.Duration, now time.Time) string {
	if window <= 0 {
		return key
	}
	return fmt.Sprintf("%s:%d", key, now.UnixNano()/int64(window))
}
