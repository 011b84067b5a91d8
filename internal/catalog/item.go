package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Item is one free course discovered in a catalog listing. Items are
// immutable once built; they live only for the cycle that produced them.
type Item struct {
	ID           string
	Title        string
	URL          string
	Category     string
	Instructor   string
	Rating       string
	DiscoveredAt time.Time
}

// Identity returns the stable dedup key for the item: the catalog-assigned
// id when present, otherwise a digest of the canonical URL.
func (i Item) Identity() string {
	if id := strings.TrimSpace(i.ID); id != "" {
		return id
	}
	return URLIdentity(i.URL)
}

// URLIdentity derives a stable identity from a course URL. Query strings and
// fragments are stripped so tracking parameters do not defeat deduplication.
func URLIdentity(rawURL string) string {
	canonical := strings.TrimSpace(rawURL)
	if idx := strings.IndexAny(canonical, "?#"); idx >= 0 {
		canonical = canonical[:idx]
	}
	canonical = strings.TrimRight(canonical, "/")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:16])
}
