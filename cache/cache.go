// Package cache is the persisted de-dupe store that keeps one auction from
// alerting twice. Keys are namespaced by alert phase so an early notice never
// suppresses the final one.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TTL bounds how long a marked key suppresses repeats. A live listing that
// outlives the TTL may alert again; that risk is accepted.
const TTL = 2 * time.Hour

// Meta is a price/time snapshot stored alongside each mark for audit.
type Meta struct {
	PriceCents *int64 `json:"price,omitempty"`
	Secs       *int64 `json:"secs,omitempty"`
	Title      string `json:"title,omitempty"`
}

// Entry is one marked alert key.
type Entry struct {
	TS   int64 `json:"ts"`
	Meta Meta  `json:"meta"`
}

// Cache maps alert keys to their mark entries.
type Cache map[string]Entry

// Key builds the phase-namespaced alert key for a listing.
func Key(phase, site, assetID string) string {
	return fmt.Sprintf("%s-%s-%s", phase, site, assetID)
}

// Load reads the persisted cache and drops entries older than the TTL.
// A missing, unreadable or corrupt file yields an empty cache; alerting must
// never fail on a storage fault.
func Load(path string, now time.Time) Cache {
	data, err := os.ReadFile(path)
	if err != nil {
		return Cache{}
	}
	var raw Cache
	if err := json.Unmarshal(data, &raw); err != nil {
		return Cache{}
	}
	cutoff := now.Add(-TTL).Unix()
	out := make(Cache, len(raw))
	for k, v := range raw {
		if v.TS >= cutoff {
			out[k] = v
		}
	}
	return out
}

// Save persists the full cache. The caller decides whether a failure is
// worth logging; it is never fatal.
func Save(path string, c Cache) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal alert cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write alert cache: %w", err)
	}
	return nil
}

// IsMarked reports whether the key has already alerted within the TTL.
func (c Cache) IsMarked(key string) bool {
	_, ok := c[key]
	return ok
}

// Mark records that the key alerted at now.
func (c Cache) Mark(key string, meta Meta, now time.Time) {
	c[key] = Entry{TS: now.Unix(), Meta: meta}
}
