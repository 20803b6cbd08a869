// Package dedup suppresses duplicate CHAT deliveries. The session holds
// two parallel subscriptions for messages (user queue plus the broadcast
// fallback) and a broker may hand the same message to both; a short-lived
// fingerprint cache keeps the thread from rendering it twice.
package dedup

import (
	"context"
	"strings"
	"time"

	"github.com/c-pro/geche"

	"lichka/internal/models"
)

type Cache struct {
	seen geche.Geche[string, struct{}]
}

// New creates a cache whose fingerprints expire after window.
func New(ctx context.Context, window time.Duration) *Cache {
	cleanup := window / 10
	if cleanup < 100*time.Millisecond {
		cleanup = 100 * time.Millisecond
	}
	return &Cache{
		seen: geche.NewMapTTLCache[string, struct{}](ctx, window, cleanup),
	}
}

// Key builds the event fingerprint. Only the identity-bearing fields
// participate; two deliveries of the same broker message always agree
// on all five.
func Key(e models.ChatEvent) string {
	return strings.Join([]string{
		e.Sender,
		e.Recipient,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.ConversationID,
		e.Content,
	}, "\x1f")
}

// ShouldAccept reports whether the event is first of its kind within the
// retention window and records it if so. Only CHAT events participate;
// everything else passes through untouched.
func (c *Cache) ShouldAccept(e models.ChatEvent) bool {
	if e.Type != models.EventChat {
		return true
	}
	key := Key(e)
	if _, err := c.seen.Get(key); err == nil {
		return false
	}
	c.seen.Set(key, struct{}{})
	return true
}
