// Package conv caches the sidebar's conversation previews. A refresh
// re-fetches the whole list and replaces the cache wholesale; no
// incremental merge, which is acceptable at the expected scale.
package conv

import (
	"context"
	"log/slog"
	"sync"

	"lichka/internal/models"
)

type fetcher interface {
	GetUserConversations(ctx context.Context, user string) ([]models.Conversation, error)
}

type store interface {
	ReplaceConversations([]models.Conversation) error
	ListConversations() ([]models.Conversation, error)
}

type Cache struct {
	user  string
	fetch fetcher
	store store
	ctx   context.Context

	mu       sync.Mutex
	list     []models.Conversation
	onChange func([]models.Conversation)
}

func NewCache(ctx context.Context, user string, fetch fetcher, store store) *Cache {
	return &Cache{
		user:  user,
		fetch: fetch,
		store: store,
		ctx:   ctx,
	}
}

// OnChange registers a listener invoked with the new list after every
// successful refresh. Safe to call while refreshes are already running;
// the listener runs on whichever goroutine refreshed.
func (c *Cache) OnChange(fn func([]models.Conversation)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// LoadCached seeds the list from the offline store so the sidebar has
// something to show before the first refresh.
func (c *Cache) LoadCached() {
	if c.store == nil {
		return
	}
	cached, err := c.store.ListConversations()
	if err != nil {
		slog.Warn("conversation cache load failed", "error", err)
		return
	}
	c.replace(cached)
}

// Refresh re-fetches previews and replaces the cached list. On failure
// the previous list stays; the error is returned for logging only.
func (c *Cache) Refresh(ctx context.Context) error {
	list, err := c.fetch.GetUserConversations(ctx, c.user)
	if err != nil {
		return err
	}
	c.replace(list)

	if c.store != nil {
		if err := c.store.ReplaceConversations(list); err != nil {
			slog.Warn("conversation cache persist failed", "error", err)
		}
	}
	return nil
}

// RefreshAsync runs Refresh off the caller's goroutine. Event handlers
// use it so a slow REST call never blocks transport delivery.
func (c *Cache) RefreshAsync() {
	go func() {
		if err := c.Refresh(c.ctx); err != nil {
			slog.Warn("conversation refresh failed", "user", c.user, "error", err)
		}
	}()
}

// List returns a copy of the current previews.
func (c *Cache) List() []models.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Conversation(nil), c.list...)
}

func (c *Cache) replace(list []models.Conversation) {
	c.mu.Lock()
	c.list = append([]models.Conversation(nil), list...)
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(c.List())
	}
}
