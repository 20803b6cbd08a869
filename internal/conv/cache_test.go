package conv

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lichka/internal/models"
)

type fakeFetcher struct {
	mu    sync.Mutex
	lists [][]models.Conversation
	err   error
	calls int
}

func (f *fakeFetcher) GetUserConversations(_ context.Context, _ string) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	list := f.lists[0]
	if len(f.lists) > 1 {
		f.lists = f.lists[1:]
	}
	return list, nil
}

func preview(id, peer, last string) models.Conversation {
	return models.Conversation{
		ID:            id,
		Peer:          peer,
		LastMessage:   last,
		LastMessageAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestCache_RefreshReplacesWholesale(t *testing.T) {
	fetch := &fakeFetcher{lists: [][]models.Conversation{
		{preview("c1", "bob", "hi"), preview("c2", "carol", "yo")},
		{preview("c2", "carol", "bye")},
	}}
	c := NewCache(context.Background(), "alice", fetch, nil)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := len(c.List()); got != 2 {
		t.Fatalf("expected 2 previews, got %d", got)
	}

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	list := c.List()
	if len(list) != 1 || list[0].ID != "c2" || list[0].LastMessage != "bye" {
		t.Errorf("refresh must replace, not merge: %+v", list)
	}
}

func TestCache_RefreshFailureKeepsList(t *testing.T) {
	fetch := &fakeFetcher{lists: [][]models.Conversation{{preview("c1", "bob", "hi")}}}
	c := NewCache(context.Background(), "alice", fetch, nil)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	fetch.mu.Lock()
	fetch.err = errors.New("backend down")
	fetch.mu.Unlock()

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if got := len(c.List()); got != 1 {
		t.Errorf("failed refresh must leave the previous list, got %d previews", got)
	}
}

func TestCache_OnChangeRegisterDuringRefresh(t *testing.T) {
	// Listener installed while background refreshes are in flight;
	// registration must not race and must catch later refreshes.
	fetch := &fakeFetcher{lists: [][]models.Conversation{{preview("c1", "bob", "hi")}}}
	c := NewCache(context.Background(), "alice", fetch, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_ = c.Refresh(context.Background())
		}
	}()

	var fired sync.WaitGroup
	fired.Add(1)
	var once sync.Once
	c.OnChange(func([]models.Conversation) { once.Do(fired.Done) })
	<-done

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	fired.Wait()
}

func TestCache_OnChangeFires(t *testing.T) {
	fetch := &fakeFetcher{lists: [][]models.Conversation{{preview("c1", "bob", "hi")}}}
	c := NewCache(context.Background(), "alice", fetch, nil)

	var notified []models.Conversation
	c.OnChange(func(list []models.Conversation) { notified = list })

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(notified) != 1 || notified[0].ID != "c1" {
		t.Errorf("listener not invoked with the new list: %+v", notified)
	}
}
