package usecase

import (
	"sync"
	"time"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
)

// DefaultAlbumWindow is the quiescence window counted from the first item of a group
const DefaultAlbumWindow = 700 * time.Millisecond

// FlushFunc receives a complete album group. It runs on the timer goroutine.
type FlushFunc func(group *domain.AlbumGroup)

// AlbumAggregator buffers album parts until the window after the first part elapses,
// then hands the whole group to the flush callback exactly once
type AlbumAggregator struct {
	mu       sync.Mutex
	window   time.Duration
	groups   map[string]*albumBuffer
	onFlush  FlushFunc
	inflight sync.WaitGroup
}

type albumBuffer struct {
	items []*domain.Message
	ctx   domain.RelayContext
	timer *time.Timer
}

// NewAlbumAggregator creates a new album aggregator
func NewAlbumAggregator(window time.Duration, onFlush FlushFunc) *AlbumAggregator {
	if window <= 0 {
		window = DefaultAlbumWindow
	}
	return &AlbumAggregator{
		window:  window,
		groups:  make(map[string]*albumBuffer),
		onFlush: onFlush,
	}
}

// OnItem buffers an item. The first item of a group stores the context and arms the
// timer; later items are appended and do not extend the deadline.
// Returns true when the item opened the group.
func (a *AlbumAggregator) OnItem(groupID string, item *domain.Message, ctx domain.RelayContext) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if buf, ok := a.groups[groupID]; ok {
		buf.items = append(buf.items, item)
		return false
	}

	buf := &albumBuffer{
		items: []*domain.Message{item},
		ctx:   ctx,
	}
	buf.timer = time.AfterFunc(a.window, func() { a.Flush(groupID) })
	a.groups[groupID] = buf
	return true
}

// Join appends the item to an open group. Returns false when no such group is buffered.
func (a *AlbumAggregator) Join(groupID string, item *domain.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.groups[groupID]
	if !ok {
		return false
	}
	buf.items = append(buf.items, item)
	return true
}

// Has checks if a group is currently buffered
func (a *AlbumAggregator) Has(groupID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.groups[groupID]
	return ok
}

// Pending returns the number of buffered groups
func (a *AlbumAggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// Flush removes the group and hands it to the callback. Flushing an unknown or
// already flushed group is a no-op.
func (a *AlbumAggregator) Flush(groupID string) {
	a.mu.Lock()
	buf, ok := a.groups[groupID]
	if ok {
		delete(a.groups, groupID)
		buf.timer.Stop()
		a.inflight.Add(1)
	}
	a.mu.Unlock()

	if !ok {
		return
	}
	defer a.inflight.Done()
	if len(buf.items) == 0 {
		return
	}

	a.onFlush(&domain.AlbumGroup{
		GroupID: groupID,
		Items:   buf.items,
		Context: buf.ctx,
	})
}

// FlushAll flushes every buffered group right away and waits for flushes already
// running on timer goroutines, used on shutdown
func (a *AlbumAggregator) FlushAll() {
	a.mu.Lock()
	ids := make([]string, 0, len(a.groups))
	for id := range a.groups {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	for _, id := range ids {
		a.Flush(id)
	}
	a.inflight.Wait()
}
