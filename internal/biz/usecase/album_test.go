package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
)

type flushRecorder struct {
	mu     sync.Mutex
	groups []*domain.AlbumGroup
	done   chan struct{}
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{done: make(chan struct{}, 16)}
}

func (r *flushRecorder) flush(g *domain.AlbumGroup) {
	r.mu.Lock()
	r.groups = append(r.groups, g)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *flushRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("album was not flushed")
	}
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

func photo(id int, album string) *domain.Message {
	return &domain.Message{
		ID:      id,
		ChatID:  42,
		AlbumID: album,
		Media:   &domain.Media{Kind: domain.MediaPhoto, FileID: "file-" + string(rune('a'+id%26))},
	}
}

func TestAlbumAggregator_FlushesOnceInArrivalOrder(t *testing.T) {
	rec := newFlushRecorder()
	agg := NewAlbumAggregator(30*time.Millisecond, rec.flush)
	rc := domain.RelayContext{Direction: domain.DirectionNewComment, TargetChatID: 9}

	assert.True(t, agg.OnItem("g1", photo(1, "g1"), rc))
	assert.False(t, agg.OnItem("g1", photo(2, "g1"), domain.RelayContext{Direction: domain.DirectionAdminReply}))
	assert.True(t, agg.Join("g1", photo(3, "g1")))

	rec.wait(t)

	require.Equal(t, 1, rec.count())
	g := rec.groups[0]
	assert.Equal(t, "g1", g.GroupID)
	require.Len(t, g.Items, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{g.Items[0].ID, g.Items[1].ID, g.Items[2].ID})
	assert.Equal(t, rc, g.Context, "context comes from the first item")
	assert.False(t, agg.Has("g1"))
}

func TestAlbumAggregator_GroupsAreIndependent(t *testing.T) {
	rec := newFlushRecorder()
	agg := NewAlbumAggregator(30*time.Millisecond, rec.flush)

	agg.OnItem("g1", photo(1, "g1"), domain.RelayContext{})
	agg.OnItem("g1", photo(2, "g1"), domain.RelayContext{})
	agg.OnItem("g2", photo(4, "g2"), domain.RelayContext{})
	agg.OnItem("g1", photo(3, "g1"), domain.RelayContext{})
	assert.Equal(t, 2, agg.Pending())

	rec.wait(t)
	rec.wait(t)

	require.Equal(t, 2, rec.count())
	assert.Equal(t, 0, agg.Pending())

	byGroup := make(map[string][]int)
	for _, g := range rec.groups {
		for _, item := range g.Items {
			byGroup[g.GroupID] = append(byGroup[g.GroupID], item.ID)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, byGroup["g1"])
	assert.Equal(t, []int{4}, byGroup["g2"])
}

func TestAlbumAggregator_FlushIsIdempotent(t *testing.T) {
	rec := newFlushRecorder()
	agg := NewAlbumAggregator(20*time.Millisecond, rec.flush)

	agg.OnItem("g1", photo(1, "g1"), domain.RelayContext{})
	agg.Flush("g1")
	agg.Flush("g1")
	agg.Flush("unknown")

	// Let the stopped timer's deadline pass
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 1, rec.count())
}

func TestAlbumAggregator_JoinUnknownGroup(t *testing.T) {
	agg := NewAlbumAggregator(time.Second, func(*domain.AlbumGroup) {})

	assert.False(t, agg.Join("nope", photo(1, "nope")))
	assert.False(t, agg.Has("nope"))
}

func TestAlbumAggregator_FlushAll(t *testing.T) {
	rec := newFlushRecorder()
	agg := NewAlbumAggregator(time.Hour, rec.flush)

	agg.OnItem("g1", photo(1, "g1"), domain.RelayContext{})
	agg.OnItem("g2", photo(2, "g2"), domain.RelayContext{})
	agg.FlushAll()

	assert.Equal(t, 2, rec.count())
	assert.Equal(t, 0, agg.Pending())
}

func TestAlbumAggregator_FlushAllWaitsForRunningFlush(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	agg := NewAlbumAggregator(10*time.Millisecond, func(*domain.AlbumGroup) {
		close(started)
		<-release
	})

	agg.OnItem("g1", photo(1, "g1"), domain.RelayContext{})
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("timer flush did not start")
	}

	returned := make(chan struct{})
	go func() {
		agg.FlushAll()
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("FlushAll returned while a flush was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("FlushAll did not return after the flush finished")
	}
}
