package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/storage"
	"github.com/mamadbah2/pharmacy/internal/storage/memory"
)

type doc struct{ ID string }

func seeded(t *testing.T, n int) *memory.Collection[doc] {
	t.Helper()
	store := memory.NewCollection[doc]()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("doc-%03d", i)
		_, err := store.Put(context.Background(), id, doc{ID: id})
		require.NoError(t, err)
	}
	return store
}

type failingReader struct {
	storage.Reader[doc]
	err error
}

func (f failingReader) GetAll(ctx context.Context) ([]doc, error) { return nil, f.err }

func (f failingReader) GetPage(ctx context.Context, token string, size int) ([]doc, string, error) {
	return nil, "", f.err
}

func TestCursorWalksAllPages(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, 55)
	var cursor Cursor[doc]

	var sizes []int
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		page, err := cursor.Next(ctx, store, 20, i == 0)
		require.NoError(t, err)
		sizes = append(sizes, len(page))
		for _, d := range page {
			assert.False(t, seen[d.ID], "duplicate %s", d.ID)
			seen[d.ID] = true
		}
	}

	assert.Equal(t, []int{20, 20, 15, 0}, sizes)
	assert.Len(t, seen, 55)
}

func TestCursorRefreshRestarts(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, 30)
	var cursor Cursor[doc]

	first, err := cursor.Next(ctx, store, 20, true)
	require.NoError(t, err)
	_, err = cursor.Next(ctx, store, 20, false)
	require.NoError(t, err)

	again, err := cursor.Next(ctx, store, 20, true)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestCursorExactMultipleEndsWithEmptyPage(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, 40)
	var cursor Cursor[doc]

	var sizes []int
	for i := 0; i < 4; i++ {
		page, err := cursor.Next(ctx, store, 20, false)
		require.NoError(t, err)
		sizes = append(sizes, len(page))
	}
	assert.Equal(t, []int{20, 20, 0, 0}, sizes)
}

func TestCursorRejectsNonPositiveSize(t *testing.T) {
	var cursor Cursor[doc]
	_, err := cursor.Next(context.Background(), seeded(t, 1), 0, true)
	assert.True(t, models.IsValidation(err))
}

func TestCursorPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("unreachable")
	var cursor Cursor[doc]

	_, err := cursor.Next(context.Background(), failingReader{err: boom}, 10, true)
	assert.ErrorIs(t, err, boom)
}

func TestFeedSubscribeAndNotify(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, 2)
	feed := NewFeed[doc](store, nil)
	defer feed.Close()

	var (
		mu    sync.Mutex
		sizes []int
	)
	sub, err := feed.Subscribe(ctx, func(docs []doc) {
		mu.Lock()
		sizes = append(sizes, len(docs))
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Cancel()

	mu.Lock()
	assert.Equal(t, []int{2}, sizes)
	mu.Unlock()
	assert.Equal(t, 1, feed.Subscribers())

	_, err = store.Put(ctx, "doc-999", doc{ID: "doc-999"})
	require.NoError(t, err)
	feed.Notify(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sizes[len(sizes)-1] == 3
	}, time.Second, 5*time.Millisecond)
}

func TestFeedNotifySurvivesCancelledContextAndFailures(t *testing.T) {
	store := seeded(t, 1)
	feed := NewFeed[doc](store, nil)
	defer feed.Close()

	got := make(chan int, 4)
	_, err := feed.Subscribe(context.Background(), func(docs []doc) { got <- len(docs) })
	require.NoError(t, err)
	<-got

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	feed.Notify(ctx)

	select {
	case n := <-got:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("notify with cancelled context delivered nothing")
	}

	broken := NewFeed[doc](failingReader{err: errors.New("down")}, nil)
	_, err = broken.Subscribe(context.Background(), func([]doc) {})
	assert.Error(t, err)
	assert.NotPanics(t, func() { broken.Notify(context.Background()) })
}

func TestFeedPublish(t *testing.T) {
	feed := NewFeed[doc](seeded(t, 0), nil)
	got := make(chan []doc, 2)
	sub, err := feed.Subscribe(context.Background(), func(docs []doc) { got <- docs })
	require.NoError(t, err)
	<-got

	feed.Publish([]doc{{ID: "external"}})
	select {
	case docs := <-got:
		assert.Equal(t, []doc{{ID: "external"}}, docs)
	case <-time.After(time.Second):
		t.Fatal("published snapshot not delivered")
	}

	sub.Cancel()
	assert.Zero(t, feed.Subscribers())
}

// racingReader commits a write from another goroutine right after the first
// GetAll has read its snapshot, and waits until that write is stored.
type racingReader struct {
	*memory.Collection[doc]
	feed *Feed[doc]
	once sync.Once
	done chan struct{}
}

func (r *racingReader) GetAll(ctx context.Context) ([]doc, error) {
	docs, err := r.Collection.GetAll(ctx)
	r.once.Do(func() {
		committed := make(chan struct{})
		go func() {
			defer close(r.done)
			_, _ = r.Collection.Put(context.Background(), "doc-late", doc{ID: "doc-late"})
			close(committed)
			r.feed.Notify(context.Background())
		}()
		<-committed
	})
	return docs, err
}

func TestFeedSubscribeDoesNotMissConcurrentCommit(t *testing.T) {
	reader := &racingReader{Collection: seeded(t, 1), done: make(chan struct{})}
	feed := NewFeed[doc](reader, nil)
	reader.feed = feed
	defer feed.Close()

	var (
		mu   sync.Mutex
		last []doc
	)
	sub, err := feed.Subscribe(context.Background(), func(docs []doc) {
		mu.Lock()
		last = docs
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Cancel()
	<-reader.done

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestFeedConcurrentNotifiesEndOnLatestSnapshot(t *testing.T) {
	store := seeded(t, 0)
	feed := NewFeed[doc](store, nil)
	defer feed.Close()

	var (
		mu   sync.Mutex
		last []doc
	)
	sub, err := feed.Subscribe(context.Background(), func(docs []doc) {
		mu.Lock()
		last = docs
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Cancel()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("doc-%03d", i)
			_, _ = store.Put(context.Background(), id, doc{ID: id})
			feed.Notify(context.Background())
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 25
	}, time.Second, 5*time.Millisecond)
}

func TestPageAtIsStateless(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, 25)

	first, next, err := PageAt[doc](ctx, store, "", 20)
	require.NoError(t, err)
	assert.Len(t, first, 20)
	assert.Equal(t, "20", next)

	again, _, err := PageAt[doc](ctx, store, "", 20)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	rest, next, err := PageAt[doc](ctx, store, "20", 20)
	require.NoError(t, err)
	assert.Len(t, rest, 5)
	assert.Empty(t, next)

	_, _, err = PageAt[doc](ctx, store, "twenty", 20)
	assert.True(t, models.IsValidation(err))
	_, _, err = PageAt[doc](ctx, store, "", 0)
	assert.True(t, models.IsValidation(err))
}
