package subscription

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	r := New()
	require.True(t, r.Subscribe("a", "/todo/"))
	require.False(t, r.Subscribe("a", "/todo/"))

	assert.Equal(t, []string{"a"}, r.SubscribersOf("/todo/"))
	assert.Equal(t, 1, r.Len())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	r := New()
	assert.False(t, r.Unsubscribe("a", "/todo/"), "unsubscribing without a subscription")

	r.Subscribe("a", "/todo/")
	assert.True(t, r.Unsubscribe("a", "/todo/"))
	assert.False(t, r.Unsubscribe("a", "/todo/"), "unsubscribing twice")

	assert.Empty(t, r.SubscribersOf("/todo/"))
	assert.Empty(t, r.Subscriptions("a"))
	assert.Equal(t, 0, r.Len())
}

func TestItemAndCollectionAreDistinct(t *testing.T) {
	t.Parallel()

	r := New()
	r.Subscribe("a", "/todo/")
	r.Subscribe("b", "/todo/1")

	assert.Equal(t, []string{"a"}, r.SubscribersOf("/todo/"))
	assert.Equal(t, []string{"b"}, r.SubscribersOf("/todo/1"))
	assert.Empty(t, r.SubscribersOf("/todo/2"))
}

func TestDropConnection(t *testing.T) {
	t.Parallel()

	r := New()
	r.Subscribe("a", "/todo/")
	r.Subscribe("a", "/todo/1")
	r.Subscribe("b", "/todo/1")

	dropped := r.DropConnection("a")
	assert.Equal(t, []string{"/todo/", "/todo/1"}, dropped)
	assert.Empty(t, r.SubscribersOf("/todo/"))
	assert.Equal(t, []string{"b"}, r.SubscribersOf("/todo/1"))
	assert.Equal(t, 1, r.Len())

	assert.Empty(t, r.DropConnection("a"))
	assert.Empty(t, r.DropConnection("unknown"))
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("conn-%d", i)
			for j := 0; j < 50; j++ {
				uri := fmt.Sprintf("/todo/%d", j%5)
				r.Subscribe(conn, uri)
				_ = r.SubscribersOf(uri)
				if j%3 == 0 {
					r.Unsubscribe(conn, uri)
				}
			}
			r.DropConnection(conn)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
	for j := 0; j < 5; j++ {
		assert.Empty(t, r.SubscribersOf(fmt.Sprintf("/todo/%d", j)))
	}
}
