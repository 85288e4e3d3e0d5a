package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLockSerialisesSameKey(t *testing.T) {
	l := newKeyLock()
	unlock := l.Lock("/todo/1")

	acquired := make(chan struct{})
	go func() {
		u := l.Lock("/todo/1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired a held key")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired the key")
	}
}

func TestKeyLockIndependentKeys(t *testing.T) {
	l := newKeyLock()
	unlock := l.Lock("/todo/1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		l.Lock("/todo/2")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct keys must not block each other")
	}
}

func TestKeyLockReleasesEntries(t *testing.T) {
	l := newKeyLock()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock("/todo/1")()
		}()
	}
	wg.Wait()
	require.Zero(t, l.size())
	assert.Empty(t, l.locks)
}

func TestAsList(t *testing.T) {
	l, err := asList(nil)
	require.NoError(t, err)
	assert.Equal(t, []any{}, l)

	l, err = asList([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, l)

	_, err = asList(42)
	require.Error(t, err)
}
