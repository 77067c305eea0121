package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestPutGet(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	in := record{Name: "alpha", Value: 7}
	require.NoError(t, s.Put(ctx, []string{"book", "1"}, in))

	var out record
	require.NoError(t, s.Get(ctx, []string{"book", "1"}, &out))
	assert.Equal(t, in, out)
}

func TestGetNotFound(t *testing.T) {
	s := New(t.TempDir())

	var out record
	err := s.Get(context.Background(), []string{"missing"}, &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"book", "1"}, record{Name: "x"}))
	require.NoError(t, s.Delete(ctx, []string{"book", "1"}))
	assert.False(t, s.Exists(ctx, []string{"book", "1"}))

	// Deleting twice is a no-op.
	assert.NoError(t, s.Delete(ctx, []string{"book", "1"}))
}

func TestScanLexicalOrder(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	// Insert out of order; zero-padded keys must scan back in order.
	for _, seq := range []int{3, 1, 2, 10} {
		key := fmt.Sprintf("%08d", seq)
		require.NoError(t, s.Put(ctx, []string{"event", "s1", key}, record{Value: seq}))
	}

	var got []int
	err := s.Scan(ctx, []string{"event", "s1"}, func(key string, data json.RawMessage) error {
		var r record
		require.NoError(t, json.Unmarshal(data, &r))
		got = append(got, r.Value)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 10}, got)
}

func TestScanMissingDir(t *testing.T) {
	s := New(t.TempDir())
	err := s.Scan(context.Background(), []string{"nothing", "here"}, func(string, json.RawMessage) error {
		t.Fatal("callback should not run")
		return nil
	})
	assert.NoError(t, err)
}

func TestList(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"book", "2"}, record{}))
	require.NoError(t, s.Put(ctx, []string{"book", "1"}, record{}))

	keys, err := s.List(ctx, []string{"book"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, keys)
}

func TestConcurrentPuts(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, s.Put(ctx, []string{"shared"}, record{Value: n}))
		}(i)
	}
	wg.Wait()

	var out record
	require.NoError(t, s.Get(ctx, []string{"shared"}, &out))
}
