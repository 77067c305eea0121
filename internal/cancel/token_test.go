package cancel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenStartsActive(t *testing.T) {
	tok := NewToken()
	assert.False(t, tok.Cancelled())

	select {
	case <-tok.Done():
		t.Fatal("Done channel should not be closed")
	default:
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	tok := NewToken()
	tok.Cancel()
	tok.Cancel()
	assert.True(t, tok.Cancelled())
}

func TestCancelUnblocksWaiters(t *testing.T) {
	tok := NewToken()

	done := make(chan struct{})
	go func() {
		<-tok.Done()
		close(done)
	}()

	tok.Cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
}

func TestConcurrentCancel(t *testing.T) {
	tok := NewToken()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Cancel()
		}()
	}
	wg.Wait()

	assert.True(t, tok.Cancelled())
}
