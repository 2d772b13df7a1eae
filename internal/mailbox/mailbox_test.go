package mailbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestValueWins(t *testing.T) {
	m := New[int]()
	for i := 1; i <= 10; i++ {
		assert.True(t, m.Send(i))
	}

	v, ok, err := m.TryRecv()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, v)

	// No backlog behind the latest value
	_, ok, err = m.TryRecv()
	assert.NoError(t, err)
	assert.False(t, ok)

	sent, dropped := m.Stats()
	assert.Equal(t, uint64(10), sent)
	assert.Equal(t, uint64(9), dropped)
}

func TestTryRecvEmpty(t *testing.T) {
	m := New[string]()
	v, ok, err := m.TryRecv()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestSendNeverBlocks(t *testing.T) {
	m := New[[]byte]()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			m.Send(make([]byte, 8))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked without a consumer")
	}
}

func TestCloseDeliversPendingThenCause(t *testing.T) {
	m := New[int]()
	boom := errors.New("device lost")

	m.Send(7)
	m.Close(boom)

	v, ok, err := m.TryRecv()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok, err = m.TryRecv()
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)

	assert.False(t, m.Send(8), "send after close is discarded")
	assert.True(t, m.Closed())
}

func TestCloseWithoutCause(t *testing.T) {
	m := New[int]()
	m.Close(nil)
	m.Close(errors.New("ignored"))

	_, _, err := m.TryRecv()
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-m.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestRecvBlocksUntilValue(t *testing.T) {
	m := New[int]()
	go func() {
		time.Sleep(20 * time.Millisecond)
		m.Send(3)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := m.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestRecvReturnsOnCloseAndContext(t *testing.T) {
	m := New[int]()
	boom := errors.New("permission revoked")
	go m.Close(boom)

	_, err := m.Recv(context.Background())
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New[int]().Recv(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentProducerConsumerSeesMonotonicValues(t *testing.T) {
	m := New[int]()
	const n = 20000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			m.Send(i)
		}
		m.Close(nil)
	}()

	last := 0
	for {
		v, ok, err := m.TryRecv()
		if err != nil {
			break
		}
		if ok {
			require.Greater(t, v, last, "values must arrive in send order")
			last = v
		}
	}
	wg.Wait()
	assert.Equal(t, n, last, "final value is never lost")
}
