package broadcast_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relay/internal/broadcast"
)

func recvWithin(t *testing.T, sub *broadcast.Subscription[int], d time.Duration) (int, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return sub.Recv(ctx)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	t.Parallel()

	ch := broadcast.New[int](4)

	n, err := ch.Publish(1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	sub := ch.Subscribe()
	defer sub.Close()

	_, err = sub.TryRecv()
	assert.ErrorIs(t, err, broadcast.ErrEmpty, "late subscriber must not see earlier messages")
}

func TestSubscriberSeesOnlyLaterMessagesInOrder(t *testing.T) {
	t.Parallel()

	ch := broadcast.New[int](16)
	for i := 0; i < 5; i++ {
		_, err := ch.Publish(-i)
		require.NoError(t, err)
	}

	sub := ch.Subscribe()
	defer sub.Close()

	for i := 0; i < 10; i++ {
		n, err := ch.Publish(i)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	for i := 0; i < 10; i++ {
		v, err := recvWithin(t, sub, time.Second)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}

	_, err := sub.TryRecv()
	assert.ErrorIs(t, err, broadcast.ErrEmpty)
}

func TestRecvBlocksUntilPublish(t *testing.T) {
	t.Parallel()

	ch := broadcast.New[string](4)
	sub := ch.Subscribe()
	defer sub.Close()

	got := make(chan string, 1)
	go func() {
		v, err := sub.Recv(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("Recv returned before anything was published")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := ch.Publish("hello")
	require.NoError(t, err)

	select {
	case v := <-got:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("Recv was not woken by Publish")
	}
}

func TestTotalOrderAcrossSubscribers(t *testing.T) {
	t.Parallel()

	const producers, perProducer = 8, 50
	ch := broadcast.New[string](producers * perProducer)

	a := ch.Subscribe()
	b := ch.Subscribe()
	defer a.Close()
	defer b.Close()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_, _ = ch.Publish(fmt.Sprintf("%d-%d", p, i))
			}
		}()
	}
	wg.Wait()

	total := producers * perProducer
	seqA := make([]string, 0, total)
	seqB := make([]string, 0, total)
	for iter := 0; iter < total; iter++ {
		v, err := a.TryRecv()
		require.NoError(t, err)
		seqA = append(seqA, v)

		v, err = b.TryRecv()
		require.NoError(t, err)
		seqB = append(seqB, v)
	}

	assert.Equal(t, seqA, seqB)
}

func TestLaggedSubscriberResynchronizes(t *testing.T) {
	t.Parallel()

	const capacity = 4
	ch := broadcast.New[int](capacity)
	sub := ch.Subscribe()
	defer sub.Close()

	for i := 0; i < 10; i++ {
		_, err := ch.Publish(i)
		require.NoError(t, err)
	}

	_, err := sub.TryRecv()
	require.ErrorIs(t, err, broadcast.ErrLagged)

	var lagged *broadcast.LaggedError
	require.True(t, errors.As(err, &lagged))
	assert.Equal(t, uint64(6), lagged.Skipped)

	// Cursor now points at the oldest retained value; order is preserved.
	for want := 6; want < 10; want++ {
		v, err := sub.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}

	_, err = sub.TryRecv()
	assert.ErrorIs(t, err, broadcast.ErrEmpty)
}

func TestExactlyCapacityBehindIsNotLagged(t *testing.T) {
	t.Parallel()

	ch := broadcast.New[int](3)
	sub := ch.Subscribe()
	defer sub.Close()

	for i := 0; i < 3; i++ {
		_, _ = ch.Publish(i)
	}

	for i := 0; i < 3; i++ {
		v, err := sub.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	t.Parallel()

	ch := broadcast.New[int](4)
	sub := ch.Subscribe()
	defer sub.Close()

	_, _ = ch.Publish(1)
	_, _ = ch.Publish(2)
	ch.Close()
	ch.Close()

	n, err := ch.Publish(3)
	assert.ErrorIs(t, err, broadcast.ErrClosed)
	assert.Zero(t, n)

	for _, want := range []int{1, 2} {
		v, err := recvWithin(t, sub, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}

	_, err = recvWithin(t, sub, time.Second)
	assert.ErrorIs(t, err, broadcast.ErrClosed)

	late := ch.Subscribe()
	defer late.Close()
	_, err = late.TryRecv()
	assert.ErrorIs(t, err, broadcast.ErrClosed)
}

func TestCloseWakesBlockedReceivers(t *testing.T) {
	t.Parallel()

	ch := broadcast.New[int](4)
	const n = 5

	errs := make(chan error, n)
	for iter := 0; iter < n; iter++ {
		sub := ch.Subscribe()
		go func() {
			defer sub.Close()
			_, err := sub.Recv(context.Background())
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	ch.Close()

	for iter := 0; iter < n; iter++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, broadcast.ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("receiver was not woken by Close")
		}
	}
}

func TestRecvHonoursContext(t *testing.T) {
	t.Parallel()

	ch := broadcast.New[int](4)
	sub := ch.Subscribe()
	defer sub.Close()

	t.Run("cancel while blocked", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := sub.Recv(ctx)
			done <- err
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("Recv ignored context cancellation")
		}
	})

	t.Run("cancelled context wins over ready value", func(t *testing.T) {
		_, _ = ch.Publish(42)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := sub.Recv(ctx)
		assert.ErrorIs(t, err, context.Canceled)

		v, err := sub.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})
}

func TestSubscriberAccounting(t *testing.T) {
	t.Parallel()

	ch := broadcast.New[int](0)
	assert.Equal(t, 1, ch.Cap())
	assert.Equal(t, 0, ch.Len())

	a := ch.Subscribe()
	b := ch.Subscribe()
	assert.Equal(t, 2, ch.Subscribers())

	n, err := ch.Publish(7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, ch.Len())
	v, err := a.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	a.Close()
	a.Close()
	assert.Equal(t, 1, ch.Subscribers())

	b.Close()
	n, err = ch.Publish(8)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIndependentSubscribersDoNotBlockEachOther(t *testing.T) {
	t.Parallel()

	ch := broadcast.New[int](2)
	slow := ch.Subscribe()
	fast := ch.Subscribe()
	defer slow.Close()
	defer fast.Close()

	for i := 0; i < 100; i++ {
		_, err := ch.Publish(i)
		require.NoError(t, err)

		v, err := fast.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}

	_, err := slow.TryRecv()
	assert.ErrorIs(t, err, broadcast.ErrLagged)
}
