package notify

import (
	"bytes"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueKeepsOrderAndBound(t *testing.T) {
	q := NewQueue(3)
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		q.Show(KindInfo, title, "")
	}
	items := q.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "c", items[0].Title)
	assert.Equal(t, "e", items[2].Title)
	assert.NotEqual(t, items[0].ID, items[1].ID)
	assert.False(t, items[0].Time.IsZero())
}

func TestQueueDismiss(t *testing.T) {
	q := NewQueue(0)
	q.Show(KindSuccess, "one", "")
	q.Show(KindError, "two", "")

	items := q.Items()
	assert.True(t, q.Dismiss(items[0].ID))
	assert.False(t, q.Dismiss(items[0].ID))

	rest := q.Items()
	require.Len(t, rest, 1)
	assert.Equal(t, "two", rest[0].Title)
	assert.True(t, q.Dismiss(rest[0].ID))
	assert.Empty(t, q.Items())
}

func TestQueueSubscribe(t *testing.T) {
	q := NewQueue(10)
	var got []Notification
	unsub := q.Subscribe(func(n Notification) { got = append(got, n) })

	q.Show(KindWarning, "careful", "msg")
	unsub()
	unsub()
	q.Show(KindInfo, "ignored", "")

	require.Len(t, got, 1)
	assert.Equal(t, KindWarning, got[0].Kind)
	assert.Equal(t, "msg", got[0].Message)
}

func TestQueueSubscriberMayUnsubscribeItself(t *testing.T) {
	q := NewQueue(10)
	calls := 0
	var unsub func()
	unsub = q.Subscribe(func(Notification) {
		calls++
		unsub()
	})
	q.Show(KindInfo, "1", "")
	q.Show(KindInfo, "2", "")
	assert.Equal(t, 1, calls)
}

func TestQueueConcurrentShow(t *testing.T) {
	q := NewQueue(1000)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Show(KindInfo, "x", "")
		}()
	}
	wg.Wait()
	assert.Len(t, q.Items(), 50)
}

func TestFanoutAndLogSink(t *testing.T) {
	var buf bytes.Buffer
	q := NewQueue(5)
	f := Fanout{q, LogSink{Log: zerolog.New(&buf)}, nil, Discard}
	f.Show(KindError, "Error", "boom")

	assert.Len(t, q.Items(), 1)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"title":"Error"`)
	assert.Contains(t, buf.String(), "boom")
}
