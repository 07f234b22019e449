package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RunsRegisteredHandler(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	var got atomic.Value
	m.Register("greet", func(_ context.Context, task Task) error {
		got.Store(string(task.Payload))
		return nil
	})

	_, err := m.Enqueue(context.Background(), Task{Type: "greet", Payload: []byte("woof")})
	require.NoError(t, err)
	m.Wait()
	assert.Equal(t, "woof", got.Load())
}

func TestMemory_TaskIDDedupes(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	var calls atomic.Int32
	m.Register("t", func(context.Context, Task) error {
		calls.Add(1)
		return nil
	})

	id1, err := m.Enqueue(context.Background(), Task{Type: "t"}, EnqueueOption{TaskID: "same"})
	require.NoError(t, err)
	id2, err := m.Enqueue(context.Background(), Task{Type: "t"}, EnqueueOption{TaskID: "same"})
	require.NoError(t, err)
	m.Wait()

	assert.Equal(t, id1, id2)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemory_RetriesFailedTask(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	var calls atomic.Int32
	m.Register("flaky", func(context.Context, Task) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	})

	_, err := m.Enqueue(context.Background(), Task{Type: "flaky"}, EnqueueOption{MaxRetry: 1})
	require.NoError(t, err)
	m.Wait()
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemory_DelayedTaskCancelledOnClose(t *testing.T) {
	m := NewMemory()
	var ran atomic.Bool
	m.Register("later", func(context.Context, Task) error {
		ran.Store(true)
		return nil
	})

	_, err := m.Enqueue(context.Background(), Task{Type: "later"}, EnqueueOption{ProcessIn: time.Hour})
	require.NoError(t, err)
	require.NoError(t, m.Close())
	assert.False(t, ran.Load())

	_, err = m.Enqueue(context.Background(), Task{Type: "later"})
	assert.Error(t, err, "closed queue rejects tasks")
}

func TestMemory_RejectsEmptyType(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	_, err := m.Enqueue(context.Background(), Task{})
	assert.Error(t, err)
}

func TestMemory_Schedule(t *testing.T) {
	m := NewMemory()
	var ticks atomic.Int32
	m.Register("tick", func(context.Context, Task) error {
		ticks.Add(1)
		return nil
	})

	started := m.Schedule([]Periodic{
		{Cronspec: "@every 10ms", Task: Task{Type: "tick"}},
		{Cronspec: "@daily", Task: Task{Type: "tick"}},
		{Cronspec: "0 3 * * *", Task: Task{Type: "tick"}},
		{Cronspec: "@every soon", Task: Task{Type: "tick"}},
	})
	assert.Equal(t, 2, started)
	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Close())
}

func TestMergeOptions(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	got := mergeOptions([]EnqueueOption{
		{Queue: QueueLow, MaxRetry: 2},
		{Queue: QueueCritical, ProcessAt: at},
		{TaskID: "x"},
	})
	assert.Equal(t, EnqueueOption{Queue: QueueCritical, ProcessAt: at, MaxRetry: 2, TaskID: "x"}, got)
}
