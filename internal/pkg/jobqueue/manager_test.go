package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	queue := NewQueue(nil, 2)
	manager := NewManager(queue, nil, 0)

	assert.NotNil(t, manager)
	assert.Same(t, queue, manager.GetQueue())
	assert.NotNil(t, manager.stopCh)
	assert.False(t, manager.running)
	assert.Equal(t, DefaultResyncInterval, manager.resyncInterval)
}

func TestManager_IsRunning(t *testing.T) {
	manager := NewManager(NewQueue(nil, 1), nil, time.Minute)

	assert.False(t, manager.IsRunning())

	manager.mu.Lock()
	manager.running = true
	manager.mu.Unlock()

	assert.True(t, manager.IsRunning())

	manager.mu.Lock()
	manager.running = false
	manager.mu.Unlock()

	assert.False(t, manager.IsRunning())
}

func TestManager_StopWithoutStart(t *testing.T) {
	manager := NewManager(NewQueue(nil, 1), nil, time.Minute)

	assert.False(t, manager.IsRunning())
	manager.Stop()
	assert.False(t, manager.IsRunning())
}

func TestManager_RunResyncOnce(t *testing.T) {
	calls := 0
	manager := NewManager(NewQueue(nil, 1), func(ctx context.Context) (int, error) {
		calls++
		return 2, nil
	}, time.Minute)

	n, err := manager.RunResyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, calls)
}

func TestManager_RunResyncOnceError(t *testing.T) {
	manager := NewManager(NewQueue(nil, 1), func(ctx context.Context) (int, error) {
		return 0, errors.New("db down")
	}, time.Minute)

	_, err := manager.RunResyncOnce(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestManager_RunResyncOnceWithoutFunc(t *testing.T) {
	manager := NewManager(NewQueue(nil, 1), nil, time.Minute)

	n, err := manager.RunResyncOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
