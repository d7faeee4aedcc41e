package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// DefaultResyncInterval is how often the manager looks for mirror rows that
// outlived their period.
const DefaultResyncInterval = 15 * time.Minute

// ResyncFunc performs one sweep and reports how many rows it touched.
type ResyncFunc func(ctx context.Context) (int, error)

// Manager manages the job queue and periodic background tasks
type Manager struct {
	queue          *Queue
	resync         ResyncFunc
	resyncInterval time.Duration
	resyncTicker   *time.Ticker
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool
}

// NewManager wraps queue. A nil resync disables the periodic sweep.
func NewManager(queue *Queue, resync ResyncFunc, resyncInterval time.Duration) *Manager {
	if resyncInterval <= 0 {
		resyncInterval = DefaultResyncInterval
	}
	return &Manager{
		queue:          queue,
		resync:         resync,
		resyncInterval: resyncInterval,
		stopCh:         make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.resync != nil {
		m.resyncTicker = time.NewTicker(m.resyncInterval)
		m.wg.Add(1)
		go m.resyncWorker(m.resyncTicker, m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.resyncTicker != nil {
		m.resyncTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// resyncWorker periodically re-syncs subscriptions whose webhooks were missed
func (m *Manager) resyncWorker(ticker *time.Ticker, stopCh <-chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started resync worker (interval: %s)", m.resyncInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Resync worker stopping")
			return
		case <-ticker.C:
			if _, err := m.RunResyncOnce(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Resync sweep error: %v", err)
			}
		}
	}
}

// RunResyncOnce exposes a manual trigger for a single resync sweep.
func (m *Manager) RunResyncOnce(ctx context.Context) (int, error) {
	if m.resync == nil {
		return 0, nil
	}
	n, err := m.resync(ctx)
	if n > 0 {
		log.Infof("[JobQueue Manager] Resync sweep touched %d subscriptions", n)
	}
	return n, err
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
