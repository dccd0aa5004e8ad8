package cache

import (
	"sync"
	"time"
)

type ttlItem struct {
	value     string
	expiresAt time.Time
}

// ttlMap is a mutex-guarded map whose entries lapse after their TTL.
// Expired entries are invisible to readers and removed by sweep.
type ttlMap struct {
	mu    sync.Mutex
	items map[string]ttlItem
	now   func() time.Time
}

func newTTLMap() *ttlMap {
	return &ttlMap{items: make(map[string]ttlItem), now: time.Now}
}

// setNX stores value under key unless a live entry exists
func (m *ttlMap) setNX(key, value string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if it, ok := m.items[key]; ok && now.Before(it.expiresAt) {
		return false
	}
	m.items[key] = ttlItem{value: value, expiresAt: now.Add(ttl)}
	return true
}

func (m *ttlMap) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[key]
	if !ok || !m.now().Before(it.expiresAt) {
		return "", false
	}
	return it.value, true
}

// deleteIf removes key only while it still holds value
func (m *ttlMap) deleteIf(key, value string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[key]
	if !ok || it.value != value || !m.now().Before(it.expiresAt) {
		return false
	}
	delete(m.items, key)
	return true
}

func (m *ttlMap) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for k, it := range m.items {
		if !now.Before(it.expiresAt) {
			delete(m.items, k)
			removed++
		}
	}
	return removed
}

func (m *ttlMap) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// sweeper removes expired entries from a ttlMap on a fixed interval until closed
type sweeper struct {
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func startSweeper(m *ttlMap, every time.Duration) *sweeper {
	s := &sweeper{stop: make(chan struct{})}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
	return s
}

// close stops the sweeper and waits for it. Safe to call more than once.
func (s *sweeper) close() {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}
