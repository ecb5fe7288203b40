package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache — потокобезопасная in-memory реализация TokenCache
// для локальной разработки и тестов. Просроченные записи вычищаются
// лениво при обращении; часы подменяемы в тестах через поле now.
type MemoryCache struct {
	mu   sync.Mutex
	data map[string]memoryEntry
	now  func() time.Time
}

// NewMemoryCache создаёт пустой in-memory кэш.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = memoryEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}

	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(key)
	if !ok {
		return "", false, nil
	}

	return e.value, true, nil
}

// Take удаляет запись под тем же захватом мьютекса, что и чтение.
func (c *MemoryCache) Take(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(key)
	if !ok {
		return "", false, nil
	}

	delete(c.data, key)
	return e.value, true, nil
}

func (c *MemoryCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return nil
}

func (c *MemoryCache) Close() error { return nil }

// live возвращает живую запись; просроченную удаляет. Вызывать под mu.
func (c *MemoryCache) live(key string) (memoryEntry, bool) {
	e, ok := c.data[key]
	if !ok {
		return memoryEntry{}, false
	}

	if c.now().After(e.expiresAt) {
		delete(c.data, key)
		return memoryEntry{}, false
	}

	return e, true
}

// Проверка на соответствие интерфейсу TokenCache.
var _ TokenCache = (*MemoryCache)(nil)
