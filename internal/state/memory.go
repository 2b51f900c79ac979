package state

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pv/temperature-notifier-go/internal/engine"
)

// MemoryStore держит закодированный документ в памяти. Используется в тестах
// и для memory:// (состояние живёт только в пределах процесса).
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
	err   error
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load возвращает последнее сохранённое состояние.
func (m *MemoryStore) Load(ctx context.Context) (engine.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return engine.State{}, Fail("memory", "load", err)
	}
	if m.err != nil {
		return engine.State{}, Fail("memory", "load", m.err)
	}
	if m.data == nil {
		return engine.NewState(), nil
	}
	return Decode(m.data)
}

// Save кодирует и запоминает состояние.
func (m *MemoryStore) Save(ctx context.Context, st engine.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Fail("memory", "save", err)
	}
	if m.err != nil {
		return Fail("memory", "save", m.err)
	}
	data, err := Encode(st, time.Now().UTC())
	if err != nil {
		return Fail("memory", "save", err)
	}
	m.data = data
	m.saves++
	return nil
}

// Fail заставляет последующие Load и Save возвращать ошибку; nil снимает отказ.
func (m *MemoryStore) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Saves возвращает число успешных сохранений.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Raw возвращает сохранённый документ.
func (m *MemoryStore) Raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// IsMemory проверяет схему memory://.
func IsMemory(dsn string) bool {
	return strings.HasPrefix(strings.ToLower(dsn), "memory://")
}
