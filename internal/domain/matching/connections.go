package matching

import (
	"sync"
)

// Connections - множество профилей, с которыми связан requester.
// Только добавление: разрыв связи не поддерживается. Порядок - порядок добавления.
type Connections struct {
	mu          sync.RWMutex
	requesterID string
	order       []Profile
	index       map[string]int
}

// NewConnections создаёт пустое множество связей для requester.
func NewConnections(requesterID string) *Connections {
	return &Connections{
		requesterID: requesterID,
		order:       make([]Profile, 0),
		index:       make(map[string]int),
	}
}

// RequesterID возвращает владельца множества.
func (c *Connections) RequesterID() string {
	return c.requesterID
}

// Add добавляет профиль. Возвращает false, если связь уже была.
func (c *Connections) Add(p Profile) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[p.ID]; ok {
		return false
	}
	c.index[p.ID] = len(c.order)
	c.order = append(c.order, p)
	return true
}

// Contains проверяет наличие связи.
func (c *Connections) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[id]
	return ok
}

// Len возвращает число связей.
func (c *Connections) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// List возвращает копию связей в порядке добавления.
func (c *Connections) List() []Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Profile, len(c.order))
	copy(out, c.order)
	return out
}

// IDs возвращает идентификаторы связей в порядке добавления.
func (c *Connections) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, len(c.order))
	for i, p := range c.order {
		ids[i] = p.ID
	}
	return ids
}
