package status

import "sync"

// Optimistic - значение, которое меняется сразу и откатывается,
// если сервер изменение не подтвердил
type Optimistic[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
}

func NewOptimistic[T any](initial T) *Optimistic[T] {
	return &Optimistic[T]{value: initial}
}

// Value возвращает текущее значение
func (o *Optimistic[T]) Value() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Set перезаписывает значение авторитетно
func (o *Optimistic[T]) Set(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value = v
	o.version++
}

// Apply меняет значение сразу и возвращает ожидающее подтверждения изменение
func (o *Optimistic[T]) Apply(v T) *Pending[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := &Pending[T]{owner: o, prev: o.value}
	o.value = v
	o.version++
	p.version = o.version
	return p
}

// Pending - неподтвержденное изменение
type Pending[T any] struct {
	owner   *Optimistic[T]
	prev    T
	version uint64
	settled bool
}

// Confirm фиксирует изменение
func (p *Pending[T]) Confirm() {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	p.settled = true
}

// Rollback возвращает прежнее значение, если после Apply никто
// не записал новое. Возвращает true, если откат произошел.
func (p *Pending[T]) Rollback() bool {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	if p.settled {
		return false
	}
	p.settled = true
	if p.owner.version != p.version {
		return false
	}
	p.owner.value = p.prev
	p.owner.version++
	return true
}
