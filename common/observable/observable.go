package observable

import (
	"sync"
	"sync/atomic"
)

type Observer[T any] func(T)

// Readable is the consumer side of an observable value.
type Readable[T any] interface {
	Get() T
	On(observer Observer[T]) func()   // returns disposer function
	Once(observer Observer[T]) func() // returns disposer function
}

// Observable holds a value and notifies observers on Notify. Observers run synchronously on
// the goroutine calling Notify, in registration order.
type Observable[T any] struct {
	rwLock    *sync.RWMutex
	value     T
	nextId    uint64
	ids       []uint64
	observers map[uint64]Observer[T]
}

func New[T any]() *Observable[T] {
	var zero T
	return NewWith(zero)
}

func NewWith[T any](v T) *Observable[T] {
	return &Observable[T]{
		rwLock:    new(sync.RWMutex),
		value:     v,
		observers: make(map[uint64]Observer[T]),
	}
}

func (o *Observable[T]) Get() T {
	o.rwLock.RLock()
	defer o.rwLock.RUnlock()
	return o.value
}

// Store replaces the value without notifying anyone. Writers that must order their updates do
// so under their own lock and call Notify after releasing it.
func (o *Observable[T]) Store(v T) {
	o.rwLock.Lock()
	defer o.rwLock.Unlock()
	o.value = v
}

// Notify calls every observer with the value current at the time of the call.
func (o *Observable[T]) Notify() {
	o.rwLock.RLock()
	v := o.value
	snapshot := o.snapshotLocked()
	o.rwLock.RUnlock()
	for _, fun := range snapshot {
		fun(v)
	}
}

func (o *Observable[T]) snapshotLocked() []Observer[T] {
	snapshot := make([]Observer[T], 0, len(o.ids))
	for _, id := range o.ids {
		snapshot = append(snapshot, o.observers[id])
	}
	return snapshot
}

func (o *Observable[T]) add(observer Observer[T]) uint64 {
	o.rwLock.Lock()
	defer o.rwLock.Unlock()
	o.nextId++
	id := o.nextId
	o.ids = append(o.ids, id)
	o.observers[id] = observer
	return id
}

func (o *Observable[T]) deleteIfExist(id uint64) {
	o.rwLock.Lock()
	defer o.rwLock.Unlock()
	if _, ok := o.observers[id]; !ok {
		return
	}
	delete(o.observers, id)
	for i, curr := range o.ids {
		if curr == id {
			o.ids = append(o.ids[:i], o.ids[i+1:]...)
			break
		}
	}
}

func (o *Observable[T]) On(observer Observer[T]) func() {
	id := o.add(observer)
	return func() { o.deleteIfExist(id) }
}

func (o *Observable[T]) Once(observer Observer[T]) func() {
	var (
		id    uint64
		fired int32
	)
	id = o.add(func(v T) {
		if !atomic.CompareAndSwapInt32(&fired, 0, 1) {
			return
		}
		o.deleteIfExist(id)
		observer(v)
	})
	return func() { o.deleteIfExist(id) }
}
