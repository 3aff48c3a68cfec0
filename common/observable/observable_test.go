package observable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func set[T any](o *Observable[T], v T) {
	o.Store(v)
	o.Notify()
}

func TestObservable_NotifiesInOrder(t *testing.T) {
	o := NewWith(1)
	var seen []string
	o.On(func(v int) { seen = append(seen, "a") })
	o.On(func(v int) { seen = append(seen, "b") })

	set(o, 2)

	assert.Equal(t, 2, o.Get())
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestObservable_StoreIsSilent(t *testing.T) {
	o := New[string]()
	calls := 0
	o.On(func(string) { calls++ })
	o.Store("x")
	assert.Equal(t, "x", o.Get())
	assert.Equal(t, 0, calls)
}

func TestObservable_NotifyReadsCurrentValue(t *testing.T) {
	o := New[int]()
	var got []int
	o.On(func(v int) { got = append(got, v) })
	o.Store(1)
	o.Store(2)
	o.Notify()
	assert.Equal(t, []int{2}, got)
}

func TestObservable_Disposer(t *testing.T) {
	o := New[string]()
	calls := 0
	dispose := o.On(func(string) { calls++ })
	set(o, "x")
	dispose()
	dispose()
	set(o, "y")

	assert.Equal(t, 1, calls)
}

func TestObservable_Once(t *testing.T) {
	o := New[int]()
	var got []int
	o.Once(func(v int) { got = append(got, v) })
	set(o, 1)
	set(o, 2)

	assert.Equal(t, []int{1}, got)
}

func TestObservable_ObserverMaySetAgain(t *testing.T) {
	o := New[int]()
	o.On(func(v int) {
		if v == 1 {
			set(o, 2)
		}
	})
	set(o, 1)
	assert.Equal(t, 2, o.Get())
}

func TestObservable_ConcurrentObservers(t *testing.T) {
	o := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dispose := o.On(func(int) {})
			set(o, i)
			dispose()
		}(i)
	}
	wg.Wait()
	o.rwLock.RLock()
	defer o.rwLock.RUnlock()
	assert.Empty(t, o.ids)
	assert.Empty(t, o.observers)
}
