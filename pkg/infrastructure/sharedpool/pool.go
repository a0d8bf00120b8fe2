package sharedpool

import (
	"errors"
	"sync"
)

// WrappedValueReleaseFunc frees the value once its last holder released it.
type WrappedValueReleaseFunc func() error

type ValueFactory[K comparable, V any] func(key K) (V, WrappedValueReleaseFunc, error)

// Pool shares one value per key between concurrent holders. Nested calls of
// the same key, e.g. a unit of work inside a unit of work on one context,
// get the same connection or transaction.
func NewPool[K comparable, V any](factory ValueFactory[K, V]) *Pool[K, V] {
	return &Pool[K, V]{
		valueFactory: factory,
		pool:         make(map[K]*sharedValue[V]),
	}
}

type Pool[K comparable, V any] struct {
	valueFactory ValueFactory[K, V]

	mu   sync.Mutex
	pool map[K]*sharedValue[V]
}

type sharedValue[V any] struct {
	v       V
	count   int
	release WrappedValueReleaseFunc
}

type SharedValue[V any] struct {
	v       V
	release func() error
	once    sync.Once
}

func (v *SharedValue[V]) Value() V {
	return v.v
}

// Release may be called more than once, only the first call counts.
func (v *SharedValue[V]) Release() error {
	var err error
	v.once.Do(func() {
		err = v.release()
	})
	return err
}

func (p *Pool[K, V]) Get(key K) (*SharedValue[V], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sv, ok := p.pool[key]
	if ok {
		sv.count++
	} else {
		v, release, err := p.valueFactory(key)
		if err != nil {
			return nil, err
		}
		sv = &sharedValue[V]{
			v:       v,
			count:   1,
			release: release,
		}
		p.pool[key] = sv
	}

	return &SharedValue[V]{
		v: sv.v,
		release: func() error {
			return p.release(key)
		},
	}, nil
}

func (p *Pool[K, V]) release(key K) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sv, ok := p.pool[key]
	if !ok {
		return errors.New("value not found in pool")
	}
	if sv.count > 1 {
		sv.count--
		return nil
	}
	delete(p.pool, key)
	if sv.release == nil {
		return nil
	}
	return sv.release()
}
