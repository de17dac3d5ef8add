package idgen

import (
	"sync"

	"github.com/google/uuid"
)

var (
	mux     sync.Mutex
	newFunc = func() string { return uuid.New().String() }
)

// New returns a random UUID string
func New() string {
	mux.Lock()
	fn := newFunc
	mux.Unlock()
	return fn()
}

// Stub makes New return ids in order, then fall back to UUIDs, until restore is called
func Stub(ids ...string) (restore func()) {
	mux.Lock()
	defer mux.Unlock()
	previous := newFunc
	var next int
	var nextMux sync.Mutex
	newFunc = func() string {
		nextMux.Lock()
		defer nextMux.Unlock()
		if next < len(ids) {
			next++
			return ids[next-1]
		}
		return uuid.New().String()
	}
	return func() {
		mux.Lock()
		newFunc = previous
		mux.Unlock()
	}
}
