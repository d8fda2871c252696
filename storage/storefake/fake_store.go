package storefake

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
)

type Op string

const (
	OpSet    Op = "set"
	OpGet    Op = "get"
	OpRemove Op = "remove"
	OpClear  Op = "clear"
	OpKeys   Op = "keys"
)

// FakeStore is an in-memory store whose operations can be made to fail on demand.
type FakeStore struct {
	lock     sync.Mutex
	values   map[string]string
	failures map[Op]int
	failErr  error
	calls    map[Op]int
	notReady bool
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		values:   make(map[string]string),
		failures: make(map[Op]int),
		calls:    make(map[Op]int),
		failErr:  apperrors.ErrUnavailable,
	}
}

// FailNext makes the next n calls of op fail. A negative n fails every call.
func (fs *FakeStore) FailNext(op Op, n int) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.failures[op] = n
}

// FailWith sets the error returned by injected failures. ErrUnavailable by default.
func (fs *FakeStore) FailWith(err error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.failErr = err
}

// SetReady controls what Ready reports.
func (fs *FakeStore) SetReady(ready bool) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.notReady = !ready
}

// Calls returns how many times op has been invoked, failed calls included.
func (fs *FakeStore) Calls(op Op) int {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.calls[op]
}

// Snapshot returns a copy of the stored values.
func (fs *FakeStore) Snapshot() map[string]string {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	out := make(map[string]string, len(fs.values))
	for k, v := range fs.values {
		out[k] = v
	}
	return out
}

// fail records the call and reports whether it must fail. Caller holds lock.
func (fs *FakeStore) fail(op Op) bool {
	fs.calls[op]++
	n := fs.failures[op]
	if n == 0 {
		return false
	}
	if n > 0 {
		fs.failures[op] = n - 1
	}
	return true
}

func (fs *FakeStore) Ready(context.Context) bool {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return !fs.notReady
}

func (fs *FakeStore) Set(_ context.Context, key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.fail(OpSet) {
		return fs.failErr
	}
	fs.values[key] = value
	return nil
}

func (fs *FakeStore) Get(_ context.Context, key string) (string, bool, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.fail(OpGet) {
		return "", false, fs.failErr
	}
	v, ok := fs.values[key]
	return v, ok, nil
}

func (fs *FakeStore) Remove(_ context.Context, key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.fail(OpRemove) {
		return fs.failErr
	}
	delete(fs.values, key)
	return nil
}

func (fs *FakeStore) Clear(context.Context) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.fail(OpClear) {
		return fs.failErr
	}
	fs.values = make(map[string]string)
	return nil
}

func (fs *FakeStore) Keys(context.Context) ([]string, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.fail(OpKeys) {
		return nil, fs.failErr
	}
	keys := make([]string, 0, len(fs.values))
	for k := range fs.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
