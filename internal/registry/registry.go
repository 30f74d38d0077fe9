package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/autoclass/attendd/internal/model"
)

var (
	// ErrDuplicate is returned when adding a student number that already exists.
	ErrDuplicate = errors.New("registry: account already exists")
	// ErrNotFound is returned when the student number is not registered.
	ErrNotFound = errors.New("registry: account not found")
)

// Registry is the shared account table. Insert and remove are atomic; the
// per-account mutable state is guarded by each account's own lock, not by
// the registry.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{accounts: make(map[string]*model.Account)}
}

// Add registers a new account.
func (r *Registry) Add(acct *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[acct.StudentNumber]; ok {
		return ErrDuplicate
	}
	r.accounts[acct.StudentNumber] = acct
	return nil
}

// Remove deletes an account by student number.
func (r *Registry) Remove(studentNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[studentNumber]; !ok {
		return ErrNotFound
	}
	delete(r.accounts, studentNumber)
	return nil
}

// Get looks up an account by student number.
func (r *Registry) Get(studentNumber string) (*model.Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[studentNumber]
	return acct, ok
}

// Snapshot returns the current accounts sorted by student number. The slice
// is a copy; the pointed-to accounts are shared, so callers take each
// account's lock before touching its state.
func (r *Registry) Snapshot() []*model.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Account, 0, len(r.accounts))
	for _, acct := range r.accounts {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentNumber < out[j].StudentNumber })
	return out
}

// Len returns the number of registered accounts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}
