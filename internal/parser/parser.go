// Package parser turns bank alert emails into transactions.
package parser

import (
	"sync"

	"github.com/shepherdwind/bean-talk/internal/model"
)

// Parser understands the alert emails of one bank.
type Parser interface {
	Name() string
	CanParse(email model.Email) bool
	Parse(email model.Email) (*model.Transaction, error)
}

// Registry picks the parser for an email.
type Registry struct {
	parsers []Parser
	mu      sync.RWMutex
}

// NewRegistry creates a registry holding ps in priority order.
func NewRegistry(ps ...Parser) *Registry {
	return &Registry{parsers: ps}
}

// Register appends p to the registry.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers = append(r.parsers, p)
}

// Find returns the first parser accepting email, or nil.
func (r *Registry) Find(email model.Email) Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.parsers {
		if p.CanParse(email) {
			return p
		}
	}
	return nil
}
