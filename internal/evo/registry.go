package evo

import (
	"errors"
	"fmt"
)

var (
	ErrOperatorExists      = errors.New("operator already registered")
	ErrOperatorNotFound    = errors.New("operator not found")
	ErrNoEligibleOperators = errors.New("no eligible operators")
)

// Registry is the ordered, immutable operator catalogue of a run.
//
// The enabled subset keeps registry order and is the stable mapping between
// an operator id and its genome index.
type Registry struct {
	operators    []Operator
	byID         map[OperatorID]int
	enabled      []OperatorID
	enabledIndex map[OperatorID]int
}

// NewRegistry validates and indexes ops. An operator without an id is keyed
// by its name.
func NewRegistry(ops []Operator) (*Registry, error) {
	r := &Registry{
		operators:    make([]Operator, 0, len(ops)),
		byID:         make(map[OperatorID]int, len(ops)),
		enabledIndex: make(map[OperatorID]int, len(ops)),
	}
	for i, op := range ops {
		if op.Name == "" {
			return nil, fmt.Errorf("operator name is required at index %d", i)
		}
		if op.ID == "" {
			op.ID = OperatorID(op.Name)
		}
		if _, exists := r.byID[op.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrOperatorExists, op.ID)
		}
		r.byID[op.ID] = len(r.operators)
		r.operators = append(r.operators, op)
		if op.Enabled {
			r.enabledIndex[op.ID] = len(r.enabled)
			r.enabled = append(r.enabled, op.ID)
		}
	}
	return r, nil
}

// Operators returns every operator in registry order.
func (r *Registry) Operators() []Operator {
	return append([]Operator(nil), r.operators...)
}

// Lookup resolves an operator by id.
func (r *Registry) Lookup(id OperatorID) (Operator, error) {
	idx, ok := r.byID[id]
	if !ok {
		return Operator{}, fmt.Errorf("%w: %s", ErrOperatorNotFound, id)
	}
	return r.operators[idx], nil
}

// EnabledIDs returns the enabled operator ids in registry order.
func (r *Registry) EnabledIDs() []OperatorID {
	return append([]OperatorID(nil), r.enabled...)
}

// EnabledOperators returns the enabled operators in genome index order.
func (r *Registry) EnabledOperators() []Operator {
	out := make([]Operator, 0, len(r.enabled))
	for _, id := range r.enabled {
		out = append(out, r.operators[r.byID[id]])
	}
	return out
}

func (r *Registry) EnabledCount() int {
	return len(r.enabled)
}

// EnabledIndex returns the genome index of an enabled operator.
func (r *Registry) EnabledIndex(id OperatorID) (int, bool) {
	idx, ok := r.enabledIndex[id]
	return idx, ok
}

// Eligible lists the operators the feedback selector may pick for class.
func (r *Registry) Eligible(class OperatorClass) []Operator {
	var out []Operator
	for _, op := range r.operators {
		if op.EligibleFor(class) {
			out = append(out, op)
		}
	}
	return out
}
