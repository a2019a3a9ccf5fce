package evo

import "fmt"

// OperatorID is the stable key of a mutation operator within a registry.
type OperatorID string

// OperatorClass is the bug category a feedback-selected operator targets.
type OperatorClass string

const (
	ClassRace OperatorClass = "race"
	ClassLock OperatorClass = "lock"
)

// Operator describes one mutation operator. Name is what the mutation engine
// understands; ID is what the search loop keys genomes and history on.
type Operator struct {
	ID         OperatorID `json:"id"`
	Name       string     `json:"name"`
	Enabled    bool       `json:"enabled"`
	Race       bool       `json:"race"`
	Lock       bool       `json:"lock"`
	Functional bool       `json:"functional"`
}

// AppliesTo reports whether the operator is tagged for the given class.
func (o Operator) AppliesTo(class OperatorClass) bool {
	switch class {
	case ClassRace:
		return o.Race
	case ClassLock:
		return o.Lock
	default:
		return false
	}
}

// EligibleFor reports whether the feedback selector may pick the operator for class.
func (o Operator) EligibleFor(class OperatorClass) bool {
	return o.Enabled && o.AppliesTo(class) && o.Functional
}

func (o Operator) String() string {
	if string(o.ID) == o.Name {
		return o.Name
	}
	return fmt.Sprintf("%s(%s)", o.ID, o.Name)
}
