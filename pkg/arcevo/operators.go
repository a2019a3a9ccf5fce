package arcevo

import "arcevo/internal/evo"

// OperatorSpec is the configurable form of one mutation operator.
type OperatorSpec struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	Race       bool   `json:"race"`
	Lock       bool   `json:"lock"`
	Functional bool   `json:"functional"`
}

// DefaultOperators is the synchronization mutation catalogue used when a run
// names no operators. Operators that add or widen synchronization target
// both bug classes; operators that remove or shrink it are non-functional.
func DefaultOperators() []OperatorSpec {
	return []OperatorSpec{
		{Name: "ASAT", Enabled: true, Race: true, Lock: false, Functional: true},
		{Name: "ASIM", Enabled: true, Race: true, Lock: false, Functional: true},
		{Name: "ASM", Enabled: true, Race: true, Lock: false, Functional: true},
		{Name: "CSO", Enabled: true, Race: false, Lock: true, Functional: true},
		{Name: "EXSB", Enabled: true, Race: true, Lock: false, Functional: true},
		{Name: "EXSA", Enabled: true, Race: true, Lock: false, Functional: true},
		{Name: "RSAS", Enabled: true, Race: false, Lock: true, Functional: true},
		{Name: "RSAV", Enabled: true, Race: false, Lock: true, Functional: true},
		{Name: "RSIM", Enabled: true, Race: false, Lock: true, Functional: true},
		{Name: "RSM", Enabled: true, Race: false, Lock: true, Functional: true},
		{Name: "RSSB", Enabled: true, Race: false, Lock: true, Functional: true},
		{Name: "SHSA", Enabled: false, Race: false, Lock: true, Functional: false},
		{Name: "SHSB", Enabled: false, Race: false, Lock: true, Functional: false},
	}
}

func buildRegistry(specs []OperatorSpec) (*evo.Registry, error) {
	if len(specs) == 0 {
		specs = DefaultOperators()
	}
	ops := make([]evo.Operator, 0, len(specs))
	for _, spec := range specs {
		ops = append(ops, evo.Operator{
			ID:         evo.OperatorID(spec.ID),
			Name:       spec.Name,
			Enabled:    spec.Enabled,
			Race:       spec.Race,
			Lock:       spec.Lock,
			Functional: spec.Functional,
		})
	}
	return evo.NewRegistry(ops)
}

func enabledOperatorIDs(reg *evo.Registry) []string {
	ids := reg.EnabledIDs()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
