package evo

import (
	"fmt"
	"math/rand"
)

// BootstrapPolicy decides where selection feedback comes from before an
// individual's first evaluation.
type BootstrapPolicy string

const (
	// BootstrapBaseline evaluates the unmodified project once and seeds every
	// individual with the observed rates.
	BootstrapBaseline BootstrapPolicy = "baseline"
	// BootstrapUniform draws the operator class with equal probability.
	BootstrapUniform BootstrapPolicy = "uniform"
)

func ParseBootstrapPolicy(name string) (BootstrapPolicy, error) {
	switch BootstrapPolicy(name) {
	case "", BootstrapBaseline:
		return BootstrapBaseline, nil
	case BootstrapUniform:
		return BootstrapUniform, nil
	default:
		return "", fmt.Errorf("unsupported bootstrap policy: %s", name)
	}
}

// FeedbackSelector picks the next mutation operator from an individual's
// most recent race and deadlock rates.
type FeedbackSelector struct {
	Registry *Registry
}

func (FeedbackSelector) Name() string {
	return "feedback"
}

// Select chooses an operator class from the individual's feedback and then an
// eligible operator of that class uniformly at random.
func (s FeedbackSelector) Select(rng *rand.Rand, ind *Individual) (Operator, error) {
	if rng == nil {
		return Operator{}, fmt.Errorf("random source is required")
	}
	if s.Registry == nil {
		return Operator{}, fmt.Errorf("operator registry is required")
	}

	var class OperatorClass
	if fb, ok := ind.LatestFeedback(); ok {
		class = ChooseClass(rng, fb)
	} else if rng.Intn(2) == 0 {
		class = ClassRace
	} else {
		class = ClassLock
	}

	eligible := s.Registry.Eligible(class)
	if len(eligible) == 0 {
		return Operator{}, fmt.Errorf("%w: class=%s", ErrNoEligibleOperators, class)
	}
	return eligible[rng.Intn(len(eligible))], nil
}

// ChooseClass draws choice uniformly from [0, d+k) and maps it to a class.
func ChooseClass(rng *rand.Rand, fb Feedback) OperatorClass {
	choice := rng.Float64() * (fb.Datarace + fb.Deadlock)
	return classForChoice(fb, choice)
}

// classForChoice keeps [0, d) for race when races dominate. Otherwise lock
// wins unless choice is strictly above k, so d == k leans towards lock.
func classForChoice(fb Feedback, choice float64) OperatorClass {
	if fb.Datarace > fb.Deadlock {
		if choice >= fb.Datarace {
			return ClassLock
		}
		return ClassRace
	}
	if choice > fb.Deadlock {
		return ClassRace
	}
	return ClassLock
}
