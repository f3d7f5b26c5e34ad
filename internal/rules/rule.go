package rules

import "github.com/chainforge/core/internal/chainparams"

// Rule is {fn, bip: Option[Bip]} per spec.md §4.1: a single named
// validation step, optionally gated by a BIP activation height.
type Rule[T any] struct {
	Name string
	Fn   func(T) error
	Bip  *chainparams.Bip
}

// Ruleset is a fixed-size ordered collection of rules for one
// validation phase (header, transaction, block-structural,
// block-contextual), evaluated left-to-right with short-circuit on
// the first failure.
type Ruleset[T any] struct {
	Phase string
	Rules []Rule[T]
}

// Validate runs every rule in the set against args at height,
// skipping rules whose Bip has not yet activated, and returns the
// first error encountered (nil if all rules pass).
func (rs Ruleset[T]) Validate(height int32, args T) error {
	for _, r := range rs.Rules {
		if r.Bip != nil && !chainparams.IsBipEnabled(*r.Bip, height) {
			continue
		}
		if err := r.Fn(args); err != nil {
			recordOutcome(rs.Phase, r.Name, false)
			return err
		}
	}
	recordOutcome(rs.Phase, "", true)
	return nil
}
