package effect

import (
	"fmt"
	"reflect"
)

// Condition is a tree over field comparisons, random probability, and
// logical combinators. Exactly one branch should be populated; an empty
// condition is true.
type Condition struct {
	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`
	Not *Condition  `json:"not,omitempty"`

	// Field comparison: Field op Value where op is eq, lt, lte, gt, gte.
	Field string `json:"field,omitempty"`
	Op    string `json:"op,omitempty"`
	Value any    `json:"value,omitempty"`

	// Random passes with the given probability, drawn from the game RNG.
	Random *float64 `json:"random,omitempty"`
}

// Eval evaluates the condition tree against ctx.
func (c *Condition) Eval(ctx *Context) (bool, error) {
	if c == nil {
		return true, nil
	}

	switch {
	case len(c.All) > 0:
		for i := range c.All {
			ok, err := c.All[i].Eval(ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case len(c.Any) > 0:
		for i := range c.Any {
			ok, err := c.Any[i].Eval(ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case c.Not != nil:
		ok, err := c.Not.Eval(ctx)
		return !ok, err

	case c.Random != nil:
		if ctx.Rand == nil {
			return false, fmt.Errorf("random condition needs a game RNG")
		}
		return ctx.Rand.Float64() < *c.Random, nil

	case c.Field != "":
		return c.evalComparison(ctx)
	}

	return true, nil
}

func (c *Condition) evalComparison(ctx *Context) (bool, error) {
	actual, err := ctx.Resolve(c.Field)
	if err != nil {
		return false, err
	}

	if c.Op == "eq" {
		if equalNumbers(actual, c.Value) {
			return true, nil
		}
		return reflect.DeepEqual(actual, c.Value), nil
	}

	left, ok := toNumber(actual)
	if !ok {
		return false, fmt.Errorf("condition field %q is not numeric (%T)", c.Field, actual)
	}
	right, ok := toNumber(c.Value)
	if !ok {
		return false, fmt.Errorf("condition value for %q is not numeric (%T)", c.Field, c.Value)
	}

	switch c.Op {
	case "lt":
		return left < right, nil
	case "lte":
		return left <= right, nil
	case "gt":
		return left > right, nil
	case "gte":
		return left >= right, nil
	}
	return false, fmt.Errorf("unknown condition op %q", c.Op)
}

// equalNumbers compares numerically when both sides coerce, so 3 == 3.0
// after a JSON round trip.
func equalNumbers(a, b any) bool {
	left, okA := toNumber(a)
	right, okB := toNumber(b)
	if !okA || !okB {
		return false
	}
	_, aIsBool := a.(bool)
	_, bIsBool := b.(bool)
	if aIsBool != bIsBool {
		return false
	}
	return left == right
}
