package effect

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/louisbranch/longshot/internal/services/league/domain/event"
)

// Registry holds the registered effects for a season, rebuilt by replaying
// effect.registered and effect.expired events.
type Registry struct {
	effects map[string]Effect
	expired map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		effects: make(map[string]Effect),
		expired: make(map[string]int),
	}
}

// FromEvents rebuilds a registry from a season's event log. Non-effect
// events are ignored.
func FromEvents(events []event.Event) (*Registry, error) {
	r := NewRegistry()
	for _, e := range events {
		switch e.Type {
		case event.TypeEffectRegistered:
			var payload event.EffectRegisteredPayload
			if err := json.Unmarshal(e.PayloadJSON, &payload); err != nil {
				return nil, fmt.Errorf("replay effect.registered %s: %w", e.ID, err)
			}
			var spec Spec
			if err := json.Unmarshal(payload.Effect, &spec); err != nil {
				return nil, fmt.Errorf("replay effect.registered %s: decode spec: %w", e.ID, err)
			}
			r.effects[payload.EffectID] = Effect{
				ID:              payload.EffectID,
				ProposalID:      payload.ProposalID,
				Spec:            spec,
				ActivationRound: payload.ActivationRound,
				ExpirationRound: payload.ExpirationRound,
			}
		case event.TypeEffectExpired:
			var payload event.EffectExpiredPayload
			if err := json.Unmarshal(e.PayloadJSON, &payload); err != nil {
				return nil, fmt.Errorf("replay effect.expired %s: %w", e.ID, err)
			}
			r.expired[payload.EffectID] = payload.Round
		}
	}
	return r, nil
}

// Add registers an effect directly. Used by the governance kernel after
// appending the effect.registered event.
func (r *Registry) Add(e Effect) {
	r.effects[e.ID] = e
}

// ActiveAt returns every effect active during round, sorted by priority
// descending then by id for deterministic firing order.
func (r *Registry) ActiveAt(round int) []Effect {
	var active []Effect
	for id, e := range r.effects {
		if expiredAt, ok := r.expired[id]; ok && round >= expiredAt {
			continue
		}
		if e.ActiveAt(round) {
			active = append(active, e)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Spec.Priority != active[j].Spec.Priority {
			return active[i].Spec.Priority > active[j].Spec.Priority
		}
		return active[i].ID < active[j].ID
	})
	return active
}

// ExpiringAt returns effects whose scheduled expiration round is exactly
// round, so the kernel can append effect.expired events.
func (r *Registry) ExpiringAt(round int) []Effect {
	var expiring []Effect
	for id, e := range r.effects {
		if _, gone := r.expired[id]; gone {
			continue
		}
		if e.ExpirationRound > 0 && e.ExpirationRound == round {
			expiring = append(expiring, e)
		}
	}
	sort.Slice(expiring, func(i, j int) bool { return expiring[i].ID < expiring[j].ID })
	return expiring
}

// Fire runs every active effect subscribed to hook against ctx, in priority
// order. Mutations land directly on ctx. A block_default action suppresses
// remaining lower-priority effects; block_event additionally signals the
// engine to cancel the event.
func Fire(active []Effect, hook string, ctx *Context) error {
	for _, e := range active {
		if !e.SubscribesTo(hook) {
			continue
		}
		ok, err := e.Spec.Condition.Eval(ctx)
		if err != nil {
			return fmt.Errorf("effect %s condition: %w", e.ID, err)
		}
		if !ok {
			continue
		}

		if e.Spec.Kind == KindCustomMechanic {
			if err := runScript(e.Spec.Script, ctx); err != nil {
				return fmt.Errorf("effect %s script: %w", e.ID, err)
			}
		} else {
			for _, action := range e.Spec.Actions {
				if err := action.Apply(ctx); err != nil {
					return fmt.Errorf("effect %s: %w", e.ID, err)
				}
			}
		}

		if ctx.BlockDefault || ctx.BlockEvent {
			return nil
		}
	}
	return nil
}
