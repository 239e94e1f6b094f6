package effect

import (
	"fmt"
	"strings"
)

// Action ops.
const (
	// OpMutateEvent rewrites a field on the current hook event payload.
	OpMutateEvent = "mutate_event"
	// OpMutateState writes to game, player, or team state via a target path.
	OpMutateState = "mutate_state"
	// OpScore credits points to a team.
	OpScore = "score"
	// OpEmit raises one sub-event.
	OpEmit = "emit"
	// OpEmitN raises a counted batch of sub-events.
	OpEmitN = "emit_n"
	// OpNarrative appends a line to the commentary buffer.
	OpNarrative = "narrative"
	// OpBlockDefault suppresses lower-priority effects for this event.
	OpBlockDefault = "block_default"
	// OpBlockEvent cancels propagation of this event.
	OpBlockEvent = "block_event"
)

// Action is one step of an effect's mutation program. Value and Count accept
// either a literal number or an expression string evaluated against the
// unified context.
type Action struct {
	Op string `json:"op"`

	// Field targets mutate_event writes ("points", "shot_probability_modifier").
	Field string `json:"field,omitempty"`

	// Target is a namespaced path for mutate_state ("player.current_stamina",
	// "team:abc.momentum", "meta.player.hot_streak").
	Target string `json:"target,omitempty"`
	// Mode is set, add, or subtract for mutate_state. Defaults to set.
	Mode string `json:"mode,omitempty"`

	Value any `json:"value,omitempty"`

	// TeamID targets score credits. Empty means the offense team.
	TeamID string `json:"team_id,omitempty"`

	// Event names the sub-event raised by emit and emit_n.
	Event string `json:"event,omitempty"`
	// Count is the emit_n batch size, literal or expression.
	Count any `json:"count,omitempty"`

	// Text is the narrative line to append.
	Text string `json:"text,omitempty"`
}

// ScoreCredit is an accumulated score action awaiting engine application.
type ScoreCredit struct {
	TeamID string
	Points int
}

// Apply runs one action against ctx.
func (a Action) Apply(ctx *Context) error {
	switch a.Op {
	case OpMutateEvent:
		if a.Field == "" {
			return fmt.Errorf("mutate_event needs a field")
		}
		value, err := resolveValue(a.Value, ctx)
		if err != nil {
			return fmt.Errorf("mutate_event %s: %w", a.Field, err)
		}
		return ctx.SetPath("event."+a.Field, value)

	case OpMutateState:
		if a.Target == "" {
			return fmt.Errorf("mutate_state needs a target")
		}
		value, err := resolveValue(a.Value, ctx)
		if err != nil {
			return fmt.Errorf("mutate_state %s: %w", a.Target, err)
		}
		mode := a.Mode
		if mode == "" {
			mode = "set"
		}
		if mode == "set" {
			return ctx.SetPath(a.Target, value)
		}
		delta, ok := toNumber(value)
		if !ok {
			return fmt.Errorf("mutate_state %s: %s needs a numeric value", a.Target, mode)
		}
		current, err := ctx.ResolveNumber(a.Target)
		if err != nil {
			return fmt.Errorf("mutate_state %s: %w", a.Target, err)
		}
		switch mode {
		case "add":
			return ctx.SetPath(a.Target, current+delta)
		case "subtract":
			return ctx.SetPath(a.Target, current-delta)
		}
		return fmt.Errorf("mutate_state %s: unknown mode %q", a.Target, mode)

	case OpScore:
		value, err := resolveValue(a.Value, ctx)
		if err != nil {
			return fmt.Errorf("score: %w", err)
		}
		points, ok := toNumber(value)
		if !ok {
			return fmt.Errorf("score needs a numeric value, got %T", value)
		}
		teamID := a.TeamID
		if teamID == "" {
			teamID = ctx.TeamID
		}
		ctx.Scores = append(ctx.Scores, ScoreCredit{TeamID: teamID, Points: int(points)})
		return nil

	case OpEmit:
		if a.Event == "" {
			return fmt.Errorf("emit needs an event name")
		}
		ctx.Emitted = append(ctx.Emitted, SubEvent{Name: a.Event, Payload: cloneEvent(ctx.Event)})
		return nil

	case OpEmitN:
		if a.Event == "" {
			return fmt.Errorf("emit_n needs an event name")
		}
		value, err := resolveValue(a.Count, ctx)
		if err != nil {
			return fmt.Errorf("emit_n %s: %w", a.Event, err)
		}
		count, ok := toNumber(value)
		if !ok || count < 0 {
			return fmt.Errorf("emit_n %s: count must be a non-negative number", a.Event)
		}
		// Bounded so a runaway expression cannot flood the engine.
		const maxEmit = 32
		n := int(count)
		if n > maxEmit {
			n = maxEmit
		}
		for i := 0; i < n; i++ {
			ctx.Emitted = append(ctx.Emitted, SubEvent{Name: a.Event, Payload: cloneEvent(ctx.Event)})
		}
		return nil

	case OpNarrative:
		text, err := interpolate(a.Text, ctx)
		if err != nil {
			return fmt.Errorf("narrative: %w", err)
		}
		ctx.Narration = append(ctx.Narration, text)
		return nil

	case OpBlockDefault:
		ctx.BlockDefault = true
		return nil

	case OpBlockEvent:
		ctx.BlockEvent = true
		return nil
	}
	return fmt.Errorf("unknown action op %q", a.Op)
}

// resolveValue turns an action argument into a concrete value. Strings are
// evaluated as expressions; everything else passes through.
func resolveValue(value any, ctx *Context) (any, error) {
	if expr, ok := value.(string); ok {
		return Eval(expr, ctx)
	}
	return value, nil
}

// interpolate substitutes {expr} segments in narrative text with evaluated
// expression results.
func interpolate(text string, ctx *Context) (string, error) {
	var out strings.Builder
	for {
		start := strings.IndexByte(text, '{')
		if start < 0 {
			out.WriteString(text)
			return out.String(), nil
		}
		end := strings.IndexByte(text[start:], '}')
		if end < 0 {
			out.WriteString(text)
			return out.String(), nil
		}
		end += start
		out.WriteString(text[:start])
		value, err := Eval(text[start+1:end], ctx)
		if err != nil {
			return "", err
		}
		if value == float64(int64(value)) {
			fmt.Fprintf(&out, "%d", int64(value))
		} else {
			fmt.Fprintf(&out, "%.2f", value)
		}
		text = text[end+1:]
	}
}

func cloneEvent(event map[string]any) map[string]any {
	clone := make(map[string]any, len(event))
	for k, v := range event {
		clone[k] = v
	}
	return clone
}
