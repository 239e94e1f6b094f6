package effect

import (
	"fmt"

	"github.com/Shopify/go-lua"
)

// runScript executes a custom_mechanic program in a sandboxed Lua state. The
// script sees only the math and string libraries plus a fixed host API; no
// file, network, or os access is reachable:
//
//	ctx_get(path) -> number      read a context field
//	ctx_set(path, value)         write a context field
//	meta_get(kind, key) -> value read the scope entity's meta bucket
//	meta_set(kind, key, value)   write the scope entity's meta bucket
//	rand() -> number             draw from the game RNG
//	narrate(text)                append a commentary line
//	score(team_id, points)       credit points to a team
func runScript(script string, ctx *Context) error {
	state := lua.NewState()
	lua.Require(state, "math", lua.MathOpen, true)
	state.Pop(1)
	lua.Require(state, "string", lua.StringOpen, true)
	state.Pop(1)

	// The stock math.random draws from its own seed, which would break
	// bit-identical replay. Route it through the game RNG and make
	// math.randomseed a no-op.
	state.Global("math")
	state.PushGoFunction(func(l *lua.State) int {
		if ctx.Rand == nil {
			l.PushNumber(0)
			return 1
		}
		switch l.Top() {
		case 0:
			l.PushNumber(ctx.Rand.Float64())
		case 1:
			n := int(lua.CheckNumber(l, 1))
			if n < 1 {
				n = 1
			}
			l.PushNumber(float64(1 + ctx.Rand.Intn(n)))
		default:
			lo := int(lua.CheckNumber(l, 1))
			hi := int(lua.CheckNumber(l, 2))
			if hi < lo {
				hi = lo
			}
			l.PushNumber(float64(lo + ctx.Rand.Intn(hi-lo+1)))
		}
		return 1
	})
	state.SetField(-2, "random")
	state.PushGoFunction(func(l *lua.State) int { return 0 })
	state.SetField(-2, "randomseed")
	state.Pop(1)

	state.Register("ctx_get", func(l *lua.State) int {
		path := lua.CheckString(l, 1)
		value, err := ctx.ResolveNumber(path)
		if err != nil {
			l.PushNil()
			return 1
		}
		l.PushNumber(value)
		return 1
	})
	state.Register("ctx_set", func(l *lua.State) int {
		path := lua.CheckString(l, 1)
		value := lua.CheckNumber(l, 2)
		_ = ctx.SetPath(path, value)
		return 0
	})
	state.Register("meta_get", func(l *lua.State) int {
		kind := lua.CheckString(l, 1)
		key := lua.CheckString(l, 2)
		value, err := ctx.Resolve("meta." + kind + "." + key)
		if err != nil || value == nil {
			l.PushNil()
			return 1
		}
		switch v := value.(type) {
		case float64:
			l.PushNumber(v)
		case string:
			l.PushString(v)
		case bool:
			l.PushBoolean(v)
		default:
			l.PushNil()
		}
		return 1
	})
	state.Register("meta_set", func(l *lua.State) int {
		kind := lua.CheckString(l, 1)
		key := lua.CheckString(l, 2)
		var value any
		switch l.TypeOf(3) {
		case lua.TypeNumber:
			value = lua.CheckNumber(l, 3)
		case lua.TypeString:
			value = lua.CheckString(l, 3)
		case lua.TypeBoolean:
			value = l.ToBoolean(3)
		}
		_ = ctx.SetPath("meta."+kind+"."+key, value)
		return 0
	})
	state.Register("rand", func(l *lua.State) int {
		if ctx.Rand == nil {
			l.PushNumber(0)
			return 1
		}
		l.PushNumber(ctx.Rand.Float64())
		return 1
	})
	state.Register("narrate", func(l *lua.State) int {
		ctx.Narration = append(ctx.Narration, lua.CheckString(l, 1))
		return 0
	})
	state.Register("score", func(l *lua.State) int {
		teamID := lua.CheckString(l, 1)
		points := int(lua.CheckNumber(l, 2))
		if teamID == "" {
			teamID = ctx.TeamID
		}
		ctx.Scores = append(ctx.Scores, ScoreCredit{TeamID: teamID, Points: points})
		return 0
	})

	if err := lua.DoString(state, script); err != nil {
		return fmt.Errorf("lua: %w", err)
	}
	return nil
}
