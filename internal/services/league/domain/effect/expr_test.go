package effect

import (
	"math"
	"math/rand"
	"testing"
)

func exprContext() *Context {
	return &Context{
		Event: map[string]any{"points": 3.0},
		Game:  map[string]any{"quarter": 2.0, "home_score": 40.0},
		Player: map[string]any{
			"scoring":         70.0,
			"current_stamina": 0.8,
		},
		Rand: rand.New(rand.NewSource(7)),
	}
}

func TestEvalArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 / 4", 2.5},
		{"7 % 3", 1},
		{"-2 + 5", 3},
		{"event.points + 1", 4},
		{"game.quarter * 10", 20},
		{"player.scoring / 100", 0.7},
		{"clamp(1.5, 0.01, 0.99)", 0.99},
		{"min(3, 1, 2)", 1},
		{"max(3, 1, 2)", 3},
		{"abs(-4)", 4},
		{"floor(2.9)", 2},
		{"event.points > 2", 1},
		{"event.points > 2 and game.quarter == 2", 1},
		{"not (event.points > 2)", 0},
		{"event.points == 3 or false", 1},
	}
	for _, tt := range tests {
		got, err := Eval(tt.expr, exprContext())
		if err != nil {
			t.Errorf("Eval(%q): %v", tt.expr, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Eval(%q) = %g, want %g", tt.expr, got, tt.want)
		}
	}
}

func TestEvalLogistic(t *testing.T) {
	got, err := Eval("logistic(50, 50, 0.1)", exprContext())
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("logistic at midpoint = %g, want 0.5", got)
	}

	high, err := Eval("logistic(90, 50, 0.1)", exprContext())
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if high <= 0.9 {
		t.Fatalf("logistic(90, 50, 0.1) = %g, want > 0.9", high)
	}
}

func TestEvalWeightedChoiceIsSeeded(t *testing.T) {
	first, err := Eval("weighted_choice(1, 10, 1, 20, 1, 30)", exprContext())
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	second, err := Eval("weighted_choice(1, 10, 1, 20, 1, 30)", exprContext())
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if first != second {
		t.Fatalf("same seed produced %g then %g", first, second)
	}

	only, err := Eval("weighted_choice(0, 5, 1, 7)", exprContext())
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if only != 7 {
		t.Fatalf("zero-weight option chosen: %g", only)
	}
}

func TestEvalErrors(t *testing.T) {
	exprs := []string{
		"",
		"1 +",
		"unknown_func(1)",
		"1 / 0",
		"nosuch.path + 1",
		"@",
		"clamp(1)",
	}
	for _, expr := range exprs {
		if _, err := Eval(expr, exprContext()); err == nil {
			t.Errorf("Eval(%q): expected error", expr)
		}
	}
}
