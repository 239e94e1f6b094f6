package player

import "testing"

func validAttributes() Attributes {
	return Attributes{
		Scoring:          70,
		Passing:          60,
		Defense:          55,
		Speed:            65,
		Stamina:          80,
		IQ:               72,
		Ego:              40,
		ChaoticAlignment: 30,
		Fate:             50,
	}
}

func TestAttributesValidate(t *testing.T) {
	if err := validAttributes().Validate(); err != nil {
		t.Fatalf("valid attributes rejected: %v", err)
	}

	a := validAttributes()
	a.Fate = 0
	if err := a.Validate(); err == nil {
		t.Fatal("expected error for fate=0")
	}

	a = validAttributes()
	a.Scoring = 101
	if err := a.Validate(); err == nil {
		t.Fatal("expected error for scoring=101")
	}
}

func TestPlayerValidate(t *testing.T) {
	p := Player{
		ID:        "p1",
		Name:      "Jo Fastbreak",
		Archetype: ArchetypeSlasher,
		Base:      validAttributes(),
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("valid player rejected: %v", err)
	}

	p.ID = ""
	if err := p.Validate(); err != ErrEmptyID {
		t.Fatalf("expected ErrEmptyID, got %v", err)
	}

	p.ID = "p1"
	p.Name = "   "
	if err := p.Validate(); err != ErrEmptyName {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}
