package flow

import (
	"errors"
	"testing"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

func TestMatchOption(t *testing.T) {
	b := model.Block{
		ID:      "welcome",
		Message: "What brings you here?",
		Options: []model.BlockOption{
			{Text: "I want to grow", NextBlockID: next("a")},
			{Text: "Just looking", NextBlockID: nil},
		},
	}

	tests := []struct {
		name  string
		input string
		want  int
		noHit bool
	}{
		{name: "exact text", input: "I want to grow", want: 0},
		{name: "case insensitive", input: "JUST LOOKING", want: 1},
		{name: "surrounding whitespace", input: "  just looking \n", want: 1},
		{name: "numeric pick", input: "2", want: 1},
		{name: "numeric with whitespace", input: " 1 ", want: 0},
		{name: "number out of range", input: "3", noHit: true},
		{name: "zero is not an option", input: "0", noHit: true},
		{name: "free text", input: "tell me more", noHit: true},
		{name: "empty", input: "   ", noHit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchOption(b, tt.input)
			if tt.noHit {
				if !errors.Is(err, ErrNoOptionMatch) {
					t.Fatalf("expected ErrNoOptionMatch, got %v (index %d)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("MatchOption: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected option %d, got %d", tt.want, got)
			}
		})
	}
}

func TestMatchOption_TextBeatsNumber(t *testing.T) {
	// An option whose text is itself a number matches by text first.
	b := model.Block{
		Options: []model.BlockOption{
			{Text: "2", NextBlockID: nil},
			{Text: "Other", NextBlockID: nil},
		},
	}
	got, err := MatchOption(b, "2")
	if err != nil {
		t.Fatalf("MatchOption: %v", err)
	}
	if got != 0 {
		t.Errorf("expected text match on option 0, got %d", got)
	}
}

func TestMatchOption_NoOptions(t *testing.T) {
	if _, err := MatchOption(model.Block{}, "anything"); !errors.Is(err, ErrNoOptionMatch) {
		t.Errorf("expected ErrNoOptionMatch, got %v", err)
	}
}
