package flow

import (
	"errors"
	"strconv"
	"strings"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

// ErrNoOptionMatch is returned when a visitor reply matches none of a
// block's options. The engine re-prompts instead of guessing.
var ErrNoOptionMatch = errors.New("reply does not match any option")

// MatchOption resolves a visitor reply to one of the block's options and
// returns its index. Two forms are accepted: the option text itself
// (case-insensitive, surrounding whitespace ignored) or a 1-based number
// ("2" picks the second option).
func MatchOption(b model.Block, input string) (int, error) {
	reply := strings.TrimSpace(input)
	if reply == "" || len(b.Options) == 0 {
		return 0, ErrNoOptionMatch
	}

	for i, opt := range b.Options {
		if strings.EqualFold(strings.TrimSpace(opt.Text), reply) {
			return i, nil
		}
	}

	if n, err := strconv.Atoi(reply); err == nil {
		if n >= 1 && n <= len(b.Options) {
			return n - 1, nil
		}
	}

	return 0, ErrNoOptionMatch
}
