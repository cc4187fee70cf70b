package normalizer

import (
	"errors"
	"fmt"
)

// ErrNotAlternating is wrapped by every error returned from Check.
var ErrNotAlternating = errors.New("conversation does not alternate")

// Check verifies that turns already satisfy the alternation contract: at most
// one system turn and only in first position, then user/assistant strictly
// alternating starting with user, ending on user.
func Check(turns []Turn) error {
	if len(turns) == 0 {
		return fmt.Errorf("%w: empty conversation", ErrNotAlternating)
	}
	start := 0
	if turns[0].Role == System {
		start = 1
	}
	if start == len(turns) {
		return fmt.Errorf("%w: no conversational turns after system", ErrNotAlternating)
	}
	want := User
	for i := start; i < len(turns); i++ {
		got := turns[i].Role
		if got != want {
			return fmt.Errorf("%w: turn %d has role %q, expected %q", ErrNotAlternating, i, got, want)
		}
		want = next(want)
	}
	if last := turns[len(turns)-1].Role; last != User {
		return fmt.Errorf("%w: last turn has role %q", ErrNotAlternating, last)
	}
	return nil
}

func next(r Role) Role {
	if r == User {
		return Assistant
	}
	return User
}
