package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMove(t *testing.T) {
	cases := []struct {
		in   string
		want Move
		ok   bool
	}{
		{"rock", Rock, true},
		{"ROCK", Rock, true},
		{"  Paper ", Paper, true},
		{"Scissors", Scissors, true},
		{"lizard", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, ok := ParseMove(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if ok {
			assert.Equal(t, tc.want, got)
		}
	}
}

func TestResolve(t *testing.T) {
	require.Equal(t, Draw, Resolve(Rock, Rock))
	require.Equal(t, P1Win, Resolve(Rock, Scissors))
	require.Equal(t, P2Win, Resolve(Scissors, Rock))
	require.Equal(t, P1Win, Resolve(Scissors, Paper))
	require.Equal(t, P1Win, Resolve(Paper, Rock))
}

func TestResolveIsMirroredByFlip(t *testing.T) {
	moves := []Move{Rock, Paper, Scissors}
	for _, a := range moves {
		for _, b := range moves {
			require.Equal(t, Resolve(a, b), Flip(Resolve(b, a)), "a=%s b=%s", a, b)
		}
	}
}
