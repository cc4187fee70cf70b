package normalizer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turn(role Role, content string) Turn {
	return Turn{Role: role, Content: content}
}

func roles(turns []Turn) []Role {
	out := make([]Role, len(turns))
	for i := range turns {
		out[i] = turns[i].Role
	}
	return out
}

func stripRaw(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i := range turns {
		out[i] = Turn{Role: turns[i].Role, Content: turns[i].Content}
	}
	return out
}

func TestNormalize_Scenarios(t *testing.T) {
	t.Run("Should emit a single continue turn for an empty conversation", func(t *testing.T) {
		got := Normalize(nil)
		assert.Equal(t, []Turn{turn(User, ContinueContent)}, got)
	})

	t.Run("Should merge trailing assistant turns and append continue", func(t *testing.T) {
		in := []Turn{
			turn(System, "S"),
			turn(User, "U1"),
			turn(Assistant, "A1"),
			turn(Assistant, "A2"),
		}
		got := Normalize(in)
		assert.Equal(t, []Turn{
			turn(System, "S"),
			turn(User, "U1"),
			turn(Assistant, "A1\n\nA2"),
			turn(User, ContinueContent),
		}, got)
	})

	t.Run("Should bridge a conversation that opens with an assistant turn", func(t *testing.T) {
		got := Normalize([]Turn{turn(Assistant, "A1")})
		assert.Equal(t, []Turn{
			turn(User, StartContent),
			turn(Assistant, "A1"),
			turn(User, ContinueContent),
		}, got)
	})

	t.Run("Should demote a second system turn and merge it with the following user turn", func(t *testing.T) {
		in := []Turn{
			turn(System, "S1"),
			turn(System, "S2"),
			turn(User, "U1"),
		}
		got := Normalize(in)
		assert.Equal(t, []Turn{
			turn(System, "S1"),
			turn(User, "S2\n\nU1"),
		}, got)
	})

	t.Run("Should bridge after a leading system turn when the assistant speaks first", func(t *testing.T) {
		got := Normalize([]Turn{turn(System, "S"), turn(Assistant, "A")})
		assert.Equal(t, []Turn{
			turn(System, "S"),
			turn(User, StartContent),
			turn(Assistant, "A"),
			turn(User, ContinueContent),
		}, got)
	})

	t.Run("Should collapse a system-only conversation to one system turn plus continue", func(t *testing.T) {
		got := Normalize([]Turn{turn(System, "S1"), turn(System, "S2"), turn(System, "S3")})
		assert.Equal(t, []Turn{
			turn(System, "S1"),
			turn(User, "S2\n\nS3"),
		}, got)
	})

	t.Run("Should demote a system turn that appears mid conversation", func(t *testing.T) {
		in := []Turn{
			turn(User, "U1"),
			turn(Assistant, "A1"),
			turn(System, "late"),
			turn(User, "U2"),
		}
		got := Normalize(in)
		assert.Equal(t, []Turn{
			turn(User, "U1"),
			turn(Assistant, "A1"),
			turn(User, "late\n\nU2"),
		}, got)
	})

	t.Run("Should leave an alternating conversation ending in user untouched", func(t *testing.T) {
		in := []Turn{
			turn(System, "S"),
			turn(User, "U1"),
			turn(Assistant, "A1"),
			turn(User, "U2"),
		}
		assert.Equal(t, in, Normalize(in))
	})

	t.Run("Should append exactly one turn to an alternating conversation ending in assistant", func(t *testing.T) {
		in := []Turn{turn(User, "U1"), turn(Assistant, "A1")}
		got := Normalize(in)
		require.Len(t, got, 3)
		assert.Equal(t, turn(User, ContinueContent), got[2])
	})
}

func TestNormalize_Representative(t *testing.T) {
	t.Run("Should keep the first buffered turn's raw fields on a merge", func(t *testing.T) {
		in := []Turn{
			{Role: User, Content: "U1"},
			{Role: Assistant, Content: "A1", Raw: []byte(`{"role":"assistant","content":"A1","name":"first"}`)},
			{Role: Assistant, Content: "A2", Raw: []byte(`{"role":"assistant","content":"A2","name":"second"}`)},
		}
		got := Normalize(in)
		require.Len(t, got, 3)
		assert.Equal(t, "A1\n\nA2", got[1].Content)
		assert.JSONEq(t, `{"role":"assistant","content":"A1","name":"first"}`, string(got[1].Raw))
	})

	t.Run("Should keep raw fields on a demoted turn while changing its role", func(t *testing.T) {
		raw := []byte(`{"role":"system","content":"late"}`)
		in := []Turn{
			{Role: User, Content: "U1"},
			{Role: Assistant, Content: "A1"},
			{Role: System, Content: "late", Raw: raw},
		}
		got := Normalize(in)
		require.Len(t, got, 3)
		assert.Equal(t, User, got[2].Role)
		assert.Equal(t, raw, got[2].Raw)
	})

	t.Run("Should not mutate the input slice", func(t *testing.T) {
		in := []Turn{
			turn(System, "S1"),
			turn(System, "S2"),
			turn(Assistant, "A1"),
			turn(Assistant, "A2"),
		}
		snapshot := append([]Turn(nil), in...)
		_ = Normalize(in)
		assert.Equal(t, snapshot, in)
	})

	t.Run("Should leave synthetic turns without raw fields", func(t *testing.T) {
		got := Normalize([]Turn{{Role: Assistant, Content: "A", Raw: []byte(`{}`)}})
		require.Len(t, got, 3)
		assert.Nil(t, got[0].Raw)
		assert.NotNil(t, got[1].Raw)
		assert.Nil(t, got[2].Raw)
	})
}

func TestNormalizeWithStats(t *testing.T) {
	t.Run("Should count merged, demoted and bridged turns", func(t *testing.T) {
		in := []Turn{
			turn(System, "S1"),
			turn(System, "S2"),
			turn(Assistant, "A1"),
			turn(Assistant, "A2"),
			turn(Assistant, "A3"),
		}
		got, stats := NormalizeWithStats(in)
		assert.Equal(t, []Role{System, User, Assistant, User}, roles(got))
		assert.Equal(t, Stats{
			InputTurns:  5,
			OutputTurns: 4,
			Merged:      2,
			Demoted:     1,
			Bridged:     1,
		}, stats)
		assert.True(t, stats.Changed())
	})

	t.Run("Should report no change for a conforming conversation", func(t *testing.T) {
		_, stats := NormalizeWithStats([]Turn{turn(User, "U")})
		assert.False(t, stats.Changed())
		assert.Equal(t, 1, stats.OutputTurns)
	})
}

// allConversations enumerates every role sequence up to maxLen turns. Each
// turn gets unique content and a raw marker so synthetic turns can be told
// apart from real ones.
func allConversations(maxLen int) [][]Turn {
	all := []Role{System, User, Assistant}
	var out [][]Turn
	var build func(prefix []Turn)
	build = func(prefix []Turn) {
		out = append(out, append([]Turn(nil), prefix...))
		if len(prefix) == maxLen {
			return
		}
		for _, r := range all {
			i := len(prefix)
			content := fmt.Sprintf("%s-%d", r, i)
			build(append(prefix, Turn{Role: r, Content: content, Raw: []byte(content)}))
		}
	}
	build(nil)
	return out
}

func TestNormalize_Properties(t *testing.T) {
	conversations := allConversations(6)

	t.Run("Should always satisfy the alternation contract", func(t *testing.T) {
		for _, in := range conversations {
			out := Normalize(in)
			assert.NoError(t, Check(out), "input roles %v", roles(in))
		}
	})

	t.Run("Should be idempotent", func(t *testing.T) {
		for _, in := range conversations {
			once := Normalize(in)
			twice := Normalize(once)
			assert.Equal(t, once, twice, "input roles %v", roles(in))
		}
	})

	t.Run("Should preserve every original content in order", func(t *testing.T) {
		for _, in := range conversations {
			var want []string
			for _, tr := range in {
				want = append(want, tr.Content)
			}
			var got []string
			for _, o := range Normalize(in) {
				if o.Raw == nil {
					continue
				}
				got = append(got, strings.Split(o.Content, MergeSeparator)...)
			}
			assert.Equal(t, want, got, "input roles %v", roles(in))
		}
	})

	t.Run("Should be deterministic", func(t *testing.T) {
		for _, in := range conversations {
			assert.Equal(t, stripRaw(Normalize(in)), stripRaw(Normalize(in)))
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("Should accept known roles", func(t *testing.T) {
		assert.NoError(t, Validate([]Turn{turn(System, ""), turn(User, ""), turn(Assistant, "")}))
	})

	t.Run("Should reject an unknown role with its index", func(t *testing.T) {
		err := Validate([]Turn{turn(User, "U"), {Role: Role("tool"), Content: "T"}})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownRole)
		assert.Contains(t, err.Error(), "turn 1")
	})
}

func TestParseRole(t *testing.T) {
	t.Run("Should parse the three known roles", func(t *testing.T) {
		for _, s := range []string{"system", "user", "assistant"} {
			r, err := ParseRole(s)
			require.NoError(t, err)
			assert.Equal(t, s, r.String())
		}
	})

	t.Run("Should reject other values", func(t *testing.T) {
		for _, s := range []string{"", "tool", "developer", "User", " user"} {
			_, err := ParseRole(s)
			assert.ErrorIs(t, err, ErrUnknownRole, "value %q", s)
		}
	})
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		turns   []Turn
		wantErr bool
	}{
		{"empty", nil, true},
		{"system only", []Turn{turn(System, "S")}, true},
		{"single user", []Turn{turn(User, "U")}, false},
		{"system then user", []Turn{turn(System, "S"), turn(User, "U")}, false},
		{"starts with assistant", []Turn{turn(Assistant, "A"), turn(User, "U")}, true},
		{"ends with assistant", []Turn{turn(User, "U"), turn(Assistant, "A")}, true},
		{"adjacent users", []Turn{turn(User, "U1"), turn(User, "U2")}, true},
		{"late system", []Turn{turn(User, "U"), turn(System, "S"), turn(User, "U2")}, true},
		{
			"full alternation",
			[]Turn{turn(System, "S"), turn(User, "U"), turn(Assistant, "A"), turn(User, "U2")},
			false,
		},
	}
	for _, tt := range tests {
		t.Run("Should check "+tt.name, func(t *testing.T) {
			err := Check(tt.turns)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotAlternating)
				return
			}
			assert.NoError(t, err)
		})
	}
}
