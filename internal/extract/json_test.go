package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONObject(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		key    string
		want   any
	}{
		{"plain object", `{"verdict":"PASS"}`, true, "verdict", "PASS"},
		{"prose around object", `Sure! Here you go: {"verdict":"BLOCK"} hope that helps`, true, "verdict", "BLOCK"},
		{"fenced json", "Result:\n```json\n{\"a\": 1}\n```\nthanks", true, "a", float64(1)},
		{"untagged fence", "```\n{\"a\": 2}\n```", true, "a", float64(2)},
		{"brace inside string", `note {"reason":"use } carefully","x":3} trailing }`, true, "x", float64(3)},
		{"skips invalid leading span", `{not json} then {"ok":true}`, true, "ok", true},
		{"nested object", `{"outer":{"inner":1},"k":"v"}`, true, "k", "v"},
		{"escaped quote in string", `{"q":"say \"{hi}\"","n":4}`, true, "n", float64(4)},
		{"truncated object", `{"a": 1`, false, "", nil},
		{"array is not an object", `[1,2,3]`, false, "", nil},
		{"null literal", `null`, false, "", nil},
		{"empty", "   ", false, "", nil},
		{"no json at all", "I cannot comply.", false, "", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			obj, ok := JSONObject(tc.input)
			require.Equal(t, tc.wantOK, ok)
			if !tc.wantOK {
				assert.Nil(t, obj)
				return
			}
			assert.Equal(t, tc.want, obj[tc.key])
		})
	}
}

func TestBalancedObjects_RecoversAfterUnclosedBrace(t *testing.T) {
	spans := balancedObjects(`{ broken {"a":1} tail`)
	require.NotEmpty(t, spans)
	assert.Equal(t, `{"a":1}`, spans[0])
}

func TestCoercion(t *testing.T) {
	f, ok := Float("0.85")
	require.True(t, ok)
	assert.InDelta(t, 0.85, f, 1e-9)

	_, ok = Float("high")
	assert.False(t, ok)
	_, ok = Float(nil)
	assert.False(t, ok)

	assert.Equal(t, 0.0, Clamp01(-2))
	assert.Equal(t, 1.0, Clamp01(7))
	assert.Equal(t, 0.5, Clamp01(0.5))

	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "", Truncate("abc", 0))

	got := StringList([]any{" a ", "", 3, "b"}, 10, 40)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, []string{}, StringList("not a list", 10, 40))
}
