package guardrails

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "What is a stock?", "What is a stock?"},
		{"trim and collapse", "  a \t b\n\nc  ", "a b c"},
		{"control characters", "ab\x00c\x7Fd\x1b", "abcd"},
		{"control between spaces", "a \x00 b", "a b"},
		{"four repeats kept", "hmmmm", "hmmmm"},
		{"five repeats collapsed", "hmmmmm", "hmmm"},
		{"long punctuation run", "why!!!!!!!!!!", "why!!!"},
		{"multiple runs", "aaaaabbbbbb", "aaabbb"},
		{"unicode repeats", "好好好好好好", "好好好"},
		{"spaces are not repeats", "a          b", "a b"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

// TestProperty_SanitizeIdempotent 规范化结果再次规范化保持不变
func TestProperty_SanitizeIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.String().Draw(rt, "input")
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			rt.Fatalf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	})
}

// TestProperty_SanitizeOutputShape 输出不含控制字符、多余空白和五连重复
func TestProperty_SanitizeOutputShape(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.StringMatching(`[a-c \t\n\x00\x01!?]{0,60}`).Draw(rt, "input")
		out := Sanitize(in)

		if out != strings.TrimSpace(out) {
			rt.Fatalf("untrimmed output %q", out)
		}
		if strings.Contains(out, "  ") {
			rt.Fatalf("double space in %q", out)
		}
		for _, r := range out {
			if r < 0x20 || r == 0x7F {
				rt.Fatalf("control character %U in %q", r, out)
			}
		}
		runes := []rune(out)
		for i := 0; i+4 < len(runes); i++ {
			if runes[i] == runes[i+1] && runes[i] == runes[i+2] && runes[i] == runes[i+3] && runes[i] == runes[i+4] {
				rt.Fatalf("run of five in %q", out)
			}
		}
		if utf8.RuneCountInString(out) > utf8.RuneCountInString(in) {
			rt.Fatalf("output longer than input: %q -> %q", in, out)
		}
	})
}

// TestProperty_ValidQueryRoundTrip 已规范化且无风险的查询原样通过
func TestProperty_ValidQueryRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		words := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,3}`), 1, 12).Draw(rt, "words")
		query := Sanitize(strings.Join(words, " ") + "?")

		e := NewEngine(nil, nil, nil)
		res := e.ValidateInput(context.Background(), query, "prop")
		if !res.Valid {
			rt.Fatalf("query %q rejected: %s", query, res.Error)
		}
		if res.Sanitized != query {
			rt.Fatalf("sanitized %q != %q", res.Sanitized, query)
		}
	})
}

func TestSpecialCharRatio(t *testing.T) {
	assert.Zero(t, SpecialCharRatio(""))
	assert.Zero(t, SpecialCharRatio("Is $5 (5%) ok, right?!"))
	assert.InDelta(t, 0.5, SpecialCharRatio("a@b#"), 1e-9)
	assert.InDelta(t, 1.0, SpecialCharRatio("日本"), 1e-9)
}
