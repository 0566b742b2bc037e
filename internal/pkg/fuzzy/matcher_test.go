package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func stopMatcher() *Matcher {
	return NewMatcher(0,
		Field{Name: "name_th", Weight: 0.5},
		Field{Name: "name_en", Weight: 0.4},
		Field{Name: "address_th", Weight: 0.3},
		Field{Name: "address_en", Weight: 0.3},
	)
}

func TestSubstringDistance(t *testing.T) {
	tests := []struct {
		q, text string
		want    int
	}{
		{"siam", "bts siam station", 0},
		{"siam", "bts saim station", 2},
		{"sukhumvit", "soi sukumvit 11", 1},
		{"abc", "", 3},
		{"สยาม", "สถานีสยาม", 0},
	}
	for _, tt := range tests {
		got := substringDistance([]rune(tt.q), tt.text)
		assert.Equal(t, tt.want, got, "%q in %q", tt.q, tt.text)
	}
}

func TestMatcher_ScoreWeighting(t *testing.T) {
	m := stopMatcher()
	prepared := m.Prepare("สยาม", "Siam", "", "Rama I Rd")

	assert.Equal(t, 0.0, m.Score("SIAM", prepared))
	assert.Equal(t, 0.0, m.Score("rama i", prepared))

	// One typo in a 4-letter name scores 0.25 on name_en, scaled by 0.5/0.4.
	assert.InDelta(t, 0.3125, m.Score("siem", prepared), 1e-9)
}

func TestMatcher_Match(t *testing.T) {
	m := stopMatcher()
	prepared := m.Prepare("ท่าเรือสาทร", "Sathorn Pier", "แขวงยานนาวา 10120", "Yan Nawa 10120")

	assert.True(t, m.Match(Terms("sathorn"), prepared))
	assert.True(t, m.Match(Terms("sathon"), prepared), "transliteration variant should match")
	assert.True(t, m.Match(Terms("pier", "10120"), prepared))
	assert.False(t, m.Match(Terms("sathorn", "10330"), prepared))
	assert.False(t, m.Match(Terms("Chatuchak"), prepared))
	assert.True(t, m.Match(Terms("", "  "), prepared), "blank terms are ignored")
}

func TestTerms(t *testing.T) {
	terms := Terms(" SIAM ", "", "  ", "สยาม")
	if assert.Len(t, terms, 2) {
		assert.Equal(t, "siam", string(terms[0]))
		assert.Equal(t, "สยาม", string(terms[1]))
	}
	assert.Nil(t, Terms())
}
