package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"123456", "123465", 2},
		{"验证码", "验证吗", 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Distance(c.a, c.b), "%q vs %q", c.a, c.b)
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("", "ab"))
	assert.Equal(t, 0.75, Similarity("1234", "1235"))
	assert.InDelta(t, 2.0/3.0, Similarity("验证码", "验证吗"), 1e-9)
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
}

func TestSimilarityReflexiveAndSymmetric(t *testing.T) {
	codes := []string{"", "A123", "A124", "ZX-99", "839201", "839210", "验证", "ß"}
	for _, a := range codes {
		assert.Equal(t, 1.0, Similarity(a, a), a)
		for _, b := range codes {
			assert.Equal(t, Similarity(a, b), Similarity(b, a), "%q/%q", a, b)
			s := Similarity(a, b)
			assert.True(t, s >= 0 && s <= 1, "%q/%q out of range: %v", a, b, s)
		}
	}
}
