package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmartSamplesPrefersKeywordRichTexts(t *testing.T) {
	rich := "spooler error printer network office jammed offline"
	texts := []string{
		"flurble gibberish nothing",
		"printer spooler jammed office",
		"printer offline error network",
		rich,
	}

	samples, keywords := SmartSamples(texts, 3)
	require.Len(t, samples, 3)
	assert.Equal(t, rich, samples[0], "the text covering every keyword must come first")
	assert.Contains(t, keywords, "printer")
	assert.NotContains(t, samples, "flurble gibberish nothing")
}

func TestSmartSamplesTiesKeepInputOrder(t *testing.T) {
	texts := []string{
		"database timeout",
		"database timeout",
		"database timeout",
	}
	samples, _ := SmartSamples(texts, 2)
	assert.Equal(t, []string{"database timeout", "database timeout"}, samples)
}

func TestSmartSamplesSkipsNearDuplicates(t *testing.T) {
	texts := []string{
		"printer spooler jammed office floor three",
		"office floor three printer spooler jammed",
		"printer offline network error after update",
	}
	samples, _ := SmartSamples(texts, 2)
	require.Len(t, samples, 2)
	assert.Contains(t, samples, "printer offline network error after update",
		"the distinct wording must displace the reworded duplicate")
}

func TestSmartSamplesAllZeroScores(t *testing.T) {
	// Stop words and short tokens only: nothing scores, fall back to
	// the first texts in input order.
	texts := []string{"the a of", "is at to", "on in it"}
	samples, keywords := SmartSamples(texts, 2)
	assert.Equal(t, []string{"the a of", "is at to"}, samples)
	assert.Empty(t, keywords)
}

func TestSmartSamplesEmpty(t *testing.T) {
	samples, keywords := SmartSamples(nil, 5)
	assert.Nil(t, samples)
	assert.Nil(t, keywords)

	samples, _ = SmartSamples([]string{"something broke"}, 0)
	assert.Nil(t, samples)
}

func TestSmartSamplesCapsAtAvailableTexts(t *testing.T) {
	samples, _ := SmartSamples([]string{"printer broken", "printer stuck"}, 10)
	assert.Len(t, samples, 2)
}

func TestTopKeywords(t *testing.T) {
	counts := map[string]int{
		"printer": 5,
		"error":   3,
		"access":  3,
		"vpn":     1,
	}
	assert.Equal(t, []string{"printer", "access", "error"}, TopKeywords(counts, 3))
	assert.Equal(t, []string{"printer", "access", "error", "vpn"}, TopKeywords(counts, 15))
}
