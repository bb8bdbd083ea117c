package sortname

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinTagRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tagged := PinTag("The Matrix", now)
	assert.True(t, HasTag(tagged))
	assert.Equal(t, "matrix", StripTag(tagged))

	// Re-tagging never double-tags.
	again := PinTag(tagged, now)
	assert.Equal(t, tagged, again)
}

func TestDateTagOrdersByRecency(t *testing.T) {
	older := DateTag("Alpha", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := DateTag("Beta", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	// Lexicographic comparison is what the media server sorts by; the newer
	// item must sort first... both tags have the same digit count until 2081,
	// so plain string compare holds.
	assert.True(t, newer < older, "newer item should sort before older")
}

func TestDateTagKeepsNameVerbatim(t *testing.T) {
	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tagged := DateTag("The Matrix", created)
	assert.Equal(t, "The Matrix", StripTag(tagged))
}

func TestStripTagIdempotent(t *testing.T) {
	assert.Equal(t, "plain name", StripTag("plain name"))
	assert.Equal(t, "name", StripTag(StripTag("!!![123]name")))
	// Every well-formed tag goes, wherever it sits.
	assert.Equal(t, "ab", StripTag("!!![1]a!!![2]b"))
}

func TestHasTagRejectsMalformed(t *testing.T) {
	assert.False(t, HasTag("!!![]name"))
	assert.False(t, HasTag("!!![12name"))
	assert.False(t, HasTag("!!![abc]name"))
	assert.True(t, HasTag("x!!![7]y"))
}

func TestMinutesUntilRef(t *testing.T) {
	oneHourBefore := time.Date(2099, 12, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, 60, MinutesUntilRef(oneHourBefore))
}

func TestDefaultSortName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"The Matrix", "matrix"},
		{"A Bug's Life", "bugs life"},
		{"Das Boot", "boot"},
		{"El Mariachi", "mariachi"},
		{"  Spaced   Out  ", "spaced out"},
		{"Se7en: Remastered!", "se7en remastered"},
		{"Theodore", "theodore"}, // no article without trailing space
		{"!!!", "!!!"},           // all-punctuation falls back
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DefaultSortName(tc.in), "input %q", tc.in)
	}
}

func TestPinTagNormalizesName(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	tagged := PinTag("The Great Escape!", now)
	require.True(t, HasTag(tagged))
	assert.Equal(t, "great escape", StripTag(tagged))
}
