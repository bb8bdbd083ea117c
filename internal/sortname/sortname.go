// Package sortname encodes transient ordering hints inside an item's sort key.
//
// A tagged sort key has the shape "!!![<minutes>]<name>", where minutes is the
// whole number of minutes between a reference instant and 2100-01-01 UTC.
// Recently tagged keys carry smaller values and therefore sort first, which is
// how both pin-to-top and date-added ordering are expressed.
package sortname

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	tagStart = "!!!["
	tagEnd   = "]"
)

// TagPrefix is the opening marker of a tag, usable as a sort-key prefix query.
const TagPrefix = tagStart

var refInstant = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

// articles stripped from the front of default sort names, checked in order.
var articles = []string{"the ", "a ", "an ", "das ", "der ", "el ", "la "}

// MinutesUntilRef returns the whole minutes from t to the reference instant.
func MinutesUntilRef(t time.Time) int {
	return int(refInstant.Sub(t).Minutes())
}

// PinTag builds a sort key that floats name to the top of sort order as of now.
// The name is normalized and any existing tag is discarded first.
func PinTag(name string, now time.Time) string {
	return encode(MinutesUntilRef(now.UTC()), DefaultSortName(StripTag(name)))
}

// DateTag builds a sort key ordering name by createdAt, newest first. The name
// is kept verbatim apart from removing any existing tag.
func DateTag(name string, createdAt time.Time) string {
	return encode(MinutesUntilRef(createdAt.UTC()), StripTag(name))
}

func encode(minutes int, rest string) string {
	if minutes < 0 {
		minutes = 0
	}
	return tagStart + strconv.Itoa(minutes) + tagEnd + rest
}

// HasTag reports whether s contains a well-formed tag anywhere in the key.
func HasTag(s string) bool {
	_, _, ok := decodeAt(s, strings.Index(s, tagStart))
	return ok
}

// StripTag removes every well-formed tag from s. Untagged input is returned
// unchanged, so stripping is idempotent.
func StripTag(s string) string {
	for {
		i := strings.Index(s, tagStart)
		if i < 0 {
			return s
		}
		end, _, ok := decodeAt(s, i)
		if !ok {
			return s
		}
		s = s[:i] + s[end:]
	}
}

// decodeAt parses a tag starting at index i. It returns the index just past
// the closing marker and the encoded minutes value.
func decodeAt(s string, i int) (end int, minutes int, ok bool) {
	if i < 0 || !strings.HasPrefix(s[i:], tagStart) {
		return 0, 0, false
	}
	j := i + len(tagStart)
	start := j
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		minutes = minutes*10 + int(s[j]-'0')
		j++
	}
	if j == start || j >= len(s) || s[j:j+1] != tagEnd {
		return 0, 0, false
	}
	return j + 1, minutes, true
}

// DefaultSortName normalizes a display title into a bare sort key: lower-case,
// one leading article removed, punctuation dropped, whitespace collapsed. An
// all-punctuation title falls back to its lower-cased form.
func DefaultSortName(title string) string {
	if title == "" {
		return ""
	}

	s := strings.ToLower(title)
	for _, article := range articles {
		if strings.HasPrefix(s, article) {
			s = s[len(article):]
			break
		}
	}

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	s = strings.Join(strings.Fields(b.String()), " ")

	if s == "" {
		return strings.ToLower(title)
	}
	return s
}
