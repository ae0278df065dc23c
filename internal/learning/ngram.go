package learning

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NGrams returns the unique 2-grams then 3-grams of the lowercased
// message, in order of appearance
func NGrams(message string) []string {
	words := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool)
	var grams []string
	for _, n := range []int{2, 3} {
		for i := 0; i+n <= len(words); i++ {
			gram := strings.Join(words[i:i+n], " ")
			if !seen[gram] {
				seen[gram] = true
				grams = append(grams, gram)
			}
		}
	}
	return grams
}

// BucketFor classifies a reply by rune length
func BucketFor(response string) LengthBucket {
	switch n := utf8.RuneCountInString(response); {
	case n < 100:
		return LengthShort
	case n < 300:
		return LengthMedium
	default:
		return LengthLong
	}
}
