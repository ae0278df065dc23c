package knowledge

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"rent360_assistant/internal/config"
	"rent360_assistant/pkg"
)

const (
	baseMatchConfidence = 0.6
	partialMatchFactor  = 0.8
	minKeywordRunes     = 4
	maxSuggestions      = 3
)

// Match sources, in the order they are tried
const (
	SourceRoleExample      = "role_example"
	SourceBrokerCommission = "broker_commission"
	SourceIntentKeywords   = "intent_keywords"
	SourceGeneral          = "general"
)

var punctuation = strings.NewReplacer(
	"¿", " ", "?", " ", "¡", " ", "!", " ",
	".", " ", ",", " ", ";", " ", ":", " ",
	"\"", " ", "'", " ", "“", " ", "”", " ",
)

// Match is a dataset answer for a message
type Match struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Intent     string  `json:"intent"`
	Source     string  `json:"source"`
}

type keywordList struct {
	intent   string
	keywords []*regexp.Regexp
}

// Dataset answers messages from the role-indexed training examples
type Dataset struct {
	data     config.Dataset
	keywords []keywordList
}

// NewDataset compiles the ordered intent keyword lists
func NewDataset(data config.Dataset) (*Dataset, error) {
	keywords := make([]keywordList, 0, len(data.IntentKeywords))
	for _, ik := range data.IntentKeywords {
		list := keywordList{intent: ik.Intent}
		for _, k := range ik.Keywords {
			re, err := regexp.Compile(config.WordBounded(regexp.QuoteMeta(strings.ToLower(k))))
			if err != nil {
				return nil, err
			}
			list.keywords = append(list.keywords, re)
		}
		keywords = append(keywords, list)
	}
	return &Dataset{data: data, keywords: keywords}, nil
}

// FindBestMatch tries, in order: an exact role example, a role example
// sharing important words, the broker commission examples, the intent
// keyword lists and finally general knowledge containment
func (d *Dataset) FindBestMatch(text string, role pkg.Role) (Match, bool) {
	input := Normalize(text)
	if input == "" {
		return Match{}, false
	}
	examples := d.roleExamples(role)

	match, ok := d.match(input, examples)
	if !ok {
		return Match{}, false
	}
	match.Confidence = confidence(input, examples)
	return match, true
}

func (d *Dataset) match(input string, examples []config.Example) (Match, bool) {
	important := importantWords(input)

	for _, ex := range examples {
		if Normalize(ex.Input) == input {
			return fromExample(ex, SourceRoleExample), true
		}
	}
	for _, ex := range examples {
		if sharesKeywords(important, importantWords(Normalize(ex.Input))) {
			return fromExample(ex, SourceRoleExample), true
		}
	}

	if ex, ok := brokerCommission(input, examples); ok {
		return fromExample(ex, SourceBrokerCommission), true
	}

	for _, list := range d.keywords {
		if !anyMatch(list.keywords, input) {
			continue
		}
		for _, category := range d.data.Categories {
			for _, ex := range category.Examples {
				if ex.Intent == list.intent && anyMatch(list.keywords, Normalize(ex.Input)) {
					return fromExample(ex, SourceIntentKeywords), true
				}
			}
		}
	}

	general, _ := d.data.Category(d.data.GeneralCategory)
	for _, ex := range general {
		candidate := Normalize(ex.Input)
		if strings.Contains(candidate, input) || strings.Contains(input, candidate) {
			return fromExample(ex, SourceGeneral), true
		}
	}
	return Match{}, false
}

// Suggestions returns the first role suggestions, or the defaults
func (d *Dataset) Suggestions(role pkg.Role) []string {
	list, ok := d.data.Suggestions[role.Key()]
	if !ok || len(list) == 0 {
		list = d.data.DefaultSuggestions
	}
	return slices.Clone(list[:min(maxSuggestions, len(list))])
}

func (d *Dataset) roleExamples(role pkg.Role) []config.Example {
	if examples, ok := d.data.RoleCategory(role); ok {
		return examples
	}
	examples, _ := d.data.Category(d.data.GeneralCategory)
	return examples
}

// confidence is exact-match confidence, the best partial match scaled
// down, or the base confidence
func confidence(input string, examples []config.Example) float64 {
	best := -1.0
	for _, ex := range examples {
		candidate := Normalize(ex.Input)
		if candidate == input {
			return ex.Confidence
		}
		if strings.Contains(candidate, input) || strings.Contains(input, candidate) {
			best = max(best, ex.Confidence)
		}
	}
	if best >= 0 {
		return best * partialMatchFactor
	}
	return baseMatchConfidence
}

func brokerCommission(input string, examples []config.Example) (config.Example, bool) {
	if !containsAny(input, "comisión", "comision") || !containsAny(input, "corredor", "broker") {
		return config.Example{}, false
	}
	var found []config.Example
	for _, ex := range examples {
		if ex.Intent == "commission_info" && (strings.Contains(ex.Context, "broker") || containsAny(strings.ToLower(ex.Input), "corredor")) {
			found = append(found, ex)
		}
	}
	if len(found) == 0 {
		return config.Example{}, false
	}
	for _, ex := range found {
		if containsAny(strings.ToLower(ex.Input), "corredor", "broker") {
			return ex, true
		}
	}
	return found[0], true
}

// Normalize lowercases text, drops punctuation and collapses whitespace
func Normalize(text string) string {
	return strings.Join(strings.Fields(punctuation.Replace(strings.ToLower(text))), " ")
}

func importantWords(normalized string) []string {
	var words []string
	for _, w := range strings.Fields(normalized) {
		if utf8.RuneCountInString(w) >= minKeywordRunes {
			words = append(words, w)
		}
	}
	return words
}

// sharesKeywords needs at least min(2, len(important)) common words and
// never matches on an empty list
func sharesKeywords(important, candidate []string) bool {
	if len(important) == 0 {
		return false
	}
	shared := 0
	for _, w := range important {
		if slices.Contains(candidate, w) {
			shared++
		}
	}
	return shared >= min(2, len(important))
}

func fromExample(ex config.Example, source string) Match {
	return Match{Text: ex.Output, Confidence: ex.Confidence, Intent: ex.Intent, Source: source}
}

func anyMatch(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func containsAny(text string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}
