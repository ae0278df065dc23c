package nlu

import (
	"regexp"
	"strings"

	"rent360_assistant/internal/config"
	"rent360_assistant/pkg"
)

// keywordMatcher pairs a whole-word regexp with the value it yields
type keywordMatcher struct {
	value string
	re    *regexp.Regexp
}

// EntityExtractor finds roles, amounts, property types, locations and
// service professions in a message, independently of its intent
type EntityExtractor struct {
	roles         []config.RoleMention
	amounts       []*regexp.Regexp
	propertyTypes []keywordMatcher
	locations     []keywordMatcher
	services      []keywordMatcher
}

// NewEntityExtractor compiles the keyword tables of the lexicon
func NewEntityExtractor(lex config.Lexicon) (*EntityExtractor, error) {
	propertyTypes, err := compileKeywords(lex.PropertyTypes)
	if err != nil {
		return nil, err
	}
	locations, err := compileKeywords(lex.Locations)
	if err != nil {
		return nil, err
	}
	services, err := compileKeywords(lex.Services)
	if err != nil {
		return nil, err
	}
	return &EntityExtractor{
		roles:         lex.Roles,
		amounts:       lex.AmountMatchers,
		propertyTypes: propertyTypes,
		locations:     locations,
		services:      services,
	}, nil
}

func compileKeywords(values []string) ([]keywordMatcher, error) {
	matchers := make([]keywordMatcher, 0, len(values))
	for _, value := range values {
		re, err := regexp.Compile(config.WordBounded(regexp.QuoteMeta(strings.ToLower(value))))
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, keywordMatcher{value: value, re: re})
	}
	return matchers, nil
}

// Extract returns every entity found in lowered text
func (e *EntityExtractor) Extract(lowered string) map[string]string {
	entities := make(map[string]string)

	if role := e.findRole(lowered); role != "" {
		entities[pkg.EntityRole] = string(role)
	}
	for _, re := range e.amounts {
		if match := re.FindString(lowered); match != "" {
			entities[pkg.EntityAmount] = strings.TrimSpace(match)
			break
		}
	}
	if value := earliest(lowered, e.propertyTypes); value != "" {
		entities[pkg.EntityPropertyType] = value
	}
	if value := earliest(lowered, e.locations); value != "" {
		entities[pkg.EntityLocation] = value
	}
	if value := earliest(lowered, e.services); value != "" {
		entities[pkg.EntityService] = value
	}

	return entities
}

// findRole returns the first role mentioned, by position in the text
func (e *EntityExtractor) findRole(lowered string) pkg.Role {
	var found pkg.Role
	bestPos := -1
	for _, mention := range e.roles {
		for _, re := range mention.Matchers {
			loc := re.FindStringSubmatchIndex(lowered)
			if loc == nil {
				continue
			}
			if bestPos == -1 || loc[2] < bestPos {
				bestPos = loc[2]
				found = mention.Role
			}
		}
	}
	return found
}

// earliest returns the value of the keyword found first in the text.
// Ties keep table order.
func earliest(lowered string, matchers []keywordMatcher) string {
	value := ""
	bestPos := -1
	for _, m := range matchers {
		loc := m.re.FindStringSubmatchIndex(lowered)
		if loc == nil {
			continue
		}
		if bestPos == -1 || loc[2] < bestPos {
			bestPos = loc[2]
			value = m.value
		}
	}
	return value
}
