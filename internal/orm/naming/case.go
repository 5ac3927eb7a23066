// Package naming converts between the names used by resources, Go accessors
// and database tables.
package naming

import (
	"fmt"
	"strings"
	"unicode"
)

// ToAccessorName joins the words of name (split on delimiter) into an
// accessor name: every word starts with an upper-case letter and the
// delimiters are dropped. With capitalizeFirst false the first character of
// the result is lower-cased instead.
//
//	ToAccessorName("foo_bar", true, '_')  // "FooBar"
//	ToAccessorName("foo_bar", false, '_') // "fooBar"
//	ToAccessorName("a-b", true, '-')      // "AB"
//
// Panics if name is empty.
func ToAccessorName(name string, capitalizeFirst bool, delimiter rune) string {
	if name == "" {
		panic("naming: accessor name must not be empty")
	}

	var result strings.Builder
	for _, word := range strings.Split(name, string(delimiter)) {
		if word == "" {
			continue
		}
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		result.WriteString(string(runes))
	}

	out := []rune(result.String())
	if len(out) == 0 {
		panic(fmt.Sprintf("naming: %q has no words between delimiters", name))
	}
	if !capitalizeFirst {
		out[0] = unicode.ToLower(out[0])
	}
	return string(out)
}

// ToSnakeCase converts CamelCase to snake_case
// Handles acronyms properly (HTTPRequest -> http_request)
func ToSnakeCase(s string) string {
	var result strings.Builder
	runes := []rune(s)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				if unicode.IsLower(prev) || unicode.IsDigit(prev) {
					result.WriteRune('_')
				} else if i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
					result.WriteRune('_')
				}
			}
			result.WriteRune(unicode.ToLower(r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Pluralize adds simple English pluralization
func Pluralize(s string) string {
	switch {
	case strings.HasSuffix(s, "s"), strings.HasSuffix(s, "x"), strings.HasSuffix(s, "z"),
		strings.HasSuffix(s, "ch"), strings.HasSuffix(s, "sh"):
		return s + "es"
	case strings.HasSuffix(s, "y") && len(s) > 1 && !isVowel(rune(s[len(s)-2])):
		return s[:len(s)-1] + "ies"
	default:
		return s + "s"
	}
}

// TableName converts an entity type name to a table name (snake_case plural)
func TableName(entityName string) string {
	return Pluralize(ToSnakeCase(entityName))
}

func isVowel(r rune) bool {
	return strings.ContainsRune("aeiou", unicode.ToLower(r))
}
