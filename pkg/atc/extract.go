// Package atc derives structured ATC pharmacological codes from free-text
// source values. All functions are pure and total.
package atc

import (
	"regexp"
	"strings"
)

// CodeLength is the length of a full ATC classification code
// (1 letter, 2 digits, 2 letters, 2 digits).
const CodeLength = 7

// codePattern matches a full ATC code anchored at the start of the input.
var codePattern = regexp.MustCompile(`^([A-Z]\d{2}[A-Z]{2}\d{2})`)

// Extract returns the ATC code found at the very beginning of sourceValue,
// or an empty slice when none is present. The input is trimmed and
// uppercased before matching; at most one code is returned.
func Extract(sourceValue string) []string {
	if sourceValue == "" {
		return nil
	}

	cleaned := strings.ToUpper(strings.TrimSpace(sourceValue))
	match := codePattern.FindStringSubmatch(cleaned)
	if match == nil {
		return nil
	}
	return []string{match[1]}
}

// Normalize truncates a code to the full 7-character ATC form. Codes
// shorter than 7 characters are returned unchanged.
func Normalize(code string) string {
	if len(code) >= CodeLength {
		return code[:CodeLength]
	}
	return code
}

// NormalizeAll applies Normalize to every code in the slice.
func NormalizeAll(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = Normalize(c)
	}
	return out
}

// Valid reports whether code is a well-formed 7-character ATC code.
func Valid(code string) bool {
	return len(code) == CodeLength && codePattern.MatchString(code)
}
