// Package hantext classifies codepoints of mixed Han/Latin text and
// normalizes pinyin strings. Every piece of pinyin that enters the
// system (dictionary entries, override replacements, advisory
// recommendations) goes through Normalize so that downstream equality
// checks compare like with like.
package hantext

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// IsHan reports whether r is a CJK ideograph.
// Covers the unified block, extensions A–F, and compatibility ideographs.
func IsHan(r rune) bool {
	switch {
	case r >= 0x3400 && r <= 0x4DBF:
		return true
	case r >= 0x4E00 && r <= 0x9FFF:
		return true
	case r >= 0xF900 && r <= 0xFAFF:
		return true
	case r >= 0x20000 && r <= 0x2A6DF:
		return true
	case r >= 0x2A700 && r <= 0x2B73F:
		return true
	case r >= 0x2B740 && r <= 0x2B81F:
		return true
	case r >= 0x2B820 && r <= 0x2CEAF:
		return true
	case r >= 0x2CEB0 && r <= 0x2EBEF:
		return true
	}
	return false
}

// IsHanString reports whether s is non-empty and consists only of Han
// ideographs. Dictionary keys must satisfy this.
func IsHanString(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !IsHan(r) {
			return false
		}
	}
	return true
}

// IsSpace reports whether r is whitespace.
func IsSpace(r rune) bool {
	return unicode.IsSpace(r)
}

// IsASCIILetter reports whether r is an ASCII letter.
func IsASCIILetter(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

// IsASCIIDigit reports whether r is an ASCII digit.
func IsASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// IsPunctOrSymbol reports whether r belongs to a Unicode punctuation
// or symbol category.
func IsPunctOrSymbol(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

var pinyinReplacer = strings.NewReplacer(
	"ɡ", "g", // IPA "ɡ" used by some datasets
	"v", "ü",
	"V", "Ü",
)

// Normalize canonicalizes a pinyin string: IPA ɡ becomes ASCII g,
// v/V become ü/Ü, and the result is NFC so tone-marked vowels compare
// equal regardless of whether the source was precomposed.
func Normalize(pinyin string) string {
	return norm.NFC.String(pinyinReplacer.Replace(pinyin))
}

// NormalizeWord canonicalizes a whole-word pinyin entry and removes the
// syllable separator spaces, keeping tone marks.
func NormalizeWord(pinyin string) string {
	return Normalize(strings.ReplaceAll(pinyin, " ", ""))
}
