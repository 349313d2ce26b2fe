package segment

// FMM implements Forward Maximum Matching against the combined word
// dictionary. At each position it tries the longest dictionary word
// starting there, bounded by the longest known word sharing the first
// character, and falls back to a single-character token.
type FMM struct {
	words         map[string]string
	maxLenByFirst map[rune]int // rune lengths
}

// NewFMM builds the matcher. words maps dictionary words to their
// pinyin; only the key set matters here.
func NewFMM(words map[string]string) *FMM {
	byFirst := make(map[rune]int)
	for w := range words {
		runes := []rune(w)
		if len(runes) == 0 {
			continue
		}
		if len(runes) > byFirst[runes[0]] {
			byFirst[runes[0]] = len(runes)
		}
	}
	return &FMM{words: words, maxLenByFirst: byFirst}
}

// Segment splits text into dictionary words and single characters.
// The concatenation of the returned pieces equals text.
func (f *FMM) Segment(text string) []string {
	runes := []rune(text)
	var out []string
	i := 0
	for i < len(runes) {
		maxLen := f.maxLenByFirst[runes[i]]
		if maxLen == 0 {
			maxLen = 1
		}
		if remaining := len(runes) - i; maxLen > remaining {
			maxLen = remaining
		}
		matched := 0
		for length := maxLen; length >= 1; length-- {
			if _, ok := f.words[string(runes[i:i+length])]; ok {
				matched = length
				break
			}
		}
		if matched == 0 {
			out = append(out, string(runes[i]))
			i++
			continue
		}
		out = append(out, string(runes[i:i+matched]))
		i += matched
	}
	return out
}
