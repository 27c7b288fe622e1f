package guardrail

import (
	"strings"
	"unicode"
)

// minFunctionWordScore is the number of common function-word hits a
// Latin-script candidate language needs before it overrides the English
// default. Calibration knob, not derived from anything formal.
const minFunctionWordScore = 3

// functionWords lists a handful of high-frequency, low-ambiguity words per
// Latin-script language. Deliberately small: this is a fast override check,
// not a classifier.
var functionWords = map[string][]string{
	"es": {"el", "la", "de", "que", "y", "en", "los", "se", "para", "con"},
	"fr": {"le", "la", "de", "et", "les", "des", "pour", "dans", "vous", "une"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "mit", "sie", "ein", "zu"},
	"it": {"il", "la", "di", "che", "e", "per", "non", "con", "gli", "una"},
	"pt": {"o", "a", "de", "que", "e", "para", "com", "um", "uma", "não"},
}

// detectLanguage picks a language code from raw text. Script detection
// (Japanese kana, CJK ideographs, Arabic script) takes priority; Latin
// script falls through to a function-word scoring pass; anything below
// threshold defaults to English.
func detectLanguage(text string) string {
	hasKana := false
	hasHan := false
	hasArabic := false

	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			hasKana = true
		case unicode.In(r, unicode.Han):
			hasHan = true
		case unicode.In(r, unicode.Arabic):
			hasArabic = true
		}
	}

	switch {
	case hasKana:
		return "ja"
	case hasHan:
		return "zh"
	case hasArabic:
		return "fa"
	}

	best := "en"
	bestScore := 0
	lower := toLowerWords(text)

	for lang, words := range functionWords {
		score := 0
		for _, w := range words {
			if lower[w] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = lang
		}
	}

	if bestScore < minFunctionWordScore {
		return "en"
	}
	return best
}

func toLowerWords(text string) map[string]bool {
	out := make(map[string]bool)
	word := make([]rune, 0, 16)
	flush := func() {
		if len(word) > 0 {
			out[strings.ToLower(string(word))] = true
			word = word[:0]
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) {
			word = append(word, r)
		} else {
			flush()
		}
	}
	flush()
	return out
}
