package agent

import (
	"strings"
	"time"
	"unicode"
)

// Verb stems for "delete" in English and Russian. Matching is by prefix so
// inflected forms (deleting, удалите, убери) are caught. "clear" is not a
// stem: "clear all the dishes" is a chore.
var deleteStems = []string{
	"delet", "remov", "eras", "wipe",
	"удал", "убер", "убра", "стере", "стери", "сотри",
}

var everythingWords = map[string]bool{
	"all": true, "everything": true,
	"все": true, "весь": true, "всех": true, "вся": true,
}

// quantifierReach is how many tokens may sit between the verb and the
// quantifier, on either side.
const quantifierReach = 3

// DeleteAllIntent reports whether the utterance asks to delete every task: a
// deletion verb with an "everything" quantifier close to it.
func DeleteAllIntent(utterance string) bool {
	tokens := tokenize(utterance)
	for i, token := range tokens {
		if !isDeleteVerb(token) {
			continue
		}
		lo, hi := max(0, i-quantifierReach), min(len(tokens)-1, i+quantifierReach)
		for j := lo; j <= hi; j++ {
			if everythingWords[tokens[j]] {
				return true
			}
		}
	}
	return false
}

func isDeleteVerb(token string) bool {
	for _, stem := range deleteStems {
		if strings.HasPrefix(token, stem) {
			return true
		}
	}
	return false
}

// RelativeDay finds the first relative day mention ("today", "завтра", ...)
// and returns its offset in days from today.
func RelativeDay(utterance string) (int, bool) {
	tokens := tokenize(utterance)
	for i, token := range tokens {
		switch {
		case strings.HasPrefix(token, "послезавтра"):
			return 2, true
		case token == "day" && i+2 < len(tokens) && tokens[i+1] == "after" && tokens[i+2] == "tomorrow":
			return 2, true
		case token == "today" || token == "tonight" || strings.HasPrefix(token, "сегодня"):
			return 0, true
		case token == "tomorrow" || strings.HasPrefix(token, "завтра"):
			return 1, true
		}
	}
	return 0, false
}

// DefaultStart is the start time implied by a relative day mention: that day
// at hour o'clock in loc.
func DefaultStart(utterance string, now time.Time, loc *time.Location, hour int) (time.Time, bool) {
	offset, ok := RelativeDay(utterance)
	if !ok {
		return time.Time{}, false
	}
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day()+offset, hour, 0, 0, 0, loc)
	return day, true
}

func tokenize(text string) []string {
	text = strings.ReplaceAll(strings.ToLower(text), "ё", "е")
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
