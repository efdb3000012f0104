package chatctx

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/suPer8Hu/chatcore/internal/models"
	"golang.org/x/text/unicode/norm"
)

const (
	perMessageOverhead = 3
	perImageTokens     = 85
)

// EstimateText approximates a token count. CJK characters count one token
// each; other text blends word count and chars/4.
func EstimateText(s string) int {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return 0
	}

	var cjk int
	var rest strings.Builder
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			cjk++
			rest.WriteByte(' ')
			continue
		}
		rest.WriteRune(r)
	}

	other := rest.String()
	words := len(strings.Fields(other))
	chars := utf8.RuneCountInString(strings.TrimSpace(other))
	latin := (words + (chars+3)/4 + 1) / 2
	if latin == 0 && words > 0 {
		latin = 1
	}
	return cjk + latin
}

// EstimateInput estimates a draft that has not been sent yet.
func EstimateInput(text string) int {
	return EstimateText(text)
}

// EstimateMessages estimates an assembled context; display only.
func EstimateMessages(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead + EstimateText(m.Content)
		for _, f := range m.Files {
			if f.IsImage() {
				total += perImageTokens
			}
		}
	}
	return total
}
