package bridge

import "strings"

// prepareReplacer cleans reply text for speech synthesis: markdown noise
// goes away, currency and abbreviations are spoken naturally, and Indian
// number words are normalized.
var prepareReplacer = strings.NewReplacer(
	"**", "",
	"*", "",
	"#", "",
	"`", "",
	"• ", "... ",
	"- ", "... ",
	"₹", "rupees ",
	"p.a.", "per annum",
	"i.e.", "that is",
	"e.g.", "for example",
	" lakhs", " lakh",
	" crores", " crore",
)

// PrepareText makes a synthesis span sound natural when spoken.
func PrepareText(text string) string {
	text = prepareReplacer.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}
