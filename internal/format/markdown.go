package format

import (
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseResult contains plain text and the Telegram entities describing its
// formatting.
type ParseResult struct {
	Text     string
	Entities []tgbotapi.MessageEntity
}

// UTF16Len calculates the UTF-16 length of a string. Telegram entity
// offsets and lengths are counted in UTF-16 code units.
func UTF16Len(s string) int {
	length := 0
	for _, b := range []byte(s) {
		if (b & 0xc0) != 0x80 {
			if b >= 0xf0 {
				length += 2 // non-BMP characters take a surrogate pair
			} else {
				length += 1
			}
		}
	}
	return length
}

var markupRe = regexp.MustCompile("\\*\\*(.+?)\\*\\*|`([^`]+)`")

// ParseMarkdown strips **bold** and `code` markup from text and returns the
// plain text plus the matching message entities.
func ParseMarkdown(text string) ParseResult {
	var entities []tgbotapi.MessageEntity
	var out strings.Builder

	last := 0
	for _, m := range markupRe.FindAllStringSubmatchIndex(text, -1) {
		out.WriteString(text[last:m[0]])

		var inner, entType string
		switch {
		case m[2] >= 0:
			inner = text[m[2]:m[3]]
			entType = "bold"
		default:
			inner = text[m[4]:m[5]]
			entType = "code"
		}

		entities = append(entities, tgbotapi.MessageEntity{
			Type:   entType,
			Offset: UTF16Len(out.String()),
			Length: UTF16Len(inner),
		})
		out.WriteString(inner)
		last = m[1]
	}
	out.WriteString(text[last:])

	return ParseResult{Text: out.String(), Entities: entities}
}
