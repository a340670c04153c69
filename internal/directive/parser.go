// Package directive parses routing directives embedded in message text.
//
// A directive is a bracketed marker naming one or more addressees:
//
//	Looks good to me. [NEXT: sarah]
//	Please split this up. [NEXT: sarah:p1, bob]
//
// Each addressee may carry an intent suffix (:p1/:p2/:p3) selecting its
// priority class; P2_REPLY is the default. An addressee segment containing a
// raw comma is malformed and dropped without aborting the rest of the parse.
package directive

import (
	"regexp"
	"strings"

	"github.com/dkessler/parley/pkg/models"
)

// Addressee is one parsed addressee token, before team resolution.
type Addressee struct {
	// Name is the addressee identifier as written, minus any intent suffix.
	Name string
	// Intent is the requested priority class.
	Intent models.Intent
}

// Result is the outcome of parsing a message's text.
type Result struct {
	// Addressees lists the well-formed addressee tokens in order.
	Addressees []Addressee
	// Raw holds the directive strings exactly as they appeared.
	Raw []string
	// CleanContent is the text with directive markers removed.
	CleanContent string
}

var (
	directiveRe = regexp.MustCompile(`\[\s*(?i:next)\s*:\s*([^\]]*)\]`)
	intentRe    = regexp.MustCompile(`^(?i)p([123])$`)
	spaceRe     = regexp.MustCompile(`[ \t]{2,}`)
)

// Parse extracts routing directives from text. Text without directives comes
// back unmodified with an empty addressee list.
func Parse(text string) Result {
	matches := directiveRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return Result{CleanContent: text}
	}

	var res Result
	for _, m := range matches {
		res.Raw = append(res.Raw, text[m[0]:m[1]])
		list := text[m[2]:m[3]]
		res.Addressees = append(res.Addressees, parseList(list)...)
	}

	res.CleanContent = stripDirectives(text)
	return res
}

// parseList splits a comma-separated addressee list. Entries are separated
// by a comma followed by whitespace; an entry containing a raw comma is
// malformed and skipped rather than partially matched.
func parseList(list string) []Addressee {
	var out []Addressee
	for _, entry := range splitEntries(list) {
		entry = strings.TrimSpace(entry)
		if entry == "" || strings.Contains(entry, ",") {
			continue
		}
		out = append(out, parseEntry(entry))
	}
	return out
}

// splitEntries splits on ", " boundaries only, so a bare comma stays inside
// its entry and marks it malformed.
func splitEntries(list string) []string {
	var entries []string
	start := 0
	for i := 0; i < len(list)-1; i++ {
		if list[i] == ',' && (list[i+1] == ' ' || list[i+1] == '\t') {
			entries = append(entries, list[start:i])
			start = i + 1
		}
	}
	entries = append(entries, list[start:])
	return entries
}

// parseEntry splits an optional trailing intent suffix off an addressee.
func parseEntry(entry string) Addressee {
	if idx := strings.LastIndex(entry, ":"); idx >= 0 {
		suffix := strings.TrimSpace(entry[idx+1:])
		if m := intentRe.FindStringSubmatch(suffix); m != nil {
			name := strings.TrimSpace(entry[:idx])
			var intent models.Intent
			switch m[1] {
			case "1":
				intent = models.IntentInterrupt
			case "2":
				intent = models.IntentReply
			default:
				intent = models.IntentExtend
			}
			return Addressee{Name: name, Intent: intent}
		}
	}
	return Addressee{Name: entry, Intent: models.IntentReply}
}

// stripDirectives removes directive markers and tidies the leftover spacing.
func stripDirectives(text string) string {
	clean := directiveRe.ReplaceAllString(text, "")
	clean = spaceRe.ReplaceAllString(clean, " ")

	lines := strings.Split(clean, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
