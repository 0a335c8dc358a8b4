package extract

import (
	"regexp"
	"strings"

	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/textnorm"
)

// PreambleKeywords mark the page where the descriptive part of a document
// starts. They are matched on folded text.
var PreambleKeywords = []string{"préambule", "preambule", "introduction", "objectifs"}

// MaxPreamblePages bounds the preamble search.
const MaxPreamblePages = 20

var (
	tocNumber   = regexp.MustCompile(`\d{1,4}\s*$`)
	tocLeaders  = regexp.MustCompile(`\.{3,}`)
	spaceRun    = regexp.MustCompile(`[ \t]+`)
	keywordExpr = keywordPattern(PreambleKeywords)
)

func keywordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(textnorm.Fold(w))
	}
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)
}

// isTOCLine reports whether line looks like a table-of-contents entry:
// dot leaders and a trailing page number.
func isTOCLine(line string) bool {
	clean := strings.TrimSpace(spaceRun.ReplaceAllString(strings.ReplaceAll(line, "\u00a0", " "), " "))
	return tocNumber.MatchString(clean) && tocLeaders.MatchString(clean)
}

// isTOCPage reports whether text is a table of contents.
func isTOCPage(text string) bool {
	if strings.Contains(textnorm.Fold(text), "sommaire") {
		return true
	}
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" && isTOCLine(line) {
			n++
		}
	}
	return n >= 2
}

// preamblePage returns the index of the first non-TOC page among the first
// MaxPreamblePages containing a preamble keyword, or 0.
func preamblePage(pages []models.Page) int {
	for i, p := range pages {
		if i >= MaxPreamblePages {
			break
		}
		if strings.TrimSpace(p.Text) == "" || isTOCPage(p.Text) {
			continue
		}
		if keywordExpr.MatchString(textnorm.Fold(p.Text)) {
			return i
		}
	}
	return 0
}

// afterPreamble returns text from the first keyword occurrence that is not
// on a TOC line, with the last non-empty line (usually a footer) removed.
// When no keyword qualifies the whole text is used.
func afterPreamble(text string) string {
	extracted := text
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		folded := textnorm.Fold(line)
		if loc := keywordExpr.FindStringIndex(folded); loc != nil && !isTOCLine(line) {
			extracted = text[offset+foldedOffset(line, loc[0]):]
			break
		}
		offset += len(line)
	}
	return stripLastLine(extracted)
}

// foldedOffset maps a byte offset in Fold(line) back to line. Folding drops
// combining marks and lowercases, so offsets are recovered by re-folding
// growing prefixes of line.
func foldedOffset(line string, folded int) int {
	for i := range line {
		if len(textnorm.Fold(line[:i])) >= folded {
			return i
		}
	}
	return 0
}

func stripLastLine(text string) string {
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
