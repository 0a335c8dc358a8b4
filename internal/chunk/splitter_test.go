package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/starford/dossier/internal/models"
)

// longText returns n distinct words separated by spaces, with a sentence
// break every ten words.
func longText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			if i%10 == 0 {
				b.WriteString(". ")
			} else {
				b.WriteString(" ")
			}
		}
		fmt.Fprintf(&b, "w%d", i)
	}
	return b.String()
}

func TestWordTokenizer(t *testing.T) {
	tok := WordTokenizer{}
	if n := tok.Count("Bonjour le monde"); n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
	if n := tok.Count("   \n\t"); n != 0 {
		t.Errorf("whitespace Count = %d, want 0", n)
	}
	if n := tok.Count("fin."); n != 2 {
		t.Errorf("punctuation Count = %d, want 2", n)
	}
}

func TestSplitText_ShortTextSingleChunk(t *testing.T) {
	s := NewSplitter()
	got := s.SplitText("  Une seule phrase courte.  ")
	if len(got) != 1 || got[0] != "Une seule phrase courte." {
		t.Fatalf("got %q", got)
	}
}

func TestSplitText_RespectsSize(t *testing.T) {
	s := NewSplitter(WithSize(50), WithOverlap(5))
	tok := WordTokenizer{}
	chunks := s.SplitText(longText(400))
	if len(chunks) < 8 {
		t.Fatalf("expected at least 8 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := tok.Count(c); n > 50 {
			t.Errorf("chunk %d has %d tokens", i, n)
		}
	}
}

func TestSplitText_Overlap(t *testing.T) {
	s := NewSplitter(WithSize(40), WithOverlap(15))
	chunks := s.SplitText(longText(200))
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	// The last word of a window reappears at the start of the next one.
	first := strings.Fields(chunks[0])
	last := strings.Trim(first[len(first)-1], ".")
	if !strings.Contains(chunks[1], last) {
		t.Errorf("no overlap between %q and %q", chunks[0], chunks[1])
	}
}

func TestSplitText_PrefersParagraphs(t *testing.T) {
	s := NewSplitter(WithSize(6), WithOverlap(0))
	text := "alpha beta gamma delta\n\nepsilon zeta eta theta\n\niota kappa lambda mu"
	got := s.SplitText(text)
	want := []string{"alpha beta gamma delta", "epsilon zeta eta theta", "iota kappa lambda mu"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitPages_ContiguousPerPage(t *testing.T) {
	s := NewSplitter(WithSize(30), WithOverlap(0))
	pages := []models.Page{
		{Source: "a.pdf", Number: 0, Text: longText(80)},
		{Source: "a.pdf", Number: 1, Text: longText(80)},
	}
	chunks := s.SplitPages(pages)
	seenPage1 := false
	for _, c := range chunks {
		if c.Page == 1 {
			seenPage1 = true
		}
		if seenPage1 && c.Page == 0 {
			t.Fatal("page 0 chunk after page 1 chunk")
		}
		if c.Source != "a.pdf" {
			t.Errorf("source = %q", c.Source)
		}
	}
}

func TestSplitKeep(t *testing.T) {
	got := splitKeep("a. b. c", ". ")
	want := []string{"a", ". b", ". c"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("splitKeep = %q, want %q", got, want)
	}
	if got := splitKeep("ab", ""); len(got) != 2 {
		t.Errorf("rune split = %q", got)
	}
}
