package textnorm

import "testing"

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Région":             "region",
		"PRÉAMBULE":          "preambule",
		"Nature du Document": "nature du document",
		"définitif":          "definitif",
		"":                   "",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Errorf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestContainsFold(t *testing.T) {
	if !ContainsFold("Rapport DÉFINITIF", "definitif") {
		t.Error("expected match")
	}
	if ContainsFold("Rabat", "Agadir") {
		t.Error("unexpected match")
	}
}
