package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/testutil"
)

func TestIsTOCPage(t *testing.T) {
	assert.True(t, isTOCPage("SOMMAIRE\nRien d'autre"))
	assert.True(t, isTOCPage("1. Préambule ........ 3\n2. Objet ....... 4\n"))
	assert.False(t, isTOCPage("1. Préambule ........ 3\nLe présent marché"))
	assert.False(t, isTOCPage(""))
}

func TestPreamblePageSkipsTOC(t *testing.T) {
	pages := []models.Page{
		{Number: 0, Text: "Couverture"},
		{Number: 1, Text: "Sommaire\nPréambule ..... 3"},
		{Number: 2, Text: "Tableau\nPRÉAMBULE\nLe présent marché"},
	}
	assert.Equal(t, 2, preamblePage(pages))
	assert.Equal(t, 0, preamblePage(pages[:2]))
}

func TestAfterPreamble(t *testing.T) {
	text := "En-tête société\nPréambule ..... 3\nPRÉAMBULE : objet du marché\nRégion : Agadir\nPage 3 / 40\n\n"
	assert.Equal(t, "PRÉAMBULE : objet du marché\nRégion : Agadir", afterPreamble(text))

	// Without a keyword the whole text is kept, minus the footer line.
	assert.Equal(t, "a\nb", afterPreamble("a\nb\nfooter"))
}

func TestParseLines(t *testing.T) {
	got := parseLines("**Marché** : 1208/E/DPL/2008\nbruit sans deux-points\nRégion : `Agadir`\n")
	assert.Equal(t, map[string]string{"marché": "1208/E/DPL/2008", "région": "Agadir"}, got)
}

func TestDocumentExtract(t *testing.T) {
	gen := &testutil.Generator{Reply: "marche : 1208/E/DPL/2008\nRégion : Agadir\nSociété : Non trouvé\nobjet : étude"}
	d := NewDocument(gen)

	got, err := d.Extract(context.Background(), []models.Page{
		{Text: "Sommaire\nIntroduction ..... 2\nObjectifs ..... 3"},
		{Text: "Introduction\nLe marché 1208/E/DPL/2008 concerne Agadir.\npied de page"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"marche": "1208/E/DPL/2008", "region": "Agadir"}, got)

	prompts := gen.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Le marché 1208/E/DPL/2008 concerne Agadir.")
	assert.NotContains(t, prompts[0], "pied de page")
}

func TestDocumentExtractFailureIsEmpty(t *testing.T) {
	d := NewDocument(&testutil.Generator{Err: errors.New("connection refused")})
	got, err := d.Extract(context.Background(), []models.Page{{Text: "Préambule\nx\ny"}})
	assert.True(t, errors.Is(err, apperr.ErrExtraction))
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestQueryExtract(t *testing.T) {
	gen := &testutil.Generator{Reply: "Voici :\n{\"marche\": \"1208/E/DPL/2008\", \"region\": \"Agadir\", \"societe\": null, \"version\": \"null\"}\nFin."}
	q := NewQuery(gen)

	got, err := q.Extract(context.Background(), "documents du marché 1208/E/DPL/2008 à Agadir")
	require.NoError(t, err)
	require.NotNil(t, got.Marche)
	assert.Equal(t, "1208/E/DPL/2008", *got.Marche)
	assert.Equal(t, "Agadir", *got.Region)
	assert.Nil(t, got.Societe)
	assert.Nil(t, got.Version)
	assert.True(t, strings.Contains(gen.Prompts()[0], `Question : "documents du marché 1208/E/DPL/2008 à Agadir"`))
}

func TestQueryExtractDropsValuesAbsentFromQuestion(t *testing.T) {
	gen := &testutil.Generator{Reply: `{"marche": null, "region": "Casablanca", "societe": "adi", "version": null}`}

	got, err := NewQuery(gen).Extract(context.Background(), "les rapports de ADI")
	require.NoError(t, err)
	assert.Nil(t, got.Region, "region invented by the model")
	require.NotNil(t, got.Societe)
	assert.Equal(t, "adi", *got.Societe)
	assert.Equal(t, []string{"adi"}, got.Values())
}

func TestQueryExtractFailures(t *testing.T) {
	for name, gen := range map[string]*testutil.Generator{
		"unreachable": {Err: errors.New("dial tcp: refused")},
		"no json":     {Reply: "je ne sais pas"},
		"bad json":    {Reply: "{marche: 12}"},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := NewQuery(gen).Extract(context.Background(), "q")
			assert.True(t, errors.Is(err, apperr.ErrExtraction))
			assert.True(t, got.Empty())
		})
	}
}
