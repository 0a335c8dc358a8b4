// Package extract pulls structured fields out of document and query text
// with the generation model. Extraction is best effort: callers get an
// empty result alongside an error wrapping apperr.ErrExtraction and carry on.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/llm"
	"github.com/starford/dossier/internal/metastore"
	"github.com/starford/dossier/internal/models"
)

// maxPromptRunes caps the document excerpt sent to the model.
const maxPromptRunes = 4000

const documentPrompt = `Tu es un assistant intelligent chargé d'analyser un document administratif, technique ou institutionnel, même si le texte contient du bruit, des répétitions ou des incohérences.

Voici le contenu du document :
"""%s"""

Lis attentivement ce texte et extrais uniquement les informations suivantes, si elles sont présentes :

- Marché : numéro ou référence du marché. Format attendu : ` + "`marche : [référence]`" + `
- Nature du document : type du document (ex. : note de synthèse, rapport, contrat). Format attendu : ` + "`nature du document : [type]`" + `
- Région : région ou ville concernée. Format attendu : ` + "`region : [nom]`" + `
- Société : entreprise ou organisation. Format attendu : ` + "`societe : [nom]`" + `
- Version : version du document (ex. : définitif, provisoire). Format attendu : ` + "`version : [version]`" + `

Consignes :
- Une seule ligne par champ.
- Pas de reformulation, copie exactement.
- Si absent, mets ` + "`Non trouvé`" + `.

Réponds uniquement avec ces lignes formatées :
marche : ...
nature du document : ...
region : ...
societe : ...
version : ...
`

// Document extracts per-file metadata records.
type Document struct {
	gen llm.Generator
}

// NewDocument returns a document extractor backed by gen.
func NewDocument(gen llm.Generator) *Document {
	return &Document{gen: gen}
}

// Extract locates the preamble page, sends its text to the model and keeps
// the allowed keys of the "key : value" lines it answers with.
func (d *Document) Extract(ctx context.Context, pages []models.Page) (map[string]string, error) {
	if len(pages) == 0 {
		return map[string]string{}, nil
	}
	text := afterPreamble(pages[preamblePage(pages)].Text)
	if strings.TrimSpace(text) == "" {
		return map[string]string{}, nil
	}
	answer, err := d.gen.Complete(ctx, fmt.Sprintf(documentPrompt, truncateRunes(text, maxPromptRunes)))
	if err != nil {
		return map[string]string{}, fmt.Errorf("extract: document: %w: %w", apperr.ErrExtraction, err)
	}
	return metastore.Filter(parseLines(answer)), nil
}

// parseLines reads "key : value" lines. Markdown emphasis around keys is
// dropped; later duplicates win.
func parseLines(answer string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(answer, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.Trim(strings.TrimSpace(key), "*-` ")
		if key == "" {
			continue
		}
		out[strings.ToLower(key)] = strings.Trim(strings.TrimSpace(value), "`")
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

const queryPrompt = `Analyse cette question et extrait les informations pertinentes EXACTEMENT telles qu'elles apparaissent dans la question,
sans interprétation, généralisation ou remplacement, sous forme de clés-valeurs.

Question : "%s"

Cherche exclusivement ces informations (si présentes) :
- marche : numéro ou référence de marché (ex: 1235/E/DPL/2018)
- region : nom exact de région ou ville mentionné dans la question (ex: Agadir, Rabat)
- societe : nom exact d'entreprise ou organisation (ex: ADI, NOVEC)
- version : version exacte du document (ex: définitif, provisoire)

Réponds UNIQUEMENT au format JSON suivant (mets null si information absente) :
{
    "marche": "valeur ou null",
    "region": "valeur ou null",
    "societe": "valeur ou null",
    "version": "valeur ou null"
}

Ne complète pas les informations manquantes et ne modifie pas les valeurs extraites.

Exemples :
Pour la question "Donne-moi les documents du marché 1208/E/DPL/2008 à Agadir",
la réponse serait :
{
    "marche": "1208/E/DPL/2008",
    "region": "Agadir",
    "societe": null,
    "version": null
}

Pour la question "Je cherche les rapports définitifs d'ADI",
la réponse serait :
{
    "marche": null,
    "region": null,
    "societe": "ADI",
    "version": "définitif"
}
`

// Query extracts QueryMetadata from a question.
type Query struct {
	gen llm.Generator
}

// NewQuery returns a query extractor backed by gen.
func NewQuery(gen llm.Generator) *Query {
	return &Query{gen: gen}
}

// Extract asks the model for the four query fields. Any failure yields
// all-null metadata and an error wrapping apperr.ErrExtraction.
func (q *Query) Extract(ctx context.Context, question string) (models.QueryMetadata, error) {
	answer, err := q.gen.Complete(ctx, fmt.Sprintf(queryPrompt, question))
	if err != nil {
		return models.QueryMetadata{}, fmt.Errorf("extract: query: %w: %w", apperr.ErrExtraction, err)
	}
	return parseQueryJSON(question, answer)
}

// parseQueryJSON decodes the object between the first '{' and the last '}'.
// Non-string values, empty strings and the literal "null" count as absent,
// and so does any value that does not occur in the question, ignoring case.
func parseQueryJSON(question, answer string) (models.QueryMetadata, error) {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end < start {
		return models.QueryMetadata{}, fmt.Errorf("extract: query: no json object: %w", apperr.ErrExtraction)
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(answer[start:end+1]), &raw); err != nil {
		return models.QueryMetadata{}, fmt.Errorf("extract: query: %w: %w", apperr.ErrExtraction, err)
	}
	lower := strings.ToLower(question)
	return models.QueryMetadata{
		Marche:  field(raw, "marche", lower),
		Region:  field(raw, "region", lower),
		Societe: field(raw, "societe", lower),
		Version: field(raw, "version", lower),
	}, nil
}

func field(raw map[string]any, key, question string) *string {
	s, ok := raw[key].(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	if !strings.Contains(question, strings.ToLower(s)) {
		return nil
	}
	return &s
}
