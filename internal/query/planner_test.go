package query

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/dossier/internal/metastore"
	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/testutil"
)

type fixedExtractor struct {
	md  models.QueryMetadata
	err error
}

func (f fixedExtractor) Extract(context.Context, string) (models.QueryMetadata, error) {
	return f.md, f.err
}

func ptr(s string) *string { return &s }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func seededStore(t *testing.T) *metastore.Store {
	t.Helper()
	ctx := context.Background()
	s := metastore.New(testutil.TestDB(t), discard())
	_, err := s.Put(ctx, "adi.pdf", map[string]string{"societe": "ADI", "region": "Rabat"})
	require.NoError(t, err)
	_, err = s.Put(ctx, "novec.pdf", map[string]string{"societe": "NOVEC", "region": "Agadir"})
	require.NoError(t, err)
	return s
}

func TestPlanORFilter(t *testing.T) {
	p := NewPlanner(fixedExtractor{md: models.QueryMetadata{Region: ptr("Rabat")}}, seededStore(t), discard())
	plan := p.Plan(context.Background(), "Quel est le délai à rabat ?")
	assert.Equal(t, []string{"adi.pdf"}, plan.Filenames)
	assert.Equal(t, "Quel est le délai à  ?", plan.Search)
}

func TestPlanStripsEveryValue(t *testing.T) {
	md := models.QueryMetadata{Societe: ptr("ADI"), Version: ptr("définitif")}
	p := NewPlanner(fixedExtractor{md: md}, seededStore(t), discard())
	plan := p.Plan(context.Background(), "Rapport Définitif d'adi")
	assert.Equal(t, []string{"adi.pdf"}, plan.Filenames)
	assert.Equal(t, "Rapport  d'", plan.Search)
}

func TestPlanNoMetadataSearchesEverything(t *testing.T) {
	p := NewPlanner(fixedExtractor{}, seededStore(t), discard())
	plan := p.Plan(context.Background(), "  délai d'exécution  ")
	assert.Empty(t, plan.Filenames)
	assert.Equal(t, "  délai d'exécution  ", plan.Search)
	assert.True(t, plan.Metadata.Empty())
}

func TestPlanExtractionFailureIsUnfiltered(t *testing.T) {
	p := NewPlanner(fixedExtractor{md: models.QueryMetadata{Societe: ptr("ADI")}, err: errors.New("down")}, seededStore(t), discard())
	plan := p.Plan(context.Background(), "ADI")
	assert.Empty(t, plan.Filenames)
	assert.Equal(t, "ADI", plan.Search)
}

func TestPlanNoMatchFallsBackToWholeIndex(t *testing.T) {
	p := NewPlanner(fixedExtractor{md: models.QueryMetadata{Region: ptr("Casablanca")}}, seededStore(t), discard())
	plan := p.Plan(context.Background(), "travaux à Casablanca")
	assert.Empty(t, plan.Filenames)
	assert.Equal(t, "travaux à", plan.Search)
}

func TestStripQuotesRegexp(t *testing.T) {
	assert.Equal(t, "marché n°", Strip("marché n° 1208/E/DPL/2008 (a+b)", []string{"1208/E/DPL/2008", "(A+B)"}))
}
