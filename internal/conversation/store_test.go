package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/testutil"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), testutil.TestDB(t).SQL())
	require.NoError(t, err)
	return s
}

func str(s string) *string { return &s }

func yes() *bool {
	b := true
	return &b
}

func no() *bool {
	b := false
	return &b
}

func TestCreateDefaultsAndList(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	first, err := s.Create(ctx, models.Conversation{Name: "Premier"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, DefaultMode, first.Mode)

	_, err = s.Create(ctx, models.Conversation{ID: "c2", Name: "Second", Mode: "file", Messages: []models.Message{
		{ID: 1, Sender: "user", Text: str("bonjour")},
	}})
	require.NoError(t, err)

	_, err = s.Create(ctx, models.Conversation{ID: "c2"})
	assert.True(t, errors.Is(err, apperr.ErrAlreadyExists))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "c2", all[0].ID, "newest first")
	assert.Equal(t, "bonjour", *all[0].Messages[0].Text)
	assert.Empty(t, all[1].Messages)
}

func TestReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Create(ctx, models.Conversation{ID: "c", Name: "old", Messages: []models.Message{{ID: 1, Sender: "user"}}})
	require.NoError(t, err)

	_, err = s.Replace(ctx, "c", models.Conversation{Name: "new", Messages: []models.Message{{ID: 7, Sender: "bot"}}})
	require.NoError(t, err)
	got, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Name)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, int64(7), got.Messages[0].ID)

	_, err = s.Replace(ctx, "missing", models.Conversation{})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	require.NoError(t, s.Delete(ctx, "c"))
	assert.True(t, errors.Is(s.Delete(ctx, "c"), apperr.ErrNotFound))
	_, err = s.Get(ctx, "c")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestUpsertMessage(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Create(ctx, models.Conversation{ID: "c"})
	require.NoError(t, err)

	res, err := s.UpsertMessage(ctx, "c", models.MessageUpdate{ID: 1, Sender: str("user"), Text: str("question")})
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Status: "updated_or_added", MessageID: 1}, res)

	_, err = s.UpsertMessage(ctx, "c", models.MessageUpdate{ID: 2, Sender: str("bot"), IsLoading: yes()})
	require.NoError(t, err)

	// Patch keeps untouched fields.
	_, err = s.UpsertMessage(ctx, "c", models.MessageUpdate{ID: 1, Type: str("text")})
	require.NoError(t, err)

	got, err := s.Get(ctx, "c")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "question", *got.Messages[0].Text)
	assert.Equal(t, "text", *got.Messages[0].Type)
	assert.True(t, got.Messages[1].IsLoading)

	res, err = s.UpsertMessage(ctx, "c", models.MessageUpdate{ID: 1, Delete: true})
	require.NoError(t, err)
	assert.Equal(t, "deleted", res.Status)
	got, _ = s.Get(ctx, "c")
	require.Len(t, got.Messages, 1)

	_, err = s.UpsertMessage(ctx, "nope", models.MessageUpdate{ID: 1})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestPendingMessageAndSources(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Create(ctx, models.Conversation{ID: "c", Messages: []models.Message{
		{ID: 1, Sender: "bot", IsLoading: true},
		{ID: 2, Sender: "user"},
		{ID: 3, Sender: "bot", IsLoading: true},
	}})
	require.NoError(t, err)

	id, err := s.PendingBotMessage(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	sources := []models.Source{{Source: "a.pdf", Page: 2, ID: "/d/a.pdf:2:0", Score: 1.5, OriginalScore: 0.7}}
	require.NoError(t, s.SetSources(ctx, "c", id, sources))
	got, _ := s.Get(ctx, "c")
	assert.Equal(t, sources, got.Messages[2].Sources)

	_, err = s.UpsertMessage(ctx, "c", models.MessageUpdate{ID: 3, IsLoading: no()})
	require.NoError(t, err)
	_, err = s.UpsertMessage(ctx, "c", models.MessageUpdate{ID: 1, IsLoading: no()})
	require.NoError(t, err)
	_, err = s.PendingBotMessage(ctx, "c")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	assert.True(t, errors.Is(s.SetSources(ctx, "c", 99, nil), apperr.ErrNotFound))
}

func TestLastAttachedFile(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Create(ctx, models.Conversation{ID: "c", Messages: []models.Message{
		{ID: 1, Sender: "user", FileURL: str("http://localhost:8000/uploads/lot1/cps.pdf")},
		{ID: 2, Sender: "user", FileURL: str("uploads/rapport.docx")},
		{ID: 3, Sender: "bot", Text: str("ok")},
	}})
	require.NoError(t, err)

	name, err := s.LastAttachedFile(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "rapport.docx", name)

	_, err = s.Create(ctx, models.Conversation{ID: "empty"})
	require.NoError(t, err)
	_, err = s.LastAttachedFile(ctx, "empty")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
