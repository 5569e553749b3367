package state

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moviesearch/movies-etl/pkg/content"
)

func newFileState(t *testing.T) (*State, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	return New(NewJSONFileStorage(path)), path
}

func TestJSONFileStorage_MissingFileIsEmptyState(t *testing.T) {
	s := NewJSONFileStorage(filepath.Join(t.TempDir(), "nope", "state.json"))

	st, err := s.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st)
}

func TestJSONFileStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"film_work_last_update": `), 0o644))

	_, err := NewJSONFileStorage(path).Retrieve(context.Background())
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestJSONFileStorage_SaveReplacesWholeFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewJSONFileStorage(path)

	require.NoError(t, s.Save(ctx, map[string]any{"a": "1", "b": true}))
	require.NoError(t, s.Save(ctx, map[string]any{"a": "2"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]any{"a": "2"}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestState_SetKeepsOtherKeys(t *testing.T) {
	ctx := context.Background()
	st, path := newFileState(t)

	require.NoError(t, st.Set(ctx, "index_created_movies", true))
	require.NoError(t, st.Set(ctx, "film_work_last_update", "2024-01-01T00:00:00Z"))

	v, ok, err := st.Get(ctx, "index_created_movies")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, true, v)

	_, ok, err = st.Get(ctx, "genre_last_update")
	require.NoError(t, err)
	assert.False(t, ok)

	// a fresh State over the same file sees everything
	again := New(NewJSONFileStorage(path))
	all, err := again.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestState_WatermarkRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, _ := newFileState(t)

	wm, err := st.Watermark(ctx, content.FilmWork)
	require.NoError(t, err)
	assert.True(t, wm.IsZero())

	want := content.Watermark{
		UpdatedAt: time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.UTC),
		LastID:    uuid.MustParse("6b1a4f4e-5a0e-4c44-9d2a-000000000002"),
	}
	require.NoError(t, st.SetWatermark(ctx, content.FilmWork, want))

	got, err := st.Watermark(ctx, content.FilmWork)
	require.NoError(t, err)
	assert.True(t, got.Equal(want), "got %+v want %+v", got, want)

	raw, ok, err := st.Get(ctx, WatermarkKey(content.FilmWork))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-05-06T07:08:09.123456Z", raw)

	raw, ok, err = st.Get(ctx, LastIDKey(content.FilmWork))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "6b1a4f4e-5a0e-4c44-9d2a-000000000002", raw)

	other, err := st.Watermark(ctx, content.Genre)
	require.NoError(t, err)
	assert.True(t, other.IsZero())
}

func TestState_WatermarkLegacyFormat(t *testing.T) {
	ctx := context.Background()
	st, _ := newFileState(t)

	require.NoError(t, st.Set(ctx, WatermarkKey(content.Person), "2021-06-16 20:14:09.310000"))

	wm, err := st.Watermark(ctx, content.Person)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 6, 16, 20, 14, 9, 310000000, time.UTC), wm.UpdatedAt)
	assert.Equal(t, uuid.Nil, wm.LastID)
}

func TestState_WatermarkRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	st, _ := newFileState(t)

	require.NoError(t, st.Set(ctx, WatermarkKey(content.Genre), "yesterday"))
	_, err := st.Watermark(ctx, content.Genre)
	assert.ErrorIs(t, err, ErrCorruptState)

	require.NoError(t, st.Set(ctx, WatermarkKey(content.Genre), 42))
	_, err = st.Watermark(ctx, content.Genre)
	assert.ErrorIs(t, err, ErrCorruptState)

	require.NoError(t, st.Set(ctx, WatermarkKey(content.Genre), "2024-01-01T00:00:00Z"))
	require.NoError(t, st.Set(ctx, LastIDKey(content.Genre), "not-a-uuid"))
	_, err = st.Watermark(ctx, content.Genre)
	assert.ErrorIs(t, err, ErrCorruptState)

	require.NoError(t, st.Set(ctx, LastIDKey(content.Genre), []any{"a", "b"}))
	_, err = st.Watermark(ctx, content.Genre)
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestState_IndexCreatedFlag(t *testing.T) {
	ctx := context.Background()
	st, _ := newFileState(t)

	created, err := st.IndexCreated(ctx, "movies")
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, st.MarkIndexCreated(ctx, "movies"))

	created, err = st.IndexCreated(ctx, "movies")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = st.IndexCreated(ctx, "genres")
	require.NoError(t, err)
	assert.False(t, created)
}

type failingStorage struct{}

func (failingStorage) Retrieve(context.Context) (map[string]any, error) {
	return nil, errors.New("disk gone")
}

func (failingStorage) Save(context.Context, map[string]any) error {
	return errors.New("disk gone")
}

func TestState_PropagatesStorageErrors(t *testing.T) {
	st := New(failingStorage{})

	_, err := st.Watermark(context.Background(), content.FilmWork)
	assert.Error(t, err)
	assert.Error(t, st.MarkIndexCreated(context.Background(), "movies"))
}
