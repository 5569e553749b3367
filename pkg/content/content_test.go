package content

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityType_IndexAndScheme(t *testing.T) {
	cases := map[EntityType][2]string{
		FilmWork: {"movies", "film_scheme"},
		Person:   {"persons", "person_scheme"},
		Genre:    {"genres", "genre_scheme"},
	}
	for e, want := range cases {
		assert.Equal(t, want[0], e.Index(), e)
		assert.Equal(t, want[1], e.Scheme(), e)
		assert.True(t, e.Valid())

		got, ok := EntityForIndex(want[0])
		require.True(t, ok)
		assert.Equal(t, e, got)
	}

	assert.False(t, EntityType("studio").Valid())
	_, ok := EntityForIndex("studios")
	assert.False(t, ok)
}

func TestIDSet_IgnoresNilAndSortsDeterministically(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000a")

	s := NewIDSet(a, uuid.Nil, b, a)
	require.Len(t, s, 2)
	assert.Equal(t, []uuid.UUID{b, a}, s.Sorted())

	other := NewIDSet(uuid.MustParse("00000000-0000-0000-0000-00000000000c"))
	s.Union(other)
	assert.Len(t, s, 3)
	assert.True(t, s.Contains(a))
}

func TestWatermark_EqualAndOrder(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 123000, time.UTC)
	low := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	high := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	w1 := Watermark{UpdatedAt: ts, LastID: low}
	w2 := Watermark{UpdatedAt: ts.In(time.FixedZone("x", 3600)), LastID: low}
	assert.True(t, w1.Equal(w2))
	assert.False(t, w1.Before(w2))

	sameTime := Watermark{UpdatedAt: ts, LastID: high}
	assert.False(t, w1.Equal(sameTime))
	assert.True(t, w1.Before(sameTime))
	assert.False(t, sameTime.Before(w1))

	later := Watermark{UpdatedAt: ts.Add(time.Microsecond), LastID: low}
	assert.True(t, sameTime.Before(later))

	assert.True(t, Watermark{}.IsZero())
	assert.False(t, Watermark{LastID: low}.IsZero())
	assert.True(t, Watermark{}.Before(w1))
}

func TestChangeSet_Targets(t *testing.T) {
	cs := NewChangeSet(Genre, Watermark{})
	assert.True(t, cs.Empty())
	assert.Empty(t, cs.Targets())

	cs.IDs[Genre].Add(uuid.New())
	cs.IDs[FilmWork].Add(uuid.New())
	assert.False(t, cs.Empty())
	assert.Equal(t, []EntityType{FilmWork, Genre}, cs.Targets())
}

func TestFilmDocument_Normalize(t *testing.T) {
	doc := &FilmDocument{
		ID: "f1",
		Genres: []NamedRef{
			{ID: "g2", Name: "Drama"},
			{ID: "g1", Name: "Action"},
			{ID: "g2", Name: "Drama"},
		},
		Director: []string{"Jane Doe", "Jane Doe"},
	}
	doc.Normalize()

	assert.Equal(t, []NamedRef{{ID: "g1", Name: "Action"}, {ID: "g2", Name: "Drama"}}, doc.Genres)
	assert.Equal(t, []string{"Jane Doe"}, doc.Director)
	assert.NotNil(t, doc.Actors)
	assert.Empty(t, doc.Actors)
	assert.NotNil(t, doc.WritersNames)
}

func TestPersonAndGenreDocument_Normalize(t *testing.T) {
	p := &PersonDocument{Films: []PersonFilm{
		{ID: "f2", Role: RoleActor, Title: "B"},
		{ID: "f1", Role: RoleWriter, Title: "A"},
		{ID: "f1", Role: RoleActor, Title: "A"},
		{ID: "f2", Role: RoleActor, Title: "B"},
		{},
	}}
	p.Normalize()
	assert.Equal(t, []PersonFilm{
		{ID: "f1", Role: RoleActor, Title: "A"},
		{ID: "f1", Role: RoleWriter, Title: "A"},
		{ID: "f2", Role: RoleActor, Title: "B"},
	}, p.Films)

	g := &GenreDocument{}
	g.Normalize()
	assert.NotNil(t, g.Films)
	assert.Empty(t, g.Films)
}
