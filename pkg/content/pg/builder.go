package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/moviesearch/movies-etl/pkg/content"
)

const filmDocumentsQuery = `
SELECT
	fw.id,
	fw.title,
	COALESCE(fw.description, '') AS description,
	fw.rating,
	COALESCE(jsonb_agg(DISTINCT jsonb_build_object('id', g.id, 'name', g.name))
		FILTER (WHERE g.id IS NOT NULL), '[]')::text AS genres,
	COALESCE(jsonb_agg(DISTINCT jsonb_build_object('id', p.id, 'name', p.full_name))
		FILTER (WHERE p.id IS NOT NULL AND pfw.role = ?), '[]')::text AS actors,
	COALESCE(jsonb_agg(DISTINCT jsonb_build_object('id', p.id, 'name', p.full_name))
		FILTER (WHERE p.id IS NOT NULL AND pfw.role = ?), '[]')::text AS writers,
	COALESCE(jsonb_agg(DISTINCT jsonb_build_object('id', p.id, 'name', p.full_name))
		FILTER (WHERE p.id IS NOT NULL AND pfw.role = ?), '[]')::text AS directors
FROM content.film_work AS fw
LEFT JOIN content.genre_film_work AS gfw ON gfw.film_work_id = fw.id
LEFT JOIN content.genre AS g ON g.id = gfw.genre_id
LEFT JOIN content.person_film_work AS pfw ON pfw.film_work_id = fw.id
LEFT JOIN content.person AS p ON p.id = pfw.person_id
WHERE fw.id IN (?)
GROUP BY fw.id
ORDER BY fw.id`

const personDocumentsQuery = `
SELECT
	p.id,
	p.full_name,
	to_char(p.birth_date, 'YYYY-MM-DD') AS birth_date,
	COALESCE(jsonb_agg(DISTINCT jsonb_build_object('id', fw.id, 'role', pfw.role, 'title', fw.title))
		FILTER (WHERE fw.id IS NOT NULL), '[]')::text AS films
FROM content.person AS p
LEFT JOIN content.person_film_work AS pfw ON pfw.person_id = p.id
LEFT JOIN content.film_work AS fw ON fw.id = pfw.film_work_id
WHERE p.id IN (?)
GROUP BY p.id
ORDER BY p.id`

const genreDocumentsQuery = `
SELECT
	g.id,
	g.name,
	COALESCE(g.description, '') AS description,
	COALESCE(jsonb_agg(DISTINCT jsonb_build_object('id', fw.id, 'title', fw.title))
		FILTER (WHERE fw.id IS NOT NULL), '[]')::text AS films
FROM content.genre AS g
LEFT JOIN content.genre_film_work AS gfw ON gfw.genre_id = g.id
LEFT JOIN content.film_work AS fw ON fw.id = gfw.film_work_id
WHERE g.id IN (?)
GROUP BY g.id
ORDER BY g.id`

type filmRow struct {
	ID          uuid.UUID `bun:"id"`
	Title       string    `bun:"title"`
	Description string    `bun:"description"`
	Rating      *float64  `bun:"rating"`
	Genres      string    `bun:"genres"`
	Actors      string    `bun:"actors"`
	Writers     string    `bun:"writers"`
	Directors   string    `bun:"directors"`
}

type personRow struct {
	ID        uuid.UUID `bun:"id"`
	FullName  string    `bun:"full_name"`
	BirthDate *string   `bun:"birth_date"`
	Films     string    `bun:"films"`
}

type genreRow struct {
	ID          uuid.UUID `bun:"id"`
	Name        string    `bun:"name"`
	Description string    `bun:"description"`
	Films       string    `bun:"films"`
}

// Builder assembles denormalized documents for a batch of ids.
type Builder struct {
	db *bun.DB
}

// NewBuilder creates a document builder over db.
func NewBuilder(db *bun.DB) *Builder {
	return &Builder{db: db}
}

// Build returns one document per id that still exists. Callers chunk ids to
// bound the size of a single query.
func (b *Builder) Build(ctx context.Context, entity content.EntityType, ids []uuid.UUID) ([]content.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in := bun.In(uuidStrings(ids))

	switch entity {
	case content.FilmWork:
		var rows []filmRow
		err := b.db.NewRaw(filmDocumentsQuery,
			string(content.RoleActor), string(content.RoleWriter), string(content.RoleDirector), in,
		).Scan(ctx, &rows)
		if err != nil {
			return nil, fmt.Errorf("failed to query film documents: %w", err)
		}
		return filmDocuments(rows)

	case content.Person:
		var rows []personRow
		if err := b.db.NewRaw(personDocumentsQuery, in).Scan(ctx, &rows); err != nil {
			return nil, fmt.Errorf("failed to query person documents: %w", err)
		}
		return personDocuments(rows)

	case content.Genre:
		var rows []genreRow
		if err := b.db.NewRaw(genreDocumentsQuery, in).Scan(ctx, &rows); err != nil {
			return nil, fmt.Errorf("failed to query genre documents: %w", err)
		}
		return genreDocuments(rows)

	default:
		return nil, fmt.Errorf("%w: %q", content.ErrUnknownEntity, entity)
	}
}

func filmDocuments(rows []filmRow) ([]content.Document, error) {
	docs := make([]content.Document, 0, len(rows))
	for _, row := range rows {
		doc := &content.FilmDocument{
			ID:          row.ID.String(),
			IMDBRating:  row.Rating,
			Title:       row.Title,
			Description: row.Description,
		}
		var directors []content.NamedRef
		for dst, raw := range map[*[]content.NamedRef]string{
			&doc.Genres:  row.Genres,
			&doc.Actors:  row.Actors,
			&doc.Writers: row.Writers,
			&directors:   row.Directors,
		} {
			if err := json.Unmarshal([]byte(raw), dst); err != nil {
				return nil, fmt.Errorf("failed to decode film %s: %w", row.ID, err)
			}
		}

		for _, d := range directors {
			doc.Director = append(doc.Director, d.Name)
		}
		for _, a := range doc.Actors {
			doc.ActorsNames = append(doc.ActorsNames, a.Name)
		}
		for _, w := range doc.Writers {
			doc.WritersNames = append(doc.WritersNames, w.Name)
		}
		doc.Normalize()

		names := make([]string, len(doc.Genres))
		for i, g := range doc.Genres {
			names[i] = g.Name
		}
		doc.Genre = strings.Join(names, " ")

		docs = append(docs, doc)
	}
	return docs, nil
}

func personDocuments(rows []personRow) ([]content.Document, error) {
	docs := make([]content.Document, 0, len(rows))
	for _, row := range rows {
		doc := &content.PersonDocument{
			ID:        row.ID.String(),
			FullName:  row.FullName,
			BirthDate: row.BirthDate,
		}
		if err := json.Unmarshal([]byte(row.Films), &doc.Films); err != nil {
			return nil, fmt.Errorf("failed to decode person %s: %w", row.ID, err)
		}
		doc.Normalize()
		docs = append(docs, doc)
	}
	return docs, nil
}

func genreDocuments(rows []genreRow) ([]content.Document, error) {
	docs := make([]content.Document, 0, len(rows))
	for _, row := range rows {
		doc := &content.GenreDocument{
			ID:          row.ID.String(),
			Name:        row.Name,
			Description: row.Description,
		}
		if err := json.Unmarshal([]byte(row.Films), &doc.Films); err != nil {
			return nil, fmt.Errorf("failed to decode genre %s: %w", row.ID, err)
		}
		doc.Normalize()
		docs = append(docs, doc)
	}
	return docs, nil
}
