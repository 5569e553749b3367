// Package pg reads changed entities and builds denormalized documents from
// the postgres content schema.
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/moviesearch/movies-etl/pkg/content"
)

// changeQuery describes how changes of one entity type fan out to the
// related film works, persons and genres.
type changeQuery struct {
	table   string
	alias   string
	columns []string
	joins   []string
}

var changeQueries = map[content.EntityType]changeQuery{
	content.FilmWork: {
		table: "content.film_work AS fw",
		alias: "fw",
		columns: []string{
			"fw.id AS source_id",
			"fw.id AS film_work_id",
			"pfw.person_id AS person_id",
			"gfw.genre_id AS genre_id",
			"fw.updated_at AS updated_at",
		},
		joins: []string{
			"LEFT JOIN content.person_film_work AS pfw ON pfw.film_work_id = fw.id",
			"LEFT JOIN content.genre_film_work AS gfw ON gfw.film_work_id = fw.id",
		},
	},
	content.Person: {
		table: "content.person AS p",
		alias: "p",
		columns: []string{
			"p.id AS source_id",
			"pfw.film_work_id AS film_work_id",
			"p.id AS person_id",
			"gfw.genre_id AS genre_id",
			"p.updated_at AS updated_at",
		},
		joins: []string{
			"LEFT JOIN content.person_film_work AS pfw ON pfw.person_id = p.id",
			"LEFT JOIN content.genre_film_work AS gfw ON gfw.film_work_id = pfw.film_work_id",
		},
	},
	content.Genre: {
		table: "content.genre AS g",
		alias: "g",
		columns: []string{
			"g.id AS source_id",
			"gfw.film_work_id AS film_work_id",
			"pfw.person_id AS person_id",
			"g.id AS genre_id",
			"g.updated_at AS updated_at",
		},
		joins: []string{
			"LEFT JOIN content.genre_film_work AS gfw ON gfw.genre_id = g.id",
			"LEFT JOIN content.person_film_work AS pfw ON pfw.film_work_id = gfw.film_work_id",
		},
	},
}

type changeRow struct {
	SourceID   uuid.UUID     `bun:"source_id"`
	FilmWorkID uuid.NullUUID `bun:"film_work_id"`
	PersonID   uuid.NullUUID `bun:"person_id"`
	GenreID    uuid.NullUUID `bun:"genre_id"`
	UpdatedAt  time.Time     `bun:"updated_at"`
}

// DefaultPageSize bounds the source rows read by one Changes call when none is configured.
const DefaultPageSize = 100

// Reader detects entities modified after a watermark.
type Reader struct {
	db       *bun.DB
	pageSize int
}

// NewReader creates a change reader over db reading at most pageSize source
// rows per call.
func NewReader(db *bun.DB, pageSize int) *Reader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Reader{db: db, pageSize: pageSize}
}

// Changes returns the ids to redocument because entities of type entity
// changed after since, routed to every entity type they appear in.
//
// Source rows are read in (updated_at, id) order starting after since, one
// page at a time; ChangeSet.More reports that the page was full.
func (r *Reader) Changes(ctx context.Context, entity content.EntityType, since content.Watermark) (*content.ChangeSet, error) {
	cq, ok := changeQueries[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %q", content.ErrUnknownEntity, entity)
	}
	alias := bun.Ident(cq.alias)

	page := r.db.NewSelect().
		TableExpr(cq.table).
		ColumnExpr("?.id", alias).
		ColumnExpr("?.updated_at", alias).
		Where("(?.updated_at, ?.id) > (?, ?::uuid)", alias, alias, since.UpdatedAt, since.LastID.String()).
		OrderExpr("?.updated_at, ?.id", alias, alias).
		Limit(r.pageSize)

	q := r.db.NewSelect().TableExpr("(?) AS ?", page, alias)
	for _, col := range cq.columns {
		q = q.ColumnExpr(col)
	}
	for _, join := range cq.joins {
		q = q.Join(join)
	}

	var rows []changeRow
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to query %s changes: %w", entity, err)
	}

	return collectChanges(entity, since, rows, r.pageSize), nil
}

func collectChanges(entity content.EntityType, since content.Watermark, rows []changeRow, pageSize int) *content.ChangeSet {
	cs := content.NewChangeSet(entity, since)
	for _, row := range rows {
		cs.IDs[entity].Add(row.SourceID)
		if row.FilmWorkID.Valid {
			cs.IDs[content.FilmWork].Add(row.FilmWorkID.UUID)
		}
		if row.PersonID.Valid {
			cs.IDs[content.Person].Add(row.PersonID.UUID)
		}
		if row.GenreID.Valid {
			cs.IDs[content.Genre].Add(row.GenreID.UUID)
		}

		pos := content.Watermark{UpdatedAt: row.UpdatedAt.UTC(), LastID: row.SourceID}
		if cs.Next.Before(pos) {
			cs.Next = pos
		}
	}
	cs.More = pageSize > 0 && len(cs.IDs[entity]) >= pageSize
	return cs
}
