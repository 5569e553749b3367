package pg

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SchemaName is the postgres schema holding the source tables.
const SchemaName = "content"

// FilmWorkDao is a data access object that maps directly to the 'content.film_work' table in PostgreSQL.
type FilmWorkDao struct {
	bun.BaseModel `bun:"table:content.film_work,alias:fw"`
	ID            uuid.UUID  `json:"id" bun:"id,pk,type:uuid"`
	Title         string     `json:"title" bun:"title,notnull,type:varchar(255)"`
	Description   *string    `json:"description,omitempty" bun:"description,type:text"`
	CreationDate  *time.Time `json:"creation_date,omitempty" bun:"creation_date,type:date"`
	Certificate   *string    `json:"certificate,omitempty" bun:"certificate,type:text"`
	FilePath      *string    `json:"file_path,omitempty" bun:"file_path,type:varchar(100)"`
	Rating        *float64   `json:"rating,omitempty" bun:"rating,type:double precision"`
	Type          string     `json:"type" bun:"type,notnull,type:varchar(20)"`
	CreatedAt     time.Time  `json:"created_at" bun:"created_at,notnull,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time  `json:"updated_at" bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}

// GenreDao is a data access object that maps directly to the 'content.genre' table in PostgreSQL.
type GenreDao struct {
	bun.BaseModel `bun:"table:content.genre,alias:g"`
	ID            uuid.UUID `json:"id" bun:"id,pk,type:uuid"`
	Name          string    `json:"name" bun:"name,notnull,type:varchar(255)"`
	Description   *string   `json:"description,omitempty" bun:"description,type:text"`
	CreatedAt     time.Time `json:"created_at" bun:"created_at,notnull,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time `json:"updated_at" bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}

// PersonDao is a data access object that maps directly to the 'content.person' table in PostgreSQL.
type PersonDao struct {
	bun.BaseModel `bun:"table:content.person,alias:p"`
	ID            uuid.UUID  `json:"id" bun:"id,pk,type:uuid"`
	FullName      string     `json:"full_name" bun:"full_name,notnull,type:varchar(255)"`
	BirthDate     *time.Time `json:"birth_date,omitempty" bun:"birth_date,type:date"`
	CreatedAt     time.Time  `json:"created_at" bun:"created_at,notnull,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time  `json:"updated_at" bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}

// GenreFilmWorkDao is a data access object that maps directly to the 'content.genre_film_work' table in PostgreSQL.
type GenreFilmWorkDao struct {
	bun.BaseModel `bun:"table:content.genre_film_work,alias:gfw"`
	ID            uuid.UUID `json:"id" bun:"id,pk,type:uuid"`
	FilmWorkID    uuid.UUID `json:"film_work_id" bun:"film_work_id,notnull,type:uuid,unique:film_work_genre"`
	GenreID       uuid.UUID `json:"genre_id" bun:"genre_id,notnull,type:uuid,unique:film_work_genre"`
	CreatedAt     time.Time `json:"created_at" bun:"created_at,notnull,nullzero,default:current_timestamp"`
}

// PersonFilmWorkDao is a data access object that maps directly to the 'content.person_film_work' table in PostgreSQL.
type PersonFilmWorkDao struct {
	bun.BaseModel `bun:"table:content.person_film_work,alias:pfw"`
	ID            uuid.UUID `json:"id" bun:"id,pk,type:uuid"`
	FilmWorkID    uuid.UUID `json:"film_work_id" bun:"film_work_id,notnull,type:uuid,unique:film_work_person_role"`
	PersonID      uuid.UUID `json:"person_id" bun:"person_id,notnull,type:uuid,unique:film_work_person_role"`
	Role          string    `json:"role" bun:"role,notnull,type:varchar(255),unique:film_work_person_role"`
	CreatedAt     time.Time `json:"created_at" bun:"created_at,notnull,nullzero,default:current_timestamp"`
}
