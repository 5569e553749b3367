// Package content holds the domain types shared by the change reader, the
// document builder and the synchronization engine.
package content

import (
	"bytes"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownEntity is returned for an entity type outside EntityTypes.
var ErrUnknownEntity = errors.New("unknown entity type")

// EntityType identifies one of the synchronized source tables.
type EntityType string

const (
	FilmWork EntityType = "film_work"
	Person   EntityType = "person"
	Genre    EntityType = "genre"
)

// EntityTypes lists all entity types in processing order.
var EntityTypes = []EntityType{FilmWork, Person, Genre}

// Index returns the search index holding documents of this entity type.
func (e EntityType) Index() string {
	switch e {
	case FilmWork:
		return "movies"
	case Person:
		return "persons"
	case Genre:
		return "genres"
	default:
		return ""
	}
}

// Scheme returns the name of the index template used to create the index.
func (e EntityType) Scheme() string {
	switch e {
	case FilmWork:
		return "film_scheme"
	case Person:
		return "person_scheme"
	case Genre:
		return "genre_scheme"
	default:
		return ""
	}
}

func (e EntityType) String() string {
	return string(e)
}

// Valid reports whether e is a known entity type.
func (e EntityType) Valid() bool {
	return e.Index() != ""
}

// EntityForIndex returns the entity type stored in the given index.
func EntityForIndex(index string) (EntityType, bool) {
	for _, e := range EntityTypes {
		if e.Index() == index {
			return e, true
		}
	}
	return "", false
}

// Role is the part a person plays in a film work.
type Role string

const (
	RoleActor    Role = "actor"
	RoleDirector Role = "director"
	RoleWriter   Role = "writer"
)

// Watermark is a keyset cursor over one entity table: every row ordered at or
// before (UpdatedAt, LastID) by (updated_at, id) is synchronized.
//
// Rows sharing UpdatedAt with an id after LastID are still read, so a bulk
// load stamped with a single timestamp is consumed page by page while the
// cursor itself stays two values wide.
type Watermark struct {
	UpdatedAt time.Time
	LastID    uuid.UUID
}

// IsZero reports whether nothing has been synchronized yet.
func (w Watermark) IsZero() bool {
	return w.UpdatedAt.IsZero() && w.LastID == uuid.Nil
}

// Equal reports whether both watermarks denote the same position.
func (w Watermark) Equal(other Watermark) bool {
	return w.UpdatedAt.Equal(other.UpdatedAt) && w.LastID == other.LastID
}

// Before reports whether w orders strictly before other by (updated_at, id).
// Ids compare byte-wise, as postgres orders uuid values.
func (w Watermark) Before(other Watermark) bool {
	if !w.UpdatedAt.Equal(other.UpdatedAt) {
		return w.UpdatedAt.Before(other.UpdatedAt)
	}
	return bytes.Compare(w.LastID[:], other.LastID[:]) < 0
}

// IDSet is a set of entity ids.
type IDSet map[uuid.UUID]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...uuid.UUID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id unless it is the nil UUID.
func (s IDSet) Add(id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	s[id] = struct{}{}
}

// Union adds every id of other to s.
func (s IDSet) Union(other IDSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Contains reports whether id is in the set.
func (s IDSet) Contains(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in byte order so batches are deterministic.
func (s IDSet) Sorted() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// ChangeSet is the result of one change query: the ids of every entity type
// that must be redocumented, and the watermark to adopt once they are written.
//
// More is set when the page of source rows was full and further changes
// follow Next.
type ChangeSet struct {
	Entity EntityType
	IDs    map[EntityType]IDSet
	Next   Watermark
	More   bool
}

// NewChangeSet returns an empty change set for entity keeping the watermark since.
func NewChangeSet(entity EntityType, since Watermark) *ChangeSet {
	ids := make(map[EntityType]IDSet, len(EntityTypes))
	for _, e := range EntityTypes {
		ids[e] = IDSet{}
	}
	return &ChangeSet{Entity: entity, IDs: ids, Next: since}
}

// Empty reports whether the change set routes no ids anywhere.
func (c *ChangeSet) Empty() bool {
	for _, s := range c.IDs {
		if len(s) > 0 {
			return false
		}
	}
	return true
}

// Targets returns the entity types that received at least one id.
func (c *ChangeSet) Targets() []EntityType {
	var out []EntityType
	for _, e := range EntityTypes {
		if len(c.IDs[e]) > 0 {
			out = append(out, e)
		}
	}
	return out
}
