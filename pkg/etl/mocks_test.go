package etl

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moviesearch/movies-etl/pkg/content"
)

// MockReader is a mock implementation of ChangeReader
type MockReader struct {
	ChangesFunc func(ctx context.Context, entity content.EntityType, since content.Watermark) (*content.ChangeSet, error)
}

func (m *MockReader) Changes(ctx context.Context, entity content.EntityType, since content.Watermark) (*content.ChangeSet, error) {
	if m.ChangesFunc != nil {
		return m.ChangesFunc(ctx, entity, since)
	}
	return content.NewChangeSet(entity, since), nil
}

// MockBuilder is a mock implementation of DocumentBuilder
type MockBuilder struct {
	BuildFunc func(ctx context.Context, entity content.EntityType, ids []uuid.UUID) ([]content.Document, error)
}

func (m *MockBuilder) Build(ctx context.Context, entity content.EntityType, ids []uuid.UUID) ([]content.Document, error) {
	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, entity, ids)
	}
	return nil, nil
}

// MockWriter is a mock implementation of IndexWriter
type MockWriter struct {
	EnsureIndexFunc func(ctx context.Context, index string) error
	WriteBatchFunc  func(ctx context.Context, index string, docs []content.Document) error
}

func (m *MockWriter) EnsureIndex(ctx context.Context, index string) error {
	if m.EnsureIndexFunc != nil {
		return m.EnsureIndexFunc(ctx, index)
	}
	return nil
}

func (m *MockWriter) WriteBatch(ctx context.Context, index string, docs []content.Document) error {
	if m.WriteBatchFunc != nil {
		return m.WriteBatchFunc(ctx, index, docs)
	}
	return nil
}

// MockCheckpoints is a mock implementation of CheckpointStore
type MockCheckpoints struct {
	WatermarkFunc    func(ctx context.Context, entity content.EntityType) (content.Watermark, error)
	SetWatermarkFunc func(ctx context.Context, entity content.EntityType, wm content.Watermark) error
}

func (m *MockCheckpoints) Watermark(ctx context.Context, entity content.EntityType) (content.Watermark, error) {
	if m.WatermarkFunc != nil {
		return m.WatermarkFunc(ctx, entity)
	}
	return content.Watermark{}, nil
}

func (m *MockCheckpoints) SetWatermark(ctx context.Context, entity content.EntityType, wm content.Watermark) error {
	if m.SetWatermarkFunc != nil {
		return m.SetWatermarkFunc(ctx, entity, wm)
	}
	return nil
}

// world is an in-memory content store that answers change and document
// queries with the same semantics as the postgres reader and builder.
//
// pageSize bounds the source rows returned by one Changes call; 0 means unbounded.
type world struct {
	mu       sync.Mutex
	pageSize int
	clock    time.Time
	names    map[uuid.UUID]string
	updated  map[content.EntityType]map[uuid.UUID]time.Time
	filmLink map[uuid.UUID]map[uuid.UUID]content.EntityType
}

func newWorld() *world {
	w := &world{
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		names:    map[uuid.UUID]string{},
		updated:  map[content.EntityType]map[uuid.UUID]time.Time{},
		filmLink: map[uuid.UUID]map[uuid.UUID]content.EntityType{},
	}
	for _, e := range content.EntityTypes {
		w.updated[e] = map[uuid.UUID]time.Time{}
	}
	return w
}

func (w *world) add(entity content.EntityType, name string) uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := uuid.New()
	w.names[id] = name
	w.updated[entity][id] = w.clock
	return id
}

// link relates a film to a person or a genre.
func (w *world) link(film uuid.UUID, entity content.EntityType, id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.filmLink[film] == nil {
		w.filmLink[film] = map[uuid.UUID]content.EntityType{}
	}
	w.filmLink[film][id] = entity
}

// touch moves the clock forward and bumps updated_at of id.
func (w *world) touch(entity content.EntityType, id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clock = w.clock.Add(time.Second)
	w.updated[entity][id] = w.clock
}

// rename changes the name of id and bumps its updated_at.
func (w *world) rename(entity content.EntityType, id uuid.UUID, name string) {
	w.mu.Lock()
	w.names[id] = name
	w.mu.Unlock()
	w.touch(entity, id)
}

func (w *world) updatedAt(entity content.EntityType, id uuid.UUID) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.updated[entity][id]
}

func (w *world) films(id uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for film, links := range w.filmLink {
		if _, ok := links[id]; ok {
			out = append(out, film)
		}
	}
	return out
}

func (w *world) Changes(_ context.Context, entity content.EntityType, since content.Watermark) (*content.ChangeSet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var page []content.Watermark
	for id, at := range w.updated[entity] {
		pos := content.Watermark{UpdatedAt: at, LastID: id}
		if since.Before(pos) {
			page = append(page, pos)
		}
	}
	sort.Slice(page, func(i, j int) bool { return page[i].Before(page[j]) })

	cs := content.NewChangeSet(entity, since)
	if w.pageSize > 0 && len(page) >= w.pageSize {
		page = page[:w.pageSize]
		cs.More = true
	}

	for _, pos := range page {
		id := pos.LastID
		cs.IDs[entity].Add(id)
		var films []uuid.UUID
		if entity == content.FilmWork {
			films = []uuid.UUID{id}
		} else {
			films = w.films(id)
		}
		for _, film := range films {
			cs.IDs[content.FilmWork].Add(film)
			for other, kind := range w.filmLink[film] {
				if entity == content.FilmWork || kind != entity {
					cs.IDs[kind].Add(other)
				}
			}
		}
		cs.Next = pos
	}
	return cs, nil
}

func (w *world) Build(_ context.Context, entity content.EntityType, ids []uuid.UUID) ([]content.Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	docs := make([]content.Document, 0, len(ids))
	for _, id := range ids {
		if _, ok := w.updated[entity][id]; !ok {
			continue
		}
		switch entity {
		case content.FilmWork:
			doc := &content.FilmDocument{ID: id.String(), Title: w.names[id]}
			for other, kind := range w.filmLink[id] {
				ref := content.NamedRef{ID: other.String(), Name: w.names[other]}
				if kind == content.Genre {
					doc.Genres = append(doc.Genres, ref)
				} else {
					doc.Actors = append(doc.Actors, ref)
				}
			}
			doc.Normalize()
			docs = append(docs, doc)
		case content.Person:
			doc := &content.PersonDocument{ID: id.String(), FullName: w.names[id]}
			for _, film := range w.films(id) {
				doc.Films = append(doc.Films, content.PersonFilm{ID: film.String(), Role: content.RoleActor, Title: w.names[film]})
			}
			doc.Normalize()
			docs = append(docs, doc)
		case content.Genre:
			doc := &content.GenreDocument{ID: id.String(), Name: w.names[id]}
			for _, film := range w.films(id) {
				doc.Films = append(doc.Films, content.FilmRef{ID: film.String(), Title: w.names[film]})
			}
			doc.Normalize()
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// memIndex records everything written to the search index.
type memIndex struct {
	mu      sync.Mutex
	docs    map[string]map[string]content.Document
	ensured map[string]int
	writes  map[string]int
	failFor map[string]error
}

func newMemIndex() *memIndex {
	return &memIndex{
		docs:    map[string]map[string]content.Document{},
		ensured: map[string]int{},
		writes:  map[string]int{},
		failFor: map[string]error{},
	}
}

func (m *memIndex) EnsureIndex(_ context.Context, index string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured[index]++
	return nil
}

func (m *memIndex) WriteBatch(_ context.Context, index string, docs []content.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[index]; err != nil {
		return err
	}
	m.writes[index]++
	if m.docs[index] == nil {
		m.docs[index] = map[string]content.Document{}
	}
	for _, doc := range docs {
		m.docs[index][doc.DocumentID()] = doc
	}
	return nil
}

func (m *memIndex) setFailure(index string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failFor, index)
		return
	}
	m.failFor[index] = err
}

func (m *memIndex) has(index string, id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[index][id.String()]
	return ok
}

func (m *memIndex) doc(index string, id uuid.UUID) content.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[index][id.String()]
}

func (m *memIndex) totalWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.writes {
		n += c
	}
	return n
}

func (m *memIndex) totalEnsures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.ensured {
		n += c
	}
	return n
}
