package content

import (
	"sort"
)

// Document is an index-ready denormalized record.
type Document interface {
	DocumentID() string
}

// NamedRef is a nested {id, name} reference to a related entity.
type NamedRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FilmRef is a nested reference to a film work from a genre document.
type FilmRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// PersonFilm is a film work a person took part in, with the role played.
type PersonFilm struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Title string `json:"title"`
}

// FilmDocument is the document stored in the movies index.
type FilmDocument struct {
	ID           string     `json:"id"`
	IMDBRating   *float64   `json:"imdb_rating"`
	Genre        string     `json:"genre"`
	Genres       []NamedRef `json:"genres"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Director     []string   `json:"director"`
	ActorsNames  []string   `json:"actors_names"`
	WritersNames []string   `json:"writers_names"`
	Actors       []NamedRef `json:"actors"`
	Writers      []NamedRef `json:"writers"`
}

func (d *FilmDocument) DocumentID() string { return d.ID }

// PersonDocument is the document stored in the persons index.
type PersonDocument struct {
	ID        string       `json:"id"`
	FullName  string       `json:"full_name"`
	BirthDate *string      `json:"birth_date"`
	Films     []PersonFilm `json:"films"`
}

func (d *PersonDocument) DocumentID() string { return d.ID }

// GenreDocument is the document stored in the genres index.
type GenreDocument struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Films       []FilmRef `json:"films"`
}

func (d *GenreDocument) DocumentID() string { return d.ID }

// Normalize sorts and deduplicates nested lists and replaces nil slices with
// empty ones, so the same relational state always yields the same document.
func (d *FilmDocument) Normalize() {
	d.Genres = uniqueRefs(d.Genres)
	d.Actors = uniqueRefs(d.Actors)
	d.Writers = uniqueRefs(d.Writers)
	d.Director = uniqueStrings(d.Director)
	d.ActorsNames = uniqueStrings(d.ActorsNames)
	d.WritersNames = uniqueStrings(d.WritersNames)
}

// Normalize sorts and deduplicates the film list.
func (d *PersonDocument) Normalize() {
	seen := make(map[PersonFilm]struct{}, len(d.Films))
	out := make([]PersonFilm, 0, len(d.Films))
	for _, f := range d.Films {
		if f.ID == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Role < out[j].Role
	})
	d.Films = out
}

// Normalize sorts and deduplicates the film list.
func (d *GenreDocument) Normalize() {
	seen := make(map[FilmRef]struct{}, len(d.Films))
	out := make([]FilmRef, 0, len(d.Films))
	for _, f := range d.Films {
		if f.ID == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	d.Films = out
}

func uniqueRefs(refs []NamedRef) []NamedRef {
	seen := make(map[NamedRef]struct{}, len(refs))
	out := make([]NamedRef, 0, len(refs))
	for _, r := range refs {
		if r.ID == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
