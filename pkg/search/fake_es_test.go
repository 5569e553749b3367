package search

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/require"

	"github.com/moviesearch/movies-etl/pkg/config"
)

// fakeES speaks just enough of the Elasticsearch HTTP API for the writer.
type fakeES struct {
	mu        sync.Mutex
	indices   map[string]json.RawMessage
	docs      map[string]map[string]json.RawMessage
	creates   int
	bulks     int
	failIndex int
	failItems bool
}

func newFakeES(t *testing.T) (*fakeES, *elasticsearch.Client) {
	t.Helper()
	f := &fakeES{
		indices: map[string]json.RawMessage{},
		docs:    map[string]map[string]json.RawMessage{},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	client, err := NewClient(&config.ElasticsearchConfig{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return f, client
}

// with runs fn while holding the server lock.
func (f *fakeES) with(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *fakeES) counts() (creates, bulks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.bulks
}

func (f *fakeES) docCount(index string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs[index])
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	body, _ := io.ReadAll(r.Body)

	switch {
	case r.Method == http.MethodHead && parts[0] == "":
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPut && len(parts) == 1:
		f.createIndex(w, parts[0], body)

	case r.Method == http.MethodPost && parts[len(parts)-1] == "_bulk":
		f.bulk(w, body)

	case r.Method == http.MethodPut && len(parts) == 3 && parts[1] == "_doc":
		f.put(parts[0], parts[2], body)
		writeJSON(w, http.StatusCreated, map[string]any{"_id": parts[2], "result": "created"})

	case r.Method == http.MethodGet && len(parts) == 3 && parts[1] == "_doc":
		doc, ok := f.docs[parts[0]][parts[2]]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"_id": parts[2], "found": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"_id": parts[2], "found": true, "_source": doc})

	default:
		writeJSON(w, http.StatusBadRequest, esErrorBody("unsupported_operation", r.Method+" "+r.URL.Path))
	}
}

func (f *fakeES) createIndex(w http.ResponseWriter, index string, body []byte) {
	f.creates++
	if f.failIndex > 0 {
		f.failIndex--
		writeJSON(w, http.StatusInternalServerError, esErrorBody("cluster_block_exception", "blocked"))
		return
	}
	if _, ok := f.indices[index]; ok {
		writeJSON(w, http.StatusBadRequest, esErrorBody(alreadyExists, "index ["+index+"] already exists"))
		return
	}
	f.indices[index] = body
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "index": index})
}

func (f *fakeES) bulk(w http.ResponseWriter, body []byte) {
	f.bulks++
	var items []map[string]any
	hasErrors := false

	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for sc.Scan() {
		var action map[string]struct {
			Index string `json:"_index"`
			ID    string `json:"_id"`
		}
		if err := json.Unmarshal(sc.Bytes(), &action); err != nil {
			writeJSON(w, http.StatusBadRequest, esErrorBody("parse_exception", err.Error()))
			return
		}
		if !sc.Scan() {
			writeJSON(w, http.StatusBadRequest, esErrorBody("parse_exception", "missing source"))
			return
		}
		meta := action["index"]
		source := append(json.RawMessage(nil), sc.Bytes()...)

		if f.failItems {
			hasErrors = true
			items = append(items, map[string]any{"index": map[string]any{
				"_id": meta.ID, "status": 400,
				"error": map[string]any{"type": "mapper_parsing_exception", "reason": "failed to parse"},
			}})
			continue
		}
		f.put(meta.Index, meta.ID, source)
		items = append(items, map[string]any{"index": map[string]any{"_id": meta.ID, "status": 201}})
	}

	writeJSON(w, http.StatusOK, map[string]any{"took": 1, "errors": hasErrors, "items": items})
}

func (f *fakeES) put(index, id string, source json.RawMessage) {
	if f.docs[index] == nil {
		f.docs[index] = map[string]json.RawMessage{}
	}
	f.docs[index][id] = source
}

func esErrorBody(typ, reason string) map[string]any {
	return map[string]any{"error": map[string]any{"type": typ, "reason": reason}, "status": 400}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
