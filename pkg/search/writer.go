package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/moviesearch/movies-etl/internal/metrics"
	"github.com/moviesearch/movies-etl/pkg/content"
	"github.com/moviesearch/movies-etl/pkg/retry"
)

const alreadyExists = "resource_already_exists_exception"

// FlagStore persists which indices have been created.
type FlagStore interface {
	IndexCreated(ctx context.Context, index string) (bool, error)
	MarkIndexCreated(ctx context.Context, index string) error
}

// Writer upserts documents into the search index.
type Writer struct {
	client  *elasticsearch.Client
	schemes Schemes
	flags   FlagStore
	logger  *zap.Logger
}

// NewWriter creates a writer creating indices from schemes on first use.
func NewWriter(client *elasticsearch.Client, schemes Schemes, flags FlagStore, logger *zap.Logger) *Writer {
	return &Writer{
		client:  client,
		schemes: schemes,
		flags:   flags,
		logger:  logger,
	}
}

// EnsureIndex creates index from its scheme unless it is already flagged as created.
// An unknown scheme is a permanent error.
func (w *Writer) EnsureIndex(ctx context.Context, index string) error {
	created, err := w.flags.IndexCreated(ctx, index)
	if err != nil {
		return err
	}
	if created {
		return nil
	}

	body, err := w.schemes.ForIndex(index)
	if err != nil {
		return retry.Permanent(err)
	}

	res, err := w.client.Indices.Create(index,
		w.client.Indices.Create.WithContext(ctx),
		w.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		e := decodeError(res)
		if e.Type != alreadyExists {
			metrics.ErrorsTotal.WithLabelValues("search", "create_index").Inc()
			return fmt.Errorf("failed to create index %s: %s: %s", index, res.Status(), e)
		}
		w.logger.Info("Index already exists", zap.String("index", index))
	} else {
		w.logger.Info("Index created", zap.String("index", index))
	}

	return w.flags.MarkIndexCreated(ctx, index)
}

// WriteBatch upserts docs with one bulk request. Any failed item fails the
// whole batch; replaying it overwrites the same documents.
func (w *Writer) WriteBatch(ctx context.Context, index string, docs []content.Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]any{"index": map[string]string{"_index": index, "_id": doc.DocumentID()}}
		if err := enc.Encode(meta); err != nil {
			return retry.Permanent(fmt.Errorf("failed to encode bulk action: %w", err))
		}
		if err := enc.Encode(doc); err != nil {
			return retry.Permanent(fmt.Errorf("failed to encode document %s: %w", doc.DocumentID(), err))
		}
	}

	res, err := w.client.Bulk(bytes.NewReader(buf.Bytes()),
		w.client.Bulk.WithContext(ctx),
		w.client.Bulk.WithIndex(index),
	)
	if err != nil {
		return fmt.Errorf("bulk request to %s failed: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		metrics.ErrorsTotal.WithLabelValues("search", "bulk").Inc()
		return fmt.Errorf("bulk request to %s failed: %s: %s", index, res.Status(), decodeError(res))
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if br.Errors {
		failed, first := br.failures()
		metrics.ErrorsTotal.WithLabelValues("search", "bulk_item").Inc()
		return fmt.Errorf("bulk request to %s: %d of %d documents failed, first: %s", index, failed, len(docs), first)
	}

	metrics.DocumentsIndexed.WithLabelValues(index).Add(float64(len(docs)))
	w.logger.Debug("Documents indexed", zap.String("index", index), zap.Int("count", len(docs)))
	return nil
}

// WriteOne upserts a single document.
func (w *Writer) WriteOne(ctx context.Context, index string, doc content.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to encode document %s: %w", doc.DocumentID(), err))
	}

	res, err := w.client.Index(index, bytes.NewReader(body),
		w.client.Index.WithContext(ctx),
		w.client.Index.WithDocumentID(doc.DocumentID()),
	)
	if err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.DocumentID(), err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index document %s: %s: %s", doc.DocumentID(), res.Status(), decodeError(res))
	}

	metrics.DocumentsIndexed.WithLabelValues(index).Inc()
	return nil
}

// Get returns the stored source of a document and whether it exists.
func (w *Writer) Get(ctx context.Context, index, id string) (json.RawMessage, bool, error) {
	res, err := w.client.Get(index, id, w.client.Get.WithContext(ctx))
	if err != nil {
		return nil, false, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if res.IsError() {
		return nil, false, fmt.Errorf("failed to get document %s: %s: %s", id, res.Status(), decodeError(res))
	}

	var doc struct {
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	return doc.Source, doc.Found, nil
}

type esError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (e esError) String() string {
	if e.Type == "" {
		return "unknown error"
	}
	return e.Type + ": " + e.Reason
}

func decodeError(res *esapi.Response) esError {
	var body struct {
		Error esError `json:"error"`
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return esError{}
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return esError{Reason: string(data)}
	}
	return body.Error
}

type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]bulkItemOutcome `json:"items"`
}

type bulkItemOutcome struct {
	ID     string   `json:"_id"`
	Status int      `json:"status"`
	Error  *esError `json:"error,omitempty"`
}

func (r bulkResponse) failures() (int, string) {
	var (
		count int
		first = "unknown error"
	)
	for _, item := range r.Items {
		for _, outcome := range item {
			if outcome.Error == nil && outcome.Status < 300 {
				continue
			}
			if count == 0 {
				reason := "status " + http.StatusText(outcome.Status)
				if outcome.Error != nil {
					reason = outcome.Error.String()
				}
				first = outcome.ID + ": " + reason
			}
			count++
		}
	}
	return count, first
}
