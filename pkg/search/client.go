// Package search writes denormalized documents into Elasticsearch indices.
package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/moviesearch/movies-etl/pkg/config"
)

const defaultRequestTimeout = 30 * time.Second

// NewClient creates the Elasticsearch client shared by the writer.
// Connections are pooled by the underlying transport; nothing to close.
func NewClient(cfg *config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
		// retries are owned by the caller's backoff policy
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}

// Ping checks the cluster answers.
func Ping(ctx context.Context, client *elasticsearch.Client) error {
	res, err := client.Ping(client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping returned %s", res.Status())
	}
	return nil
}
