// Package search maintains the source record search index.
//
// The index is a write-behind sink: records are pushed after they are
// committed to the graph, from the source-record-created signal, through a
// small worker pool. Indexing failures are logged and counted, never
// retried, and never reach the reconciliation that produced the record.
package search

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/CRISalid-esr/crisalid-ikg/config"
	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/events"
	"github.com/CRISalid-esr/crisalid-ikg/metric"
	"github.com/CRISalid-esr/crisalid-ikg/model"
	"github.com/CRISalid-esr/crisalid-ikg/pkg/worker"
)

//go:embed indexes/source_records.json
var sourceRecordsIndex []byte

// RecordLoader loads a persisted source record
type RecordLoader interface {
	GetSourceRecord(ctx context.Context, uid string) (model.SourceRecord, error)
}

// document is the indexed form of a source record
type document struct {
	ID string `json:"id"`
	model.SourceRecord
}

// Index writes source records to Elasticsearch. A disabled Index accepts
// every call and does nothing.
type Index struct {
	client  *elasticsearch.Client
	name    string
	records RecordLoader
	pool    *worker.Pool[string]
	metrics *metric.Metrics
	logger  *slog.Logger
}

// Option configures an Index
type Option func(*Index)

// WithMetrics counts index writes on the service metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(i *Index) { i.metrics = m }
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates the index. When cfg.Enabled is false no client is created.
func New(cfg config.SearchConfig, records RecordLoader, opts ...Option) (*Index, error) {
	i := &Index{
		name:    cfg.SourceRecordsIndex,
		records: records,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("component", "search", "index", i.name)

	if !cfg.Enabled {
		return i, nil
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.User,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, errors.WrapInvalid(err, "Index", "New", "create elasticsearch client")
	}
	i.client = client
	i.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, i.index)
	return i, nil
}

// Enabled reports whether records are actually indexed
func (i *Index) Enabled() bool {
	return i.client != nil
}

// Setup creates the index with its settings and mappings unless it exists
func (i *Index) Setup(ctx context.Context) error {
	if !i.Enabled() {
		return nil
	}

	res, err := i.client.Indices.Exists([]string{i.name}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return errors.WrapTransient(err, "Index", "Setup", "check index")
	}
	res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		i.logger.Debug("Index already exists")
		return nil
	case http.StatusNotFound:
	default:
		return errors.WrapTransient(fmt.Errorf("unexpected status %s", res.Status()), "Index", "Setup", "check index")
	}

	res, err = i.client.Indices.Create(i.name,
		i.client.Indices.Create.WithBody(bytes.NewReader(sourceRecordsIndex)),
		i.client.Indices.Create.WithContext(ctx))
	if err != nil {
		return errors.WrapTransient(err, "Index", "Setup", "create index")
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.WrapFatal(responseError(res), "Index", "Setup", "create index")
	}
	i.logger.Info("Index created")
	return nil
}

// AddSourceRecord loads the record with uid and indexes it under its uid
func (i *Index) AddSourceRecord(ctx context.Context, uid string) error {
	if !i.Enabled() {
		return nil
	}

	record, err := i.records.GetSourceRecord(ctx, uid)
	if err != nil {
		i.record("error")
		return err
	}
	body, err := json.Marshal(document{ID: uid, SourceRecord: record})
	if err != nil {
		i.record("error")
		return errors.WrapInvalid(err, "Index", "AddSourceRecord", "marshal source record")
	}

	res, err := i.client.Index(i.name, bytes.NewReader(body),
		i.client.Index.WithDocumentID(uid),
		i.client.Index.WithContext(ctx))
	if err != nil {
		i.record("error")
		return errors.WrapTransient(err, "Index", "AddSourceRecord", "index "+uid)
	}
	defer res.Body.Close()
	if res.IsError() {
		i.record("error")
		return errors.Wrap(responseError(res), "Index", "AddSourceRecord", "index "+uid)
	}

	i.record("ok")
	i.logger.Debug("Source record indexed", "uid", uid)
	return nil
}

func (i *Index) index(ctx context.Context, uid string) error {
	err := i.AddSourceRecord(ctx, uid)
	if err != nil {
		i.logger.Error("Source record not indexed", "uid", uid, "error", err)
	}
	return err
}

func (i *Index) record(status string) {
	if i.metrics != nil {
		i.metrics.IndexOperations.WithLabelValues(status).Inc()
	}
}

// Start starts the indexing workers
func (i *Index) Start(ctx context.Context) error {
	if !i.Enabled() {
		return nil
	}
	return i.pool.Start(ctx)
}

// Stop waits up to timeout for queued records to be indexed
func (i *Index) Stop(timeout time.Duration) error {
	if !i.Enabled() {
		return nil
	}
	return i.pool.Stop(timeout)
}

// Subscribe queues every created source record for indexing. A full queue
// drops the record.
func (i *Index) Subscribe(d *events.Dispatcher) {
	if !i.Enabled() {
		return
	}
	d.Subscribe(events.SignalSourceRecordCreated, "search-index", func(_ context.Context, e events.Event) error {
		if err := i.pool.Submit(e.UID); err != nil {
			i.record("dropped")
			i.logger.Warn("Source record not queued for indexing", "uid", e.UID, "error", err)
		}
		return nil
	})
}

// Check implements a health checker by pinging the cluster
func (i *Index) Check(ctx context.Context) error {
	if !i.Enabled() {
		return nil
	}
	res, err := i.client.Ping(i.client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError(res)
	}
	return nil
}

func responseError(res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("elasticsearch returned %s: %s", res.Status(), bytes.TrimSpace(body))
}
