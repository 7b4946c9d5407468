// Package storage provides the warehouse destinations the write buffer
// delivers to. Both implementations satisfy writer.Destination and
// report per-row rejection indices so the buffer can re-queue exactly
// what the warehouse refused.
package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"
)

// OpenSearchConfig holds connection and index settings.
type OpenSearchConfig struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
	ShardCount    int
	ReplicaCount  int
}

// DefaultOpenSearchConfig returns local-development defaults.
func DefaultOpenSearchConfig() OpenSearchConfig {
	return OpenSearchConfig{
		URL:           "https://localhost:9200",
		Username:      "admin",
		Password:      "admin",
		TLSSkipVerify: true,
		IndexPrefix:   "ucp-events",
		ShardCount:    1,
		ReplicaCount:  0,
	}
}

// OpenSearch indexes event rows through the bulk API.
type OpenSearch struct {
	client *opensearch.Client
	cfg    OpenSearchConfig
	logger *slog.Logger
}

// NewOpenSearch creates an OpenSearch destination. No network call is
// made here; connectivity is verified on the first EnsureSchema.
func NewOpenSearch(cfg OpenSearchConfig, logger *slog.Logger) (*OpenSearch, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}
	return &OpenSearch{client: client, cfg: cfg, logger: logger}, nil
}

// WriteAlias is the alias all bulk writes target.
func (o *OpenSearch) WriteAlias() string {
	return o.cfg.IndexPrefix + "-write"
}

func (o *OpenSearch) currentWriteIndex() string {
	return fmt.Sprintf("%s-%s-000001", o.cfg.IndexPrefix, time.Now().UTC().Format("2006.01.02"))
}

// EnsureSchema creates the index template and the initial write index.
// Safe to call repeatedly and from concurrent bootstraps.
func (o *OpenSearch) EnsureSchema(ctx context.Context) error {
	info, err := o.client.Info(o.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("connect to opensearch: %w", err)
	}
	info.Body.Close()
	if info.IsError() {
		return fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	if err := o.createIndexTemplate(ctx); err != nil {
		return fmt.Errorf("create index template: %w", err)
	}
	if err := o.createInitialIndex(ctx); err != nil {
		return fmt.Errorf("create initial index: %w", err)
	}

	o.logger.Info("opensearch schema ready", slog.String("index_prefix", o.cfg.IndexPrefix))
	return nil
}

// Write bulk-indexes the batch and reports the positions of rows the
// cluster rejected.
func (o *OpenSearch) Write(ctx context.Context, rows []map[string]interface{}) ([]int, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client: o.client,
		Index:  o.WriteAlias(),
	})
	if err != nil {
		return nil, fmt.Errorf("create bulk indexer: %w", err)
	}

	var (
		mu     sync.Mutex
		failed []int
	)
	reject := func(i int) {
		mu.Lock()
		failed = append(failed, i)
		mu.Unlock()
	}

	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			reject(i)
			o.logger.Warn("dropping unmarshalable row", slog.Any("error", err))
			continue
		}

		item := opensearchutil.BulkIndexerItem{
			Action: "index",
			Body:   bytes.NewReader(data),
			OnFailure: func(_ context.Context, _ opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
				reject(i)
				if err != nil {
					o.logger.Warn("bulk item failed", slog.Any("error", err))
				} else {
					o.logger.Warn("bulk item rejected",
						slog.String("type", res.Error.Type),
						slog.String("reason", res.Error.Reason),
					)
				}
			},
		}
		if id, ok := row["event_id"].(string); ok && id != "" {
			item.DocumentID = id
		}

		if err := bi.Add(ctx, item); err != nil {
			reject(i)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return nil, fmt.Errorf("bulk delivery: %w", err)
	}
	return failed, nil
}

// Close releases nothing for the HTTP-based client; present to satisfy
// the destination contract.
func (o *OpenSearch) Close() error {
	return nil
}

func (o *OpenSearch) createIndexTemplate(ctx context.Context) error {
	template := map[string]interface{}{
		"index_patterns": []string{o.cfg.IndexPrefix + "-*"},
		"template": map[string]interface{}{
			"settings": map[string]interface{}{
				"number_of_shards":   o.cfg.ShardCount,
				"number_of_replicas": o.cfg.ReplicaCount,
				"codec":              "best_compression",
			},
			"mappings": eventMappings(),
		},
		"priority": 100,
	}

	body, err := json.Marshal(template)
	if err != nil {
		return err
	}

	res, err := o.client.Indices.PutIndexTemplate(
		o.cfg.IndexPrefix+"-template",
		bytes.NewReader(body),
		o.client.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("put index template: %s - %s", res.Status(), string(raw))
	}
	return nil
}

func (o *OpenSearch) createInitialIndex(ctx context.Context) error {
	indexName := o.currentWriteIndex()

	exists, err := o.client.Indices.Exists(
		[]string{indexName},
		o.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	spec := map[string]interface{}{
		"aliases": map[string]interface{}{
			o.WriteAlias(): map[string]interface{}{
				"is_write_index": true,
			},
		},
	}
	body, err := json.Marshal(spec)
	if err != nil {
		return err
	}

	res, err := o.client.Indices.Create(
		indexName,
		o.client.Indices.Create.WithContext(ctx),
		o.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		// A concurrent bootstrap may have won the race.
		if strings.Contains(string(raw), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index %s: %s - %s", indexName, res.Status(), string(raw))
	}
	return nil
}

func eventMappings() map[string]interface{} {
	keyword := func() map[string]interface{} {
		return map[string]interface{}{"type": "keyword"}
	}
	long := func() map[string]interface{} {
		return map[string]interface{}{"type": "long"}
	}
	return map[string]interface{}{
		"dynamic": true,
		"dynamic_templates": []map[string]interface{}{
			{
				"strings_as_keywords": map[string]interface{}{
					"match_mapping_type": "string",
					"mapping": map[string]interface{}{
						"type": "text",
						"fields": map[string]interface{}{
							"keyword": map[string]interface{}{
								"type":         "keyword",
								"ignore_above": 256,
							},
						},
					},
				},
			},
		},
		"properties": map[string]interface{}{
			"event_id":   keyword(),
			"event_type": keyword(),
			"timestamp": map[string]interface{}{
				"type": "date",
			},
			"app_name":                        keyword(),
			"merchant_host":                   keyword(),
			"platform_profile_url":            keyword(),
			"transport":                       keyword(),
			"http_method":                     keyword(),
			"http_path":                       keyword(),
			"http_status_code":                map[string]interface{}{"type": "integer"},
			"idempotency_key":                 keyword(),
			"request_id":                      keyword(),
			"checkout_session_id":             keyword(),
			"checkout_status":                 keyword(),
			"order_id":                        keyword(),
			"currency":                        keyword(),
			"items_discount_amount":           long(),
			"subtotal_amount":                 long(),
			"discount_amount":                 long(),
			"fulfillment_amount":              long(),
			"tax_amount":                      long(),
			"fee_amount":                      long(),
			"total_amount":                    long(),
			"line_item_count":                 map[string]interface{}{"type": "integer"},
			"payment_handler_id":              keyword(),
			"payment_instrument_type":         keyword(),
			"payment_brand":                   keyword(),
			"ucp_version":                     keyword(),
			"identity_provider":               keyword(),
			"identity_scope":                  keyword(),
			"fulfillment_type":                keyword(),
			"fulfillment_destination_country": keyword(),
			"expires_at":                      keyword(),
			"continue_url":                    keyword(),
			"permalink_url":                   keyword(),
			"error_code":                      keyword(),
			"error_severity":                  keyword(),
			"error_message":                   map[string]interface{}{"type": "text"},
			"latency_ms":                      map[string]interface{}{"type": "float"},
			"line_items_json":                 map[string]interface{}{"type": "text", "index": false},
			"capabilities_json":               map[string]interface{}{"type": "text", "index": false},
			"extensions_json":                 map[string]interface{}{"type": "text", "index": false},
			"discount_codes_json":             map[string]interface{}{"type": "text", "index": false},
			"discount_applied_json":           map[string]interface{}{"type": "text", "index": false},
			"messages_json":                   map[string]interface{}{"type": "text", "index": false},
			"custom_metadata_json":            map[string]interface{}{"type": "text", "index": false},
		},
	}
}
