package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventsTableDDL creates the analytics table and its query indexes.
// Every statement is idempotent so bootstrap can run on every start.
const EventsTableDDL = `
CREATE TABLE IF NOT EXISTS ucp_events (
    event_id                        UUID PRIMARY KEY,
    event_type                      TEXT NOT NULL,
    timestamp                       TIMESTAMPTZ NOT NULL,
    app_name                        TEXT,
    merchant_host                   TEXT,
    platform_profile_url            TEXT,
    transport                       TEXT,
    http_method                     TEXT,
    http_path                       TEXT,
    http_status_code                INTEGER,
    idempotency_key                 TEXT,
    request_id                      TEXT,
    checkout_session_id             TEXT,
    checkout_status                 TEXT,
    order_id                        TEXT,
    currency                        TEXT,
    items_discount_amount           BIGINT,
    subtotal_amount                 BIGINT,
    discount_amount                 BIGINT,
    fulfillment_amount              BIGINT,
    tax_amount                      BIGINT,
    fee_amount                      BIGINT,
    total_amount                    BIGINT,
    line_items_json                 JSONB,
    line_item_count                 INTEGER,
    payment_handler_id              TEXT,
    payment_instrument_type         TEXT,
    payment_brand                   TEXT,
    ucp_version                     TEXT,
    capabilities_json               JSONB,
    extensions_json                 JSONB,
    identity_provider               TEXT,
    identity_scope                  TEXT,
    fulfillment_type                TEXT,
    fulfillment_destination_country TEXT,
    discount_codes_json             JSONB,
    discount_applied_json           JSONB,
    expires_at                      TEXT,
    continue_url                    TEXT,
    permalink_url                   TEXT,
    error_code                      TEXT,
    error_message                   TEXT,
    error_severity                  TEXT,
    messages_json                   JSONB,
    latency_ms                      DOUBLE PRECISION,
    custom_metadata_json            JSONB
);

CREATE INDEX IF NOT EXISTS idx_ucp_events_timestamp ON ucp_events (timestamp);
CREATE INDEX IF NOT EXISTS idx_ucp_events_event_type ON ucp_events (event_type);
CREATE INDEX IF NOT EXISTS idx_ucp_events_merchant_host ON ucp_events (merchant_host);
CREATE INDEX IF NOT EXISTS idx_ucp_events_checkout_session ON ucp_events (checkout_session_id);
CREATE INDEX IF NOT EXISTS idx_ucp_events_order ON ucp_events (order_id);
`

// eventColumns is the insert column order; values are looked up by the
// same keys the event row map uses.
var eventColumns = []string{
	"event_id",
	"event_type",
	"timestamp",
	"app_name",
	"merchant_host",
	"platform_profile_url",
	"transport",
	"http_method",
	"http_path",
	"http_status_code",
	"idempotency_key",
	"request_id",
	"checkout_session_id",
	"checkout_status",
	"order_id",
	"currency",
	"items_discount_amount",
	"subtotal_amount",
	"discount_amount",
	"fulfillment_amount",
	"tax_amount",
	"fee_amount",
	"total_amount",
	"line_items_json",
	"line_item_count",
	"payment_handler_id",
	"payment_instrument_type",
	"payment_brand",
	"ucp_version",
	"capabilities_json",
	"extensions_json",
	"identity_provider",
	"identity_scope",
	"fulfillment_type",
	"fulfillment_destination_country",
	"discount_codes_json",
	"discount_applied_json",
	"expires_at",
	"continue_url",
	"permalink_url",
	"error_code",
	"error_message",
	"error_severity",
	"messages_json",
	"latency_ms",
	"custom_metadata_json",
}

var insertEventSQL = buildInsertSQL()

func buildInsertSQL() string {
	placeholders := make([]string, len(eventColumns))
	for i := range eventColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO ucp_events (%s) VALUES (%s) ON CONFLICT (event_id) DO NOTHING",
		strings.Join(eventColumns, ", "),
		strings.Join(placeholders, ", "),
	)
}

// PostgresConfig holds connection settings for the relational destination.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

// Postgres delivers event rows into a single flat table. Each batch is
// one round trip; statement-level failures map back to row positions.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres opens a connection pool against the configured DSN.
func NewPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// EnsureSchema creates the events table and indexes if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := p.pool.Exec(ctx, EventsTableDDL); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	p.logger.Info("postgres schema ready")
	return nil
}

// Write inserts the batch in one pipelined round trip. A pipelined
// batch aborts as a unit on the first bad row, so on batch failure the
// rows are retried individually to isolate exactly which ones the
// database rejects.
func (p *Postgres) Write(ctx context.Context, rows []map[string]interface{}) ([]int, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertEventSQL, rowArgs(row)...)
	}

	results := p.pool.SendBatch(ctx, batch)
	var batchErr error
	for range rows {
		if _, err := results.Exec(); err != nil && batchErr == nil {
			batchErr = err
		}
	}
	if err := results.Close(); err != nil && batchErr == nil {
		batchErr = err
	}
	if batchErr == nil {
		return nil, nil
	}

	p.logger.Warn("batch insert failed, isolating rows", slog.Any("error", batchErr))

	var failed []int
	for i, row := range rows {
		if _, err := p.pool.Exec(ctx, insertEventSQL, rowArgs(row)...); err != nil {
			failed = append(failed, i)
			p.logger.Warn("insert rejected", slog.Int("row", i), slog.Any("error", err))
		}
	}

	if len(failed) == len(rows) {
		return nil, fmt.Errorf("batch insert: %w", batchErr)
	}
	return failed, nil
}

func rowArgs(row map[string]interface{}) []interface{} {
	args := make([]interface{}, len(eventColumns))
	for i, col := range eventColumns {
		args[i] = row[col]
	}
	return args
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
