package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"guidestats/internal/visits"
)

// ClickHouseOptions locates the archive database.
type ClickHouseOptions struct {
	Addr        string
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// ClickHouseSink writes visit batches into a MergeTree table.
type ClickHouseSink struct {
	conn  clickhouse.Conn
	table string
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS %s (
    session_id        String,
    page              String,
    page_type         LowCardinality(String),
    page_id           String,
    browser           LowCardinality(String),
    browser_version   String,
    os                LowCardinality(String),
    os_version        String,
    device            LowCardinality(String),
    screen_resolution String,
    country           LowCardinality(String),
    city              String,
    region            LowCardinality(String),
    timezone          String,
    language          String,
    referrer_host     String,
    utm_source        String,
    utm_medium        String,
    utm_campaign      String,
    time_on_page      UInt32,
    scroll_depth      UInt8,
    clicks            UInt32,
    load_time         UInt32,
    is_bounce         Bool,
    is_first_visit    Bool,
    timestamp         DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (timestamp, session_id)`

// NewClickHouseSink connects, pings and ensures the archive table exists.
func NewClickHouseSink(ctx context.Context, opts ClickHouseOptions) (*ClickHouseSink, error) {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "guidestats", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	sink := &ClickHouseSink{conn: conn, table: "visit_events"}
	if err := conn.Exec(ctx, fmt.Sprintf(createTableSQL, sink.table)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create archive table: %w", err)
	}
	return sink, nil
}

// Write sends one batch.
func (s *ClickHouseSink) Write(ctx context.Context, events []visits.VisitEvent) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table)
	if err != nil {
		return fmt.Errorf("failed to prepare archive batch: %w", err)
	}

	for _, e := range events {
		err := batch.Append(
			e.SessionID,
			e.Page,
			e.PageType,
			e.PageID,
			e.Browser,
			e.BrowserVersion,
			e.OS,
			e.OSVersion,
			e.Device,
			e.ScreenResolution,
			e.Country,
			e.City,
			e.Region,
			e.Timezone,
			e.Language,
			e.ReferrerHost,
			e.UTMSource,
			e.UTMMedium,
			e.UTMCampaign,
			uint32(max(0, e.TimeOnPage)),
			uint8(max(0, min(100, e.ScrollDepth))),
			uint32(max(0, e.Clicks)),
			uint32(max(0, e.LoadTime)),
			e.IsBounce,
			e.IsFirstVisit,
			e.Timestamp.UTC(),
		)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append archive row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send archive batch: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
