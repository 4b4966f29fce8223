package stats

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"guidestats/internal/timeframe"
)

type bucketCount struct {
	Bucket int
	Count  int64
}

// bucketCounts groups page views by an integer strftime field, shifted into
// the request timezone.
func bucketCounts(ctx context.Context, db *gorm.DB, q Query, field string) ([]bucketCount, error) {
	var raw []bucketCount

	where, args := q.visitScope()
	query := `
    SELECT
        CAST(strftime('` + field + `', timestamp, ?) AS INTEGER) as bucket,
        COUNT(*) as count
    FROM visit_events
    WHERE ` + where + `
    GROUP BY bucket
    `

	args = append([]any{q.TimeFrame.SQLiteModifier()}, args...)
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&raw).Error; err != nil {
		return nil, err
	}
	return raw, nil
}

// GetHourlyStats returns exactly 24 hour-of-day buckets.
func GetHourlyStats(ctx context.Context, db *gorm.DB, q Query) ([]HourStat, error) {
	raw, err := bucketCounts(ctx, db, q, "%H")
	if err != nil {
		return nil, fmt.Errorf("error fetching hourly stats: %w", err)
	}

	results := make([]HourStat, 24)
	for h := range results {
		results[h].Hour = h
	}
	for _, r := range raw {
		if r.Bucket >= 0 && r.Bucket < 24 {
			results[r.Bucket].Count += r.Count
		}
	}
	return results, nil
}

// GetWeeklyStats returns exactly 7 day-of-week buckets starting on Sunday.
func GetWeeklyStats(ctx context.Context, db *gorm.DB, q Query) ([]WeekdayStat, error) {
	raw, err := bucketCounts(ctx, db, q, "%w")
	if err != nil {
		return nil, fmt.Errorf("error fetching weekly stats: %w", err)
	}

	results := make([]WeekdayStat, 7)
	for d := range results {
		results[d].Day = d
		results[d].Name = time.Weekday(d).String()
	}
	for _, r := range raw {
		if r.Bucket >= 0 && r.Bucket < 7 {
			results[r.Bucket].Count += r.Count
		}
	}
	return results, nil
}

// GetTimeline returns zero-filled page views per bucket of the time frame.
func GetTimeline(ctx context.Context, db *gorm.DB, q Query) ([]timeframe.DateStat, error) {
	var raw []timeframe.DateStat

	tf := q.TimeFrame
	where, args := q.visitScope()
	query := `
    SELECT
        strftime('` + tf.SQLiteBucketFormat() + `', timestamp, ?) as date,
        COUNT(*) as count
    FROM visit_events
    WHERE ` + where + `
    GROUP BY date
    `

	args = append([]any{tf.SQLiteModifier()}, args...)
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&raw).Error; err != nil {
		return nil, fmt.Errorf("error fetching timeline: %w", err)
	}
	return tf.BuildTimeSeriesPoints(raw), nil
}
