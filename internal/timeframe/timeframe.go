package timeframe

import (
	"fmt"
	"time"
)

// DateStat is one point of a zero-filled time series.
type DateStat struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type TimeFrameBucketSize string

const (
	TimeFrameBucketSizeMonth TimeFrameBucketSize = "month"
	TimeFrameBucketSizeDay   TimeFrameBucketSize = "day"
	TimeFrameBucketSizeHour  TimeFrameBucketSize = "hour"
)

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// TimeFrame is a closed [From, To] window stored in UTC together with the
// caller's timezone, which drives every calendar bucket.
type TimeFrame struct {
	From       time.Time
	To         time.Time
	BucketSize TimeFrameBucketSize
	Tz         *time.Location
}

// maxPoints bounds generated series.
const maxPoints = 1000

func NewTimeFrame(from, to time.Time, tz *time.Location) (*TimeFrame, error) {
	if from.After(to) {
		return nil, fmt.Errorf("%w: from must be before to", ErrInvalidTimeFrame)
	}
	if tz == nil {
		tz = time.UTC
	}
	return &TimeFrame{
		From:       from.UTC(),
		To:         to.UTC(),
		BucketSize: GetAppropriateBucketSize(from, to),
		Tz:         tz,
	}, nil
}

// GetAppropriateBucketSize picks hourly buckets for windows under two days,
// daily buckets up to a quarter and monthly buckets beyond.
func GetAppropriateBucketSize(from, to time.Time) TimeFrameBucketSize {
	days := to.Sub(from).Hours() / 24

	switch {
	case days > 92:
		return TimeFrameBucketSizeMonth
	case days >= 2:
		return TimeFrameBucketSizeDay
	default:
		return TimeFrameBucketSizeHour
	}
}

func (tf *TimeFrame) Duration() time.Duration {
	return tf.To.Sub(tf.From)
}

// Offset is the timezone's UTC offset in effect at the end of the window.
// SQLite has no zone database, so histograms shift every row by this one
// fixed offset.
func (tf *TimeFrame) Offset() time.Duration {
	_, offset := tf.To.In(tf.Tz).Zone()
	return time.Duration(offset) * time.Second
}

// SQLiteModifier renders Offset as a strftime modifier such as "+120 minutes".
func (tf *TimeFrame) SQLiteModifier() string {
	return fmt.Sprintf("%+d minutes", int(tf.Offset()/time.Minute))
}

// SQLiteBucketFormat is the strftime format grouping rows into the frame's
// buckets.
func (tf *TimeFrame) SQLiteBucketFormat() string {
	switch tf.BucketSize {
	case TimeFrameBucketSizeHour:
		return "%Y-%m-%d %H"
	case TimeFrameBucketSizeMonth:
		return "%Y-%m"
	default:
		return "%Y-%m-%d"
	}
}

func (tf *TimeFrame) goBucketFormat() string {
	switch tf.BucketSize {
	case TimeFrameBucketSizeHour:
		return "2006-01-02 15"
	case TimeFrameBucketSizeMonth:
		return "2006-01"
	default:
		return "2006-01-02"
	}
}

func (tf *TimeFrame) zone() *time.Location {
	return time.FixedZone("", int(tf.Offset()/time.Second))
}

// truncate floors t to its bucket in loc.
func (tf *TimeFrame) truncate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()

	switch tf.BucketSize {
	case TimeFrameBucketSizeMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case TimeFrameBucketSizeDay:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, local.Hour(), 0, 0, 0, loc)
	}
}

func (tf *TimeFrame) next(t time.Time) time.Time {
	switch tf.BucketSize {
	case TimeFrameBucketSizeMonth:
		return t.AddDate(0, 1, 0)
	case TimeFrameBucketSizeDay:
		return t.AddDate(0, 0, 1)
	default:
		return t.Add(time.Hour)
	}
}

// BucketKeys lists the bucket keys covering the window, in the format
// produced by SQLiteBucketFormat with SQLiteModifier applied.
func (tf *TimeFrame) BucketKeys() []string {
	loc := tf.zone()
	format := tf.goBucketFormat()
	end := tf.truncate(tf.To, loc)

	var keys []string
	for current := tf.truncate(tf.From, loc); !current.After(end) && len(keys) < maxPoints; current = tf.next(current) {
		keys = append(keys, current.Format(format))
	}
	return keys
}

// BuildTimeSeriesPoints zero-fills grouped counts over every bucket of the
// window. Dates are returned as RFC 3339 bucket starts in the frame's offset.
func (tf *TimeFrame) BuildTimeSeriesPoints(grouped []DateStat) []DateStat {
	loc := tf.zone()
	format := tf.goBucketFormat()

	counts := make(map[string]int, len(grouped))
	for _, g := range grouped {
		counts[g.Date] += g.Count
	}

	keys := tf.BucketKeys()
	points := make([]DateStat, 0, len(keys))
	for _, key := range keys {
		start, err := time.ParseInLocation(format, key, loc)
		if err != nil {
			continue
		}
		points = append(points, DateStat{Date: start.Format(time.RFC3339), Count: counts[key]})
	}
	return points
}
