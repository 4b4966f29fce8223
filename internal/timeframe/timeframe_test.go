package timeframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidestats/internal/timeframe"
)

type TestTimeProvider struct {
	CurrentTime time.Time
}

func (p *TestTimeProvider) Now(loc *time.Location) time.Time {
	return p.CurrentTime.In(loc)
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// 2024-07-15 14:30 UTC, a Monday
var fixedTime = time.Date(2024, 7, 15, 14, 30, 0, 0, time.UTC)

func newParser() *timeframe.TimeFrameParser {
	return timeframe.NewTimeFrameParser(&TestTimeProvider{CurrentTime: fixedTime})
}

func TestParsePeriods(t *testing.T) {
	buffered := fixedTime.Add(timeframe.TimeWindowBuffer)

	testCases := []struct {
		name           string
		params         timeframe.TimeFrameParserParams
		expectedFrom   time.Time
		expectedTo     time.Time
		expectedBucket timeframe.TimeFrameBucketSize
	}{
		{
			name:           "today UTC",
			params:         timeframe.TimeFrameParserParams{Period: "today"},
			expectedFrom:   time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
			expectedTo:     buffered,
			expectedBucket: timeframe.TimeFrameBucketSizeHour,
		},
		{
			name:           "today New York",
			params:         timeframe.TimeFrameParserParams{Period: "today", Tz: "America/New_York"},
			expectedFrom:   time.Date(2024, 7, 15, 0, 0, 0, 0, mustLoadLocation("America/New_York")),
			expectedTo:     buffered,
			expectedBucket: timeframe.TimeFrameBucketSizeHour,
		},
		{
			name:           "last 7 days",
			params:         timeframe.TimeFrameParserParams{Period: "7d"},
			expectedFrom:   time.Date(2024, 7, 9, 0, 0, 0, 0, time.UTC),
			expectedTo:     buffered,
			expectedBucket: timeframe.TimeFrameBucketSizeDay,
		},
		{
			name:           "default is last 30 days",
			params:         timeframe.TimeFrameParserParams{},
			expectedFrom:   time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC),
			expectedTo:     buffered,
			expectedBucket: timeframe.TimeFrameBucketSizeDay,
		},
		{
			name:           "last 90 days",
			params:         timeframe.TimeFrameParserParams{Period: "90d"},
			expectedFrom:   time.Date(2024, 4, 17, 0, 0, 0, 0, time.UTC),
			expectedTo:     buffered,
			expectedBucket: timeframe.TimeFrameBucketSizeDay,
		},
		{
			name:           "last 12 months",
			params:         timeframe.TimeFrameParserParams{Period: "12m"},
			expectedFrom:   time.Date(2023, 7, 16, 0, 0, 0, 0, time.UTC),
			expectedTo:     buffered,
			expectedBucket: timeframe.TimeFrameBucketSizeMonth,
		},
		{
			name: "all time starts at first event",
			params: timeframe.TimeFrameParserParams{
				Period:              "all",
				AllTimeFirstEventAt: time.Date(2024, 7, 13, 18, 0, 0, 0, time.UTC),
			},
			expectedFrom:   time.Date(2024, 7, 13, 0, 0, 0, 0, time.UTC),
			expectedTo:     buffered,
			expectedBucket: timeframe.TimeFrameBucketSizeDay,
		},
		{
			name:           "all time without data is today",
			params:         timeframe.TimeFrameParserParams{Period: "all"},
			expectedFrom:   time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
			expectedTo:     buffered,
			expectedBucket: timeframe.TimeFrameBucketSizeHour,
		},
	}

	parser := newParser()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tf, err := parser.ParseTimeFrame(tc.params)
			require.NoError(t, err)
			assert.True(t, tc.expectedFrom.Equal(tf.From), "from: want %v got %v", tc.expectedFrom, tf.From)
			assert.True(t, tc.expectedTo.Equal(tf.To), "to: want %v got %v", tc.expectedTo, tf.To)
			assert.Equal(t, tc.expectedBucket, tf.BucketSize)
			assert.Equal(t, time.UTC, tf.From.Location())
		})
	}
}

func TestParseCustomRange(t *testing.T) {
	ny := mustLoadLocation("America/New_York")
	parser := newParser()

	tf, err := parser.ParseTimeFrame(timeframe.TimeFrameParserParams{
		FromDate: "2024-07-01",
		ToDate:   "2024-07-10",
		Tz:       "America/New_York",
	})
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 7, 1, 0, 0, 0, 0, ny).Equal(tf.From))
	assert.True(t, time.Date(2024, 7, 10, 23, 59, 59, 999999999, ny).Equal(tf.To))
	assert.Equal(t, ny, tf.Tz)
	assert.Equal(t, timeframe.TimeFrameBucketSizeDay, tf.BucketSize)
}

func TestParseClampsFutureEnd(t *testing.T) {
	tf, err := newParser().ParseTimeFrame(timeframe.TimeFrameParserParams{
		FromDate: "2024-07-15",
		ToDate:   "2024-07-20",
	})
	require.NoError(t, err)
	assert.True(t, fixedTime.Add(timeframe.TimeWindowBuffer).Equal(tf.To))
}

func TestParseOnlyFromDefaultsToNow(t *testing.T) {
	tf, err := newParser().ParseTimeFrame(timeframe.TimeFrameParserParams{FromDate: "2024-07-14"})
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 7, 14, 0, 0, 0, 0, time.UTC).Equal(tf.From))
	assert.True(t, fixedTime.Add(timeframe.TimeWindowBuffer).Equal(tf.To))
}

func TestParseRejectsInvalidInput(t *testing.T) {
	testCases := []struct {
		name   string
		params timeframe.TimeFrameParserParams
	}{
		{"malformed from", timeframe.TimeFrameParserParams{FromDate: "15/07/2024"}},
		{"malformed to", timeframe.TimeFrameParserParams{ToDate: "2024-13-01"}},
		{"from after to", timeframe.TimeFrameParserParams{FromDate: "2024-07-10", ToDate: "2024-07-01"}},
		{"unknown period", timeframe.TimeFrameParserParams{Period: "fortnight"}},
		{"unknown timezone", timeframe.TimeFrameParserParams{Period: "7d", Tz: "Mars/Olympus_Mons"}},
		{"period and dates", timeframe.TimeFrameParserParams{Period: "7d", FromDate: "2024-07-01"}},
	}

	parser := newParser()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parser.ParseTimeFrame(tc.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, timeframe.ErrInvalidTimeFrame)
		})
	}
}

func TestSQLiteModifier(t *testing.T) {
	testCases := []struct {
		tz   string
		want string
	}{
		{"UTC", "+0 minutes"},
		{"Europe/Berlin", "+120 minutes"},
		{"America/New_York", "-240 minutes"},
		{"Asia/Kolkata", "+330 minutes"},
	}

	for _, tc := range testCases {
		t.Run(tc.tz, func(t *testing.T) {
			tf, err := timeframe.NewTimeFrame(fixedTime.Add(-time.Hour), fixedTime, mustLoadLocation(tc.tz))
			require.NoError(t, err)
			assert.Equal(t, tc.want, tf.SQLiteModifier())
		})
	}
}

func TestOffsetUsesRangeEnd(t *testing.T) {
	berlin := mustLoadLocation("Europe/Berlin")
	// Spans the switch to summer time on 2024-03-31.
	tf, err := timeframe.NewTimeFrame(
		time.Date(2024, 3, 25, 0, 0, 0, 0, berlin),
		time.Date(2024, 4, 5, 0, 0, 0, 0, berlin),
		berlin,
	)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, tf.Offset())
}

func TestBucketKeys(t *testing.T) {
	parser := newParser()

	today, err := parser.ParseTimeFrame(timeframe.TimeFrameParserParams{Period: "today"})
	require.NoError(t, err)
	keys := today.BucketKeys()
	require.Len(t, keys, 15)
	assert.Equal(t, "2024-07-15 00", keys[0])
	assert.Equal(t, "2024-07-15 14", keys[14])

	week, err := parser.ParseTimeFrame(timeframe.TimeFrameParserParams{Period: "7d"})
	require.NoError(t, err)
	keys = week.BucketKeys()
	require.Len(t, keys, 7)
	assert.Equal(t, "2024-07-09", keys[0])
	assert.Equal(t, "2024-07-15", keys[6])

	year, err := parser.ParseTimeFrame(timeframe.TimeFrameParserParams{Period: "12m"})
	require.NoError(t, err)
	keys = year.BucketKeys()
	require.Len(t, keys, 13)
	assert.Equal(t, "2023-07", keys[0])
	assert.Equal(t, "2024-07", keys[12])
	assert.Equal(t, "%Y-%m", year.SQLiteBucketFormat())
}

func TestBuildTimeSeriesPointsZeroFills(t *testing.T) {
	tf, err := newParser().ParseTimeFrame(timeframe.TimeFrameParserParams{Period: "7d", Tz: "Europe/Berlin"})
	require.NoError(t, err)

	points := tf.BuildTimeSeriesPoints([]timeframe.DateStat{
		{Date: "2024-07-10", Count: 4},
		{Date: "2024-07-15", Count: 2},
		{Date: "2023-01-01", Count: 99},
	})

	require.Len(t, points, 7)
	assert.Equal(t, "2024-07-09T00:00:00+02:00", points[0].Date)
	assert.Equal(t, 0, points[0].Count)
	assert.Equal(t, 4, points[1].Count)
	assert.Equal(t, 2, points[6].Count)

	total := 0
	for _, p := range points {
		total += p.Count
	}
	assert.Equal(t, 6, total, "rows outside the window are ignored")
}

func TestNewTimeFrameRejectsInvertedRange(t *testing.T) {
	_, err := timeframe.NewTimeFrame(fixedTime, fixedTime.Add(-time.Minute), time.UTC)
	assert.ErrorIs(t, err, timeframe.ErrInvalidTimeFrame)
}
