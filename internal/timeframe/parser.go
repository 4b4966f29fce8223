package timeframe

import (
	"errors"
	"fmt"
	"time"
)

// TimeWindowBuffer is added to "now" when a range ends today so events
// recorded with slightly skewed clocks are still included.
const TimeWindowBuffer = 5 * time.Minute

// ErrInvalidTimeFrame wraps every parse failure.
var ErrInvalidTimeFrame = errors.New("invalid time frame")

// Named periods
const (
	PeriodToday    = "today"
	Period7Days    = "7d"
	Period30Days   = "30d"
	Period90Days   = "90d"
	Period12Months = "12m"
	PeriodAll      = "all"
)

// DefaultPeriod applies when neither a period nor dates are given.
const DefaultPeriod = Period30Days

type TimeFrameParserParams struct {
	FromDate string
	ToDate   string
	Period   string
	Tz       string
	// AllTimeFirstEventAt anchors the "all" period; zero means no data yet.
	AllTimeFirstEventAt time.Time
}

type TimeFrameParser struct {
	timeProvider TimeProvider
}

func NewTimeFrameParser(timeProvider ...TimeProvider) *TimeFrameParser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}

	return &TimeFrameParser{
		timeProvider: provider,
	}
}

// LoadLocation resolves a tz parameter, defaulting to UTC.
func LoadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidTimeFrame, tz)
	}
	return loc, nil
}

func (p *TimeFrameParser) ParseTimeFrame(params TimeFrameParserParams) (*TimeFrame, error) {
	loc, err := LoadLocation(params.Tz)
	if err != nil {
		return nil, err
	}

	hasDates := params.FromDate != "" || params.ToDate != ""
	if hasDates && params.Period != "" {
		return nil, fmt.Errorf("%w: use either period or from/to", ErrInvalidTimeFrame)
	}

	var from, to time.Time
	if hasDates {
		from, to, err = p.parseCustomDateRange(params, loc)
	} else {
		period := params.Period
		if period == "" {
			period = DefaultPeriod
		}
		from, to, err = p.parsePeriod(period, params.AllTimeFirstEventAt, loc)
	}
	if err != nil {
		return nil, err
	}

	return NewTimeFrame(from, to, loc)
}

func (p *TimeFrameParser) parsePeriod(period string, firstEventAt time.Time, loc *time.Location) (time.Time, time.Time, error) {
	now := p.timeProvider.Now(loc)
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	to := p.clampEnd(endOfDay(startOfToday), now)

	var from time.Time
	switch period {
	case PeriodToday:
		from = startOfToday
	case Period7Days:
		from = startOfToday.AddDate(0, 0, -6)
	case Period30Days:
		from = startOfToday.AddDate(0, 0, -29)
	case Period90Days:
		from = startOfToday.AddDate(0, 0, -89)
	case Period12Months:
		from = startOfToday.AddDate(-1, 0, 1)
	case PeriodAll:
		from = startOfToday
		if !firstEventAt.IsZero() && firstEventAt.Before(from) {
			first := firstEventAt.In(loc)
			from = time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
		}
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown period %q", ErrInvalidTimeFrame, period)
	}
	return from, to, nil
}

func (p *TimeFrameParser) parseCustomDateRange(params TimeFrameParserParams, loc *time.Location) (time.Time, time.Time, error) {
	now := p.timeProvider.Now(loc)
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	from, err := p.parseDateWithDefault(params.FromDate, startOfToday.AddDate(0, 0, -29), loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid 'from' date: %v", ErrInvalidTimeFrame, err)
	}

	to, err := p.parseDateWithDefault(params.ToDate, p.clampEnd(endOfDay(startOfToday), now), loc, true)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid 'to' date: %v", ErrInvalidTimeFrame, err)
	}

	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: 'from' is after 'to'", ErrInvalidTimeFrame)
	}
	return from, to, nil
}

func (p *TimeFrameParser) parseDateWithDefault(dateStr string, defaultDate time.Time, loc *time.Location, isEndDate bool) (time.Time, error) {
	if dateStr == "" {
		return defaultDate, nil
	}

	date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return time.Time{}, err
	}

	if isEndDate {
		return p.clampEnd(endOfDay(date), p.timeProvider.Now(loc)), nil
	}
	return date, nil
}

// clampEnd keeps an end bound from reaching past now plus the buffer.
func (p *TimeFrameParser) clampEnd(end, now time.Time) time.Time {
	if buffered := now.Add(TimeWindowBuffer); end.After(buffered) {
		return buffered
	}
	return end
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, t.Location())
}
