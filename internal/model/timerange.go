package model

// TimeRange is the first and last timestamp of a candle file, as ISO-8601.
type TimeRange struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Instant is a point in time that can render itself like Python's isoformat().
type Instant interface {
	ISOFormat() string
}

func NewTimeRange(first, last Instant) *TimeRange {
	return &TimeRange{StartTime: first.ISOFormat(), EndTime: last.ISOFormat()}
}
