package model

import (
	"fmt"
	"strings"
	"time"
)

// DateTime is a decoded datetime.datetime or pandas Timestamp. Naive values
// carry no offset in their textual forms; aware values render the offset of
// Time's location.
type DateTime struct {
	Time  time.Time
	Aware bool
}

// String matches Python's str(): "2024-01-02 03:04:05.123456+00:00".
func (d DateTime) String() string { return d.format(' ') }

// ISOFormat matches Python's isoformat(): "2024-01-02T03:04:05+00:00".
func (d DateTime) ISOFormat() string { return d.format('T') }

func (d DateTime) format(sep byte) string {
	var sb strings.Builder
	sb.WriteString(d.Time.Format("2006-01-02"))
	sb.WriteByte(sep)
	sb.WriteString(d.Time.Format("15:04:05"))
	writeFraction(&sb, d.Time.Nanosecond())
	if d.Aware {
		sb.WriteString(d.Time.Format("-07:00"))
	}
	return sb.String()
}

// writeFraction emits microseconds when the value has no sub-microsecond
// part, nanoseconds otherwise, and nothing for whole seconds.
func writeFraction(sb *strings.Builder, ns int) {
	switch {
	case ns == 0:
	case ns%1000 == 0:
		fmt.Fprintf(sb, ".%06d", ns/1000)
	default:
		fmt.Fprintf(sb, ".%09d", ns)
	}
}

// Date is a decoded datetime.date.
type Date struct {
	Time time.Time
}

func (d Date) String() string    { return d.Time.Format("2006-01-02") }
func (d Date) ISOFormat() string { return d.String() }

// Duration is a decoded datetime.timedelta or numpy timedelta64.
type Duration time.Duration

// String matches Python's timedelta str(): "-1 day, 23:59:59.500000".
func (d Duration) String() string {
	const day = int64(24 * time.Hour)
	ns := int64(d)
	days := ns / day
	rem := ns % day
	if rem < 0 {
		days--
		rem += day
	}
	var sb strings.Builder
	if days != 0 {
		plural := "s"
		if days == 1 || days == -1 {
			plural = ""
		}
		fmt.Fprintf(&sb, "%d day%s, ", days, plural)
	}
	secs := rem / int64(time.Second)
	fmt.Fprintf(&sb, "%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
	writeFraction(&sb, int(rem%int64(time.Second)))
	return sb.String()
}

// NaT is the missing-timestamp marker pandas uses; its isoformat() is "NaT".
type NaT struct{}

func (NaT) String() string    { return "NaT" }
func (NaT) ISOFormat() string { return "NaT" }
