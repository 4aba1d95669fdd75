package monitor

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Schedule describes the shift window and the lunch break, both as local
// wall-clock times. A shift may cross midnight (start > end).
type Schedule struct {
	shiftStart clock
	shiftEnd   clock
	breakStart clock
	breakEnd   clock
	hasBreak   bool
}

type clock struct {
	hour, minute int
}

func (c clock) minutes() int { return c.hour*60 + c.minute }

func parseClock(s string) (clock, error) {
	var h, m int
	if len(s) != 5 || s[2] != ':' {
		return clock{}, errors.Errorf("bad time %q, want HH:MM", s)
	}
	for _, r := range s[:2] + s[3:] {
		if r < '0' || r > '9' {
			return clock{}, errors.Errorf("bad time %q, want HH:MM", s)
		}
	}
	h = int(s[0]-'0')*10 + int(s[1]-'0')
	m = int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 23 || m > 59 {
		return clock{}, errors.Errorf("time %q out of range", s)
	}
	return clock{hour: h, minute: m}, nil
}

func NewSchedule(shiftStart, shiftEnd, breakStart, breakEnd string) (*Schedule, error) {
	ss, err := parseClock(shiftStart)
	if err != nil {
		return nil, errors.Wrap(err, "shift start")
	}
	se, err := parseClock(shiftEnd)
	if err != nil {
		return nil, errors.Wrap(err, "shift end")
	}

	sch := &Schedule{shiftStart: ss, shiftEnd: se}

	if breakStart != "" && breakEnd != "" {
		bs, err := parseClock(breakStart)
		if err != nil {
			return nil, errors.Wrap(err, "break start")
		}
		be, err := parseClock(breakEnd)
		if err != nil {
			return nil, errors.Wrap(err, "break end")
		}
		sch.breakStart = bs
		sch.breakEnd = be
		sch.hasBreak = true
	}

	return sch, nil
}

// ShiftActive reports whether t falls inside the shift window, inclusive on
// both ends. Ночная смена (start > end) проверяется через "или".
func (s *Schedule) ShiftActive(t time.Time) bool {
	now := t.Hour()*60 + t.Minute()
	start, end := s.shiftStart.minutes(), s.shiftEnd.minutes()

	if start > end {
		return now >= start || now <= end
	}
	return now >= start && now <= end
}

// BreakActive reports whether t falls inside the lunch break.
func (s *Schedule) BreakActive(t time.Time) bool {
	if !s.hasBreak {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	return now >= s.breakStart.minutes() && now <= s.breakEnd.minutes()
}

func (s *Schedule) ShiftStartString() string { return formatClock(s.shiftStart) }
func (s *Schedule) ShiftEndString() string   { return formatClock(s.shiftEnd) }

func formatClock(c clock) string {
	return fmt.Sprintf("%02d:%02d", c.hour, c.minute)
}
