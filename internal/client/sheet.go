package client

import (
	"fmt"
	"time"
)

// Rolls is the number of roll numbers on a sheet, numbered 1..Rolls.
const Rolls = 100

// Subjects offered by the attendance form.
var Subjects = map[string]string{
	"cn": "CN",
	"os": "OS",
	"bc": "Block Chain",
}

// LectureType is the single lecture kind of a submission.
type LectureType int

const (
	LectureRegular LectureType = iota
	LectureExtra
)

func (l LectureType) String() string {
	if l == LectureExtra {
		return "extra"
	}
	return "regular"
}

// ParseLectureType accepts "regular" or "extra".
func ParseLectureType(s string) (LectureType, error) {
	switch s {
	case "regular", "":
		return LectureRegular, nil
	case "extra":
		return LectureExtra, nil
	default:
		return LectureRegular, fmt.Errorf("unknown lecture type %q", s)
	}
}

// Sheet is the local state of one attendance form.
type Sheet struct {
	Subject string
	Lecture LectureType
	Date    string
	present [Rolls + 1]bool
}

// NewSheet returns a sheet with the form's defaults: subject cn, a regular
// lecture dated today and everyone absent.
func NewSheet(now time.Time) *Sheet {
	return &Sheet{Subject: "cn", Lecture: LectureRegular, Date: now.Format("2006-01-02")}
}

func validRoll(roll int) error {
	if roll < 1 || roll > Rolls {
		return fmt.Errorf("roll %d out of range 1..%d", roll, Rolls)
	}
	return nil
}

// Present reports whether roll is marked present.
func (s *Sheet) Present(roll int) bool {
	return validRoll(roll) == nil && s.present[roll]
}

// Set marks roll present or absent.
func (s *Sheet) Set(roll int, present bool) error {
	if err := validRoll(roll); err != nil {
		return err
	}
	s.present[roll] = present
	return nil
}

// Toggle flips roll.
func (s *Sheet) Toggle(roll int) error {
	if err := validRoll(roll); err != nil {
		return err
	}
	s.present[roll] = !s.present[roll]
	return nil
}

// ClearAll marks everyone absent.
func (s *Sheet) ClearAll() Message {
	for roll := 1; roll <= Rolls; roll++ {
		s.present[roll] = false
	}
	return Info("Cleared selections.")
}

// InvertAll flips every roll.
func (s *Sheet) InvertAll() Message {
	for roll := 1; roll <= Rolls; roll++ {
		s.present[roll] = !s.present[roll]
	}
	return Info("Inverted selections.")
}

// SetLecture selects the lecture type; the previous one is deselected.
func (s *Sheet) SetLecture(l LectureType) {
	s.Lecture = l
}

// PresentCount returns how many rolls are present.
func (s *Sheet) PresentCount() int {
	n := 0
	for roll := 1; roll <= Rolls; roll++ {
		if s.present[roll] {
			n++
		}
	}
	return n
}

// Matrix projects rolls 1..Rolls in order onto "1"/"0".
func (s *Sheet) Matrix() []string {
	out := make([]string, Rolls)
	for i := range out {
		if s.present[i+1] {
			out[i] = "1"
		} else {
			out[i] = "0"
		}
	}
	return out
}

// AttendanceRequest is the wire body of POST /api/attendance.
type AttendanceRequest struct {
	Subject       string   `json:"subject"`
	Date          string   `json:"date"`
	Regular       int      `json:"regular"`
	Extra         int      `json:"extra"`
	PresentMatrix []string `json:"presentMatrix"`
}

// Request builds the wire body. Exactly one of regular/extra is 1.
func (s *Sheet) Request() AttendanceRequest {
	req := AttendanceRequest{Subject: s.Subject, Date: s.Date, PresentMatrix: s.Matrix()}
	if s.Lecture == LectureExtra {
		req.Extra = 1
	} else {
		req.Regular = 1
	}
	return req
}
