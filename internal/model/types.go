package model

import (
	"sync"
	"time"
)

// CourseSession is one scheduled meeting of a course on a specific day.
// Its ID is unique per meeting instance, not per course.
type CourseSession struct {
	ID         string
	CourseName string
	BeginTime  time.Time
	EndTime    time.Time
}

// Account holds one student's credentials and the per-day session state the
// poller mutates. Callers must hold the account's lock while touching any
// field below Password; the registry hands out shared pointers.
type Account struct {
	StudentNumber string
	Password      string

	mu sync.Mutex

	UserID      string
	SessionID   string
	LoggedIn    bool
	LastLoginAt time.Time

	// SignedCourses tracks course session ids already signed today. Cleared
	// whenever the schedule is reloaded, never entry by entry.
	SignedCourses map[string]struct{}

	// TodayCourses is today's schedule keyed by course session id, replaced
	// wholesale on each successful refresh.
	TodayCourses map[string]CourseSession

	// ScheduleDate is the YYYYMMDD date TodayCourses reflects; empty until
	// the first successful refresh.
	ScheduleDate string
}

// NewAccount creates an unauthenticated account.
func NewAccount(studentNumber, password string) *Account {
	return &Account{
		StudentNumber: studentNumber,
		Password:      password,
		SignedCourses: make(map[string]struct{}),
		TodayCourses:  make(map[string]CourseSession),
	}
}

// Lock serializes operations against this account. The timer tick and the
// manual-check path both take it, so authentication and evaluation never run
// concurrently for the same account.
func (a *Account) Lock() { a.mu.Lock() }

// Unlock releases the account.
func (a *Account) Unlock() { a.mu.Unlock() }

// MaskStudentNumber hides the middle of a student number for logs and
// listings ("12345678" -> "12****78").
func MaskStudentNumber(studentNumber string) string {
	if len(studentNumber) <= 4 {
		return studentNumber
	}
	return studentNumber[:2] + "****" + studentNumber[len(studentNumber)-2:]
}
