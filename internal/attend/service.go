package attend

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/autoclass/attendd/internal/history"
	"github.com/autoclass/attendd/internal/model"
	"github.com/autoclass/attendd/internal/portal"
)

// signWindowLead is how early before class start a sign-in is accepted.
const signWindowLead = 10 * time.Minute

const dateLayout = "20060102"

// SSOClient authenticates a student against the SSO portal and yields the
// downstream login name.
type SSOClient interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// PortalClient covers the attendance application endpoints the service needs.
type PortalClient interface {
	Login(ctx context.Context, loginName string) (userID, sessionID string, err error)
	FetchSchedule(ctx context.Context, userID, sessionID, dateStr string) ([]model.CourseSession, error)
	Sign(ctx context.Context, userID, courseSchedID string, now time.Time) (portal.SignOutcome, error)
}

// SignResult is the classified outcome of one sign-in attempt.
type SignResult struct {
	CourseSchedID string
	CourseName    string
	Outcome       portal.SignOutcome
	Err           error
}

// Service owns the per-account attendance pipeline: session freshness,
// schedule cache and sign-in evaluation. One Service is shared by the poll
// scheduler, the console and the admin API.
type Service struct {
	sso      SSOClient
	portal   PortalClient
	recorder history.Recorder

	// sessionTTL is how long a login is trusted before the next tick
	// re-authenticates. The server gives no expiry signal, so freshness is
	// purely time-based.
	sessionTTL time.Duration

	// dateOverride forces the schedule target date (YYYYMMDD) when set;
	// a debugging hook.
	dateOverride string
}

// NewService creates the attendance service.
func NewService(ssoClient SSOClient, portalClient PortalClient, recorder history.Recorder, sessionTTL time.Duration, dateOverride string) *Service {
	return &Service{
		sso:          ssoClient,
		portal:       portalClient,
		recorder:     recorder,
		sessionTTL:   sessionTTL,
		dateOverride: dateOverride,
	}
}

// NeedsReauth reports whether the account's session is absent or older than
// the session TTL. Caller holds the account lock.
func (s *Service) NeedsReauth(acct *model.Account, now time.Time) bool {
	return !acct.LoggedIn || now.Sub(acct.LastLoginAt) > s.sessionTTL
}

// Authenticate runs the full login chain (SSO then application login) and,
// on success, immediately reloads the day's schedule. On failure the account
// is marked logged out and prior tokens are left as-is; the caller treats
// them as invalid either way. Caller holds the account lock.
func (s *Service) Authenticate(ctx context.Context, acct *model.Account, now time.Time) error {
	masked := model.MaskStudentNumber(acct.StudentNumber)

	loginName, err := s.sso.Login(ctx, acct.StudentNumber, acct.Password)
	if err != nil {
		acct.LoggedIn = false
		return fmt.Errorf("sso login for %s: %w", masked, err)
	}

	userID, sessionID, err := s.portal.Login(ctx, loginName)
	if err != nil {
		acct.LoggedIn = false
		return fmt.Errorf("app login for %s: %w", masked, err)
	}

	acct.UserID = userID
	acct.SessionID = sessionID
	acct.LoggedIn = true
	acct.LastLoginAt = now
	log.Printf("account %s logged in", masked)

	if err := s.RefreshSchedule(ctx, acct, s.targetDate(now)); err != nil {
		// The session itself is good; the next tick retries the schedule.
		log.Printf("account %s: schedule refresh after login failed: %v", masked, err)
	}
	return nil
}

// targetDate returns the YYYYMMDD date the schedule cache should reflect.
func (s *Service) targetDate(now time.Time) string {
	if s.dateOverride != "" {
		return s.dateOverride
	}
	return now.Format(dateLayout)
}

// NeedsRefresh reports whether the schedule cache must be reloaded for
// dateStr: never loaded, loaded for another day, or empty after a prior
// attempt. Caller holds the account lock.
func (s *Service) NeedsRefresh(acct *model.Account, dateStr string) bool {
	return acct.ScheduleDate == "" || acct.ScheduleDate != dateStr || len(acct.TodayCourses) == 0
}

// RefreshSchedule replaces the account's course cache with the schedule for
// dateStr and resets the signed-course dedup set; a refresh always stands
// for a fresh day's state. On error the previous cache is kept so stale data
// can still be evaluated. Caller holds the account lock.
func (s *Service) RefreshSchedule(ctx context.Context, acct *model.Account, dateStr string) error {
	masked := model.MaskStudentNumber(acct.StudentNumber)

	courses, err := s.portal.FetchSchedule(ctx, acct.UserID, acct.SessionID, dateStr)
	if err != nil {
		return fmt.Errorf("load schedule for %s: %w", masked, err)
	}

	acct.TodayCourses = make(map[string]model.CourseSession, len(courses))
	acct.SignedCourses = make(map[string]struct{})
	for _, c := range courses {
		acct.TodayCourses[c.ID] = c
	}
	acct.ScheduleDate = dateStr

	if len(courses) == 0 {
		log.Printf("account %s: no courses on %s", masked, dateStr)
	} else {
		log.Printf("account %s: %d courses on %s", masked, len(courses), dateStr)
	}
	return nil
}

// EvaluateAndSign tries to sign in every cached course whose eligibility
// window contains now and that has not been signed today. A course gets at
// most one outbound sign-in call per evaluation; only a success marks it
// signed, so an ambiguous-not-open course is retried on the next tick.
// Caller holds the account lock.
func (s *Service) EvaluateAndSign(ctx context.Context, acct *model.Account, now time.Time, tickID uuid.UUID) []SignResult {
	masked := model.MaskStudentNumber(acct.StudentNumber)
	var results []SignResult

	for id, course := range acct.TodayCourses {
		if _, signed := acct.SignedCourses[id]; signed {
			continue
		}
		if !inWindow(course, now) {
			continue
		}

		log.Printf("account %s: course %q in session, signing in", masked, course.CourseName)
		outcome, err := s.portal.Sign(ctx, acct.UserID, id, now)
		res := SignResult{CourseSchedID: id, CourseName: course.CourseName, Outcome: outcome, Err: err}
		results = append(results, res)

		switch outcome {
		case portal.SignSucceeded:
			acct.SignedCourses[id] = struct{}{}
			log.Printf("account %s: signed in for %q", masked, course.CourseName)
		case portal.SignAmbiguousNotOpen:
			log.Printf("account %s: scan sign-in not open yet for %q", masked, course.CourseName)
		case portal.SignFailed:
			log.Printf("account %s: sign-in failed for %q: %v", masked, course.CourseName, err)
		}

		if recErr := s.recorder.Record(ctx, history.Entry{
			TickID:        tickID,
			StudentNumber: acct.StudentNumber,
			CourseSchedID: id,
			CourseName:    course.CourseName,
			Outcome:       outcome.String(),
			AttemptedAt:   now,
		}); recErr != nil {
			log.Printf("account %s: record sign-in history: %v", masked, recErr)
		}
	}
	return results
}

// ProcessAccount runs one full cycle for a single account: re-authenticate
// if the session is stale, reload the schedule if the cache policy asks for
// it (always, when forceRefresh is set by a manual check), then evaluate
// sign-ins. Errors are returned for logging but leave the account in a state
// the next tick can retry from.
func (s *Service) ProcessAccount(ctx context.Context, acct *model.Account, now time.Time, tickID uuid.UUID, forceRefresh bool) error {
	acct.Lock()
	defer acct.Unlock()

	masked := model.MaskStudentNumber(acct.StudentNumber)

	if s.NeedsReauth(acct, now) {
		log.Printf("account %s: session absent or stale, logging in", masked)
		acct.LoggedIn = false
		if err := s.Authenticate(ctx, acct, now); err != nil {
			return err
		}
	}

	dateStr := s.targetDate(now)
	if forceRefresh || s.NeedsRefresh(acct, dateStr) {
		if err := s.RefreshSchedule(ctx, acct, dateStr); err != nil {
			// Keep whatever cache is there; evaluate it anyway.
			log.Printf("account %s: %v", masked, err)
		}
	}

	s.EvaluateAndSign(ctx, acct, now, tickID)
	return nil
}

// inWindow reports whether now falls inside the course's eligibility window
// [begin-10min, end).
func inWindow(c model.CourseSession, now time.Time) bool {
	open := c.BeginTime.Add(-signWindowLead)
	return !now.Before(open) && now.Before(c.EndTime)
}
