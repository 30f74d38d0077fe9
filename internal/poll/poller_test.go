package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoclass/attendd/internal/attend"
	"github.com/autoclass/attendd/internal/history"
	"github.com/autoclass/attendd/internal/model"
	"github.com/autoclass/attendd/internal/portal"
	"github.com/autoclass/attendd/internal/registry"
)

type stubSSO struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]bool

	// active/maxActive detect overlapping cycles.
	active    int
	maxActive int
	delay     time.Duration
}

func (s *stubSSO) Login(ctx context.Context, username, password string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, username)
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	fail := s.failFor[username]
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	s.active--
	s.mu.Unlock()

	if fail {
		return "", errors.New("sso down for this account")
	}
	return "0ABC12DE", nil
}

type stubPortal struct {
	mu         sync.Mutex
	fetchCalls int

	// active/maxActive detect overlapping cycles.
	active    int
	maxActive int
	delay     time.Duration
}

func (s *stubPortal) Login(ctx context.Context, loginName string) (string, string, error) {
	return "u-77", "sess-42", nil
}

func (s *stubPortal) FetchSchedule(ctx context.Context, userID, sessionID, dateStr string) ([]model.CourseSession, error) {
	s.mu.Lock()
	s.fetchCalls++
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	s.active--
	s.mu.Unlock()

	return []model.CourseSession{{ID: "cs-1", CourseName: "OS",
		BeginTime: time.Now().Add(time.Hour), EndTime: time.Now().Add(2 * time.Hour)}}, nil
}

func (s *stubPortal) Sign(ctx context.Context, userID, courseSchedID string, now time.Time) (portal.SignOutcome, error) {
	return portal.SignSucceeded, nil
}

func newTestPoller(ssoStub *stubSSO, portalStub *stubPortal, reg *registry.Registry) *Poller {
	svc := attend.NewService(ssoStub, portalStub, history.NewNopRecorder(), 30*time.Minute, "")
	return New(svc, reg, time.Minute)
}

func TestRunCycle_accountFailureIsIsolated(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Add(model.NewAccount("11111111", "pw")))
	require.NoError(t, reg.Add(model.NewAccount("22222222", "pw")))

	ssoStub := &stubSSO{failFor: map[string]bool{"11111111": true}}
	p := newTestPoller(ssoStub, &stubPortal{}, reg)

	p.RunCycle(context.Background(), false)

	assert.Len(t, ssoStub.calls, 2, "a failing account must not stop the others")
	good, _ := reg.Get("22222222")
	good.Lock()
	assert.True(t, good.LoggedIn)
	good.Unlock()
	bad, _ := reg.Get("11111111")
	bad.Lock()
	assert.False(t, bad.LoggedIn)
	bad.Unlock()
}

func TestRunNow_forcesScheduleReload(t *testing.T) {
	reg := registry.New()
	acct := model.NewAccount("21371234", "pw")
	acct.UserID = "u-77"
	acct.SessionID = "sess-42"
	acct.LoggedIn = true
	acct.LastLoginAt = time.Now()
	acct.ScheduleDate = time.Now().Format("20060102")
	acct.TodayCourses["cs-1"] = model.CourseSession{ID: "cs-1",
		BeginTime: time.Now().Add(time.Hour), EndTime: time.Now().Add(2 * time.Hour)}
	require.NoError(t, reg.Add(acct))

	portalStub := &stubPortal{}
	p := newTestPoller(&stubSSO{}, portalStub, reg)

	p.RunNow(context.Background())

	assert.Equal(t, 1, portalStub.fetchCalls, "manual check must reload even a fresh cache")
}

// Concurrent cycle triggers (timer tick vs manual check) must execute
// back-to-back, never interleaved. A slow cycle therefore delays the next
// one rather than overlapping it; that is the intended fixed-rate model.
func TestCyclesNeverOverlap(t *testing.T) {
	reg := registry.New()
	acct := model.NewAccount("21371234", "pw")
	acct.UserID = "u-77"
	acct.SessionID = "sess-42"
	acct.LoggedIn = true
	acct.LastLoginAt = time.Now()
	require.NoError(t, reg.Add(acct))

	portalStub := &stubPortal{delay: 30 * time.Millisecond}
	p := newTestPoller(&stubSSO{}, portalStub, reg)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Forced cycles always hit the schedule endpoint, where overlap
			// would show up.
			p.RunNow(context.Background())
		}()
	}
	wg.Wait()

	portalStub.mu.Lock()
	defer portalStub.mu.Unlock()
	assert.Equal(t, 4, portalStub.fetchCalls)
	assert.Equal(t, 1, portalStub.maxActive, "cycles must be serialized")
}

func TestStart_runsImmediately(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Add(model.NewAccount("21371234", "pw")))

	ssoStub := &stubSSO{}
	p := newTestPoller(ssoStub, &stubPortal{}, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	require.Eventually(t, func() bool {
		ssoStub.mu.Lock()
		defer ssoStub.mu.Unlock()
		return len(ssoStub.calls) >= 1
	}, time.Second, 10*time.Millisecond, "first cycle must run at startup, not after the first interval")
}
