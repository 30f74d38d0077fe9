package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/autoclass/attendd/internal/model"
)

// Schedule and login failures reported by the attendance application.
var (
	ErrLoginMalformed    = errors.New("portal: login response missing result.id or result.sessionId")
	ErrNonSuccessStatus  = errors.New("portal: schedule request rejected")
	ErrMalformedResponse = errors.New("portal: malformed schedule response")
)

const (
	loginPath    = "/app/user/login_buaa.action"
	schedulePath = "/app/course/get_stu_course_sched.action"
	signPath     = "/app/course/stu_scan_sign.action"

	courseTimeLayout = "2006-01-02 15:04:05"
	successStatus    = "0"
)

// SignOutcome classifies one sign-in attempt.
type SignOutcome int

const (
	// SignSucceeded means the attendance server accepted the sign-in.
	SignSucceeded SignOutcome = iota
	// SignAmbiguousNotOpen means the server reports scan sign-in as not yet
	// opened for the session; the attempt is retried on later ticks.
	SignAmbiguousNotOpen
	// SignFailed means the request was rejected at the HTTP level.
	SignFailed
)

func (o SignOutcome) String() string {
	switch o {
	case SignSucceeded:
		return "succeeded"
	case SignAmbiguousNotOpen:
		return "ambiguous_not_open"
	case SignFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Client talks to the downstream attendance application. The sign-in
// endpoint lives on a different host than login and schedule, hence the two
// base URLs.
type Client struct {
	baseURL     string
	signBaseURL string
	httpClient  *http.Client
}

// NewClient creates a portal client. baseURL serves login and schedule,
// signBaseURL serves sign-in.
func NewClient(baseURL, signBaseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		signBaseURL: strings.TrimRight(signBaseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Login exchanges the SSO-issued login name for the application's own user
// id and session token.
func (c *Client) Login(ctx context.Context, loginName string) (userID, sessionID string, err error) {
	q := url.Values{
		"password":         {""},
		"phone":            {loginName},
		"userLevel":        {"1"},
		"verificationType": {"2"},
		"verificationUrl":  {""},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+loginPath+"?"+q.Encode(), nil)
	if err != nil {
		return "", "", fmt.Errorf("build app login request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("app login: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Result struct {
			ID        string `json:"id"`
			SessionID string `json:"sessionId"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrLoginMalformed, err)
	}
	if body.Result.ID == "" || body.Result.SessionID == "" {
		return "", "", ErrLoginMalformed
	}
	return body.Result.ID, body.Result.SessionID, nil
}

// FetchSchedule loads the course sessions scheduled for dateStr (YYYYMMDD).
// The session token travels as a sessionId header, not a cookie.
func (c *Client) FetchSchedule(ctx context.Context, userID, sessionID, dateStr string) ([]model.CourseSession, error) {
	q := url.Values{
		"dateStr": {dateStr},
		"id":      {userID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+schedulePath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build schedule request: %w", err)
	}
	req.Header.Set("sessionId", sessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"STATUS"`
		Result []struct {
			ID             string `json:"id"`
			CourseName     string `json:"courseName"`
			ClassBeginTime string `json:"classBeginTime"`
			ClassEndTime   string `json:"classEndTime"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if body.Status != successStatus {
		return nil, fmt.Errorf("%w: STATUS=%q", ErrNonSuccessStatus, body.Status)
	}

	courses := make([]model.CourseSession, 0, len(body.Result))
	for _, entry := range body.Result {
		begin, err := time.ParseInLocation(courseTimeLayout, entry.ClassBeginTime, time.Local)
		if err != nil {
			return nil, fmt.Errorf("%w: classBeginTime %q", ErrMalformedResponse, entry.ClassBeginTime)
		}
		end, err := time.ParseInLocation(courseTimeLayout, entry.ClassEndTime, time.Local)
		if err != nil {
			return nil, fmt.Errorf("%w: classEndTime %q", ErrMalformedResponse, entry.ClassEndTime)
		}
		courses = append(courses, model.CourseSession{
			ID:         entry.ID,
			CourseName: entry.CourseName,
			BeginTime:  begin,
			EndTime:    end,
		})
	}
	return courses, nil
}

// Sign posts one sign-in attempt for a course session and classifies the
// result. A transport failure or non-200 status is SignFailed; a 200 body
// with STATUS "1" means scan sign-in is not open yet and is reported as
// SignAmbiguousNotOpen; any other 200 body counts as success.
func (c *Client) Sign(ctx context.Context, userID, courseSchedID string, now time.Time) (SignOutcome, error) {
	q := url.Values{
		"courseSchedId": {courseSchedID},
		"timestamp":     {strconv.FormatInt(now.UnixMilli(), 10)},
		"id":            {userID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.signBaseURL+signPath+"?"+q.Encode(), nil)
	if err != nil {
		return SignFailed, fmt.Errorf("build sign request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SignFailed, fmt.Errorf("sign request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SignFailed, fmt.Errorf("sign request rejected: status %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"STATUS"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Status == "1" {
		return SignAmbiguousNotOpen, nil
	}
	return SignSucceeded, nil
}
