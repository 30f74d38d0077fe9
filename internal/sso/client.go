package sso

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	// affinityCookieName carries the backend node address back to the SSO
	// server so later requests land on the node that issued the session.
	affinityCookieName = "_7da9a"

	// wrongCredentialsMarker appears in the login page body when the SSO
	// server rejects the username/password pair.
	wrongCredentialsMarker = "用户名或密码错误"

	submitMarker = "登录"

	// maxRedirectHops bounds the manual redirect walk after the credential
	// POST; it guarantees termination against a misbehaving SSO endpoint.
	maxRedirectHops = 10
)

// Client drives the SSO login protocol: fetch the login page, echo the
// session-affinity cookie, POST credentials with redirects disabled, then
// walk the redirect chain by hand until a loginName parameter shows up.
type Client struct {
	baseURL    string
	serviceURL string
	timeout    time.Duration
}

// NewClient creates an SSO client. baseURL is the SSO portal origin,
// serviceURL is the downstream application base passed as the service
// parameter on the login page.
func NewClient(baseURL, serviceURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceURL: serviceURL,
		timeout:    timeout,
	}
}

// Login authenticates the student against the SSO portal and returns the
// downstream login name (an uppercase-hex token) extracted from the redirect
// chain. Each call uses a fresh cookie jar; nothing is shared between logins.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", fmt.Errorf("create cookie jar: %w", err)
	}
	follow := &http.Client{Jar: jar, Timeout: c.timeout}
	noRedirect := &http.Client{
		Jar:     jar,
		Timeout: c.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	loginURL := c.baseURL + "/login?service=" + url.QueryEscape(c.serviceURL)
	pageURL, err := url.Parse(loginURL)
	if err != nil {
		return "", fmt.Errorf("parse login URL: %w", err)
	}

	// Step 1: load the login page to collect cookies and the form token.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return "", fmt.Errorf("build login page request: %w", err)
	}
	resp, err := follow.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch login page: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("read login page: %w", err)
	}

	backendAddr, err := ExtractSessionCookieIP(cookieText(jar.Cookies(pageURL)))
	if err != nil {
		return "", err
	}
	execution, err := ExtractExecutionToken(string(body))
	if err != nil {
		return "", err
	}

	// Step 3: plant the affinity cookie at the SSO root path.
	jar.SetCookies(&url.URL{Scheme: pageURL.Scheme, Host: pageURL.Host, Path: "/"}, []*http.Cookie{
		{Name: affinityCookieName, Value: backendAddr, Path: "/"},
	})

	// Step 4: POST credentials with automatic redirects disabled so the
	// chain can be walked by hand.
	form := url.Values{
		"username":  {username},
		"password":  {password},
		"submit":    {submitMarker},
		"type":      {"username_password"},
		"execution": {execution},
		"_eventId":  {"submit"},
	}
	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build credential request: %w", err)
	}
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	postResp, err := noRedirect.Do(postReq)
	if err != nil {
		return "", fmt.Errorf("post credentials: %w", err)
	}

	if !isRedirect(postResp.StatusCode) {
		failBody, _ := io.ReadAll(postResp.Body)
		postResp.Body.Close()
		if strings.Contains(string(failBody), wrongCredentialsMarker) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("%w: status %d", ErrUnknownAuthFailure, postResp.StatusCode)
	}
	postResp.Body.Close()

	return c.walkRedirects(ctx, noRedirect, postResp)
}

// walkRedirects follows the post-login redirect chain manually, at most
// maxRedirectHops hops, until a Location containing loginName= is seen. The
// loginName-seeking stop condition is why this cannot be left to the
// transport's own redirect policy.
func (c *Client) walkRedirects(ctx context.Context, client *http.Client, resp *http.Response) (string, error) {
	base := resp.Request.URL
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("%w: redirect without Location", ErrUnknownAuthFailure)
	}

	for hops := 0; !strings.Contains(location, "loginName="); hops++ {
		if hops >= maxRedirectHops {
			return "", ErrRedirectChainExhausted
		}
		next, err := base.Parse(location)
		if err != nil {
			return "", fmt.Errorf("parse redirect location %q: %w", location, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next.String(), nil)
		if err != nil {
			return "", fmt.Errorf("build redirect request: %w", err)
		}
		hopResp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("follow redirect: %w", err)
		}
		io.Copy(io.Discard, hopResp.Body)
		hopResp.Body.Close()

		loc := hopResp.Header.Get("Location")
		if !isRedirect(hopResp.StatusCode) || loc == "" {
			break
		}
		base = next
		location = loc
	}

	return ExtractLoginName(location)
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

// cookieText flattens a cookie list into one searchable string, mirroring
// how the backend address is hunted for across every cookie value.
func cookieText(cookies []*http.Cookie) string {
	var b strings.Builder
	for _, ck := range cookies {
		b.WriteString(ck.String())
		b.WriteString("; ")
	}
	return b.String()
}
