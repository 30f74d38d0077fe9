package sso

import "regexp"

// The SSO portal leaks protocol values through loosely structured text: a
// backend address inside a cookie value, a form token inside raw HTML, and
// the downstream login name inside a redirect URL. Each extractor is a pure
// function over that text so format drift stays localized here.

var (
	backendAddrPattern    = regexp.MustCompile(`http://\d+\.\d+\.\d+\.\d+:\d+`)
	executionTokenPattern = regexp.MustCompile(`<input name="execution" value="([^"]+)"/>`)
	loginNamePattern      = regexp.MustCompile(`loginName=([A-F0-9]+)`)
)

// ExtractSessionCookieIP finds the backend node address ("http://<ip>:<port>")
// the SSO server plants in its cookies; it must be echoed back as a
// session-affinity cookie on every later request.
func ExtractSessionCookieIP(cookieText string) (string, error) {
	m := backendAddrPattern.FindString(cookieText)
	if m == "" {
		return "", ErrCookieExtraction
	}
	return m, nil
}

// ExtractExecutionToken pulls the hidden "execution" form token out of the
// login page HTML. The login POST is rejected without it.
func ExtractExecutionToken(html string) (string, error) {
	m := executionTokenPattern.FindStringSubmatch(html)
	if m == nil {
		return "", ErrExecutionTokenMissing
	}
	return m[1], nil
}

// ExtractLoginName pulls the uppercase-hex loginName value out of a redirect
// URL. It identifies the student to the downstream attendance application.
func ExtractLoginName(location string) (string, error) {
	m := loginNamePattern.FindStringSubmatch(location)
	if m == nil {
		return "", ErrLoginNameMissing
	}
	return m[1], nil
}
