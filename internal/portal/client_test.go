package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPortal(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.URL, 5*time.Second), srv
}

func TestLogin(t *testing.T) {
	client, _ := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, loginPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "0ABC12DE", q.Get("phone"))
		assert.Equal(t, "1", q.Get("userLevel"))
		assert.Equal(t, "2", q.Get("verificationType"))
		fmt.Fprint(w, `{"result":{"id":"u-77","sessionId":"sess-42"}}`)
	}))

	userID, sessionID, err := client.Login(context.Background(), "0ABC12DE")
	require.NoError(t, err)
	assert.Equal(t, "u-77", userID)
	assert.Equal(t, "sess-42", sessionID)
}

func TestLogin_malformed(t *testing.T) {
	cases := map[string]string{
		"not JSON":      `<html>oops</html>`,
		"empty result":  `{"result":{}}`,
		"missing token": `{"result":{"id":"u-77"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			}))
			_, _, err := client.Login(context.Background(), "0ABC12DE")
			require.ErrorIs(t, err, ErrLoginMalformed)
		})
	}
}

func TestFetchSchedule(t *testing.T) {
	client, _ := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, schedulePath, r.URL.Path)
		assert.Equal(t, "20250304", r.URL.Query().Get("dateStr"))
		assert.Equal(t, "u-77", r.URL.Query().Get("id"))
		assert.Equal(t, "sess-42", r.Header.Get("sessionId"))
		fmt.Fprint(w, `{"STATUS":"0","result":[
			{"id":"cs-1","courseName":"Operating Systems","classBeginTime":"2025-03-04 08:00:00","classEndTime":"2025-03-04 09:35:00"},
			{"id":"cs-2","courseName":"Compilers","classBeginTime":"2025-03-04 14:00:00","classEndTime":"2025-03-04 15:35:00"}
		]}`)
	}))

	courses, err := client.FetchSchedule(context.Background(), "u-77", "sess-42", "20250304")
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, "cs-1", courses[0].ID)
	assert.Equal(t, "Operating Systems", courses[0].CourseName)
	assert.Equal(t, time.Date(2025, 3, 4, 8, 0, 0, 0, time.Local), courses[0].BeginTime)
	assert.Equal(t, time.Date(2025, 3, 4, 9, 35, 0, 0, time.Local), courses[0].EndTime)
}

func TestFetchSchedule_nonSuccessStatus(t *testing.T) {
	client, _ := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"STATUS":"99","result":[]}`)
	}))

	_, err := client.FetchSchedule(context.Background(), "u-77", "sess-42", "20250304")
	require.ErrorIs(t, err, ErrNonSuccessStatus)
}

func TestFetchSchedule_malformed(t *testing.T) {
	client, _ := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"STATUS":"0","result":[{"id":"cs-1","courseName":"OS","classBeginTime":"8am","classEndTime":"2025-03-04 09:35:00"}]}`)
	}))

	_, err := client.FetchSchedule(context.Background(), "u-77", "sess-42", "20250304")
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestSign_outcomes(t *testing.T) {
	now := time.Now()

	t.Run("STATUS 1 is ambiguous, not success", func(t *testing.T) {
		client, _ := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, signPath, r.URL.Path)
			assert.Equal(t, "cs-1", r.URL.Query().Get("courseSchedId"))
			assert.Equal(t, "u-77", r.URL.Query().Get("id"))
			assert.NotEmpty(t, r.URL.Query().Get("timestamp"))
			fmt.Fprint(w, `{"STATUS":"1"}`)
		}))
		outcome, err := client.Sign(context.Background(), "u-77", "cs-1", now)
		require.NoError(t, err)
		assert.Equal(t, SignAmbiguousNotOpen, outcome)
	})

	t.Run("STATUS 0 succeeds", func(t *testing.T) {
		client, _ := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"STATUS":"0"}`)
		}))
		outcome, err := client.Sign(context.Background(), "u-77", "cs-1", now)
		require.NoError(t, err)
		assert.Equal(t, SignSucceeded, outcome)
	})

	t.Run("any other 200 body succeeds", func(t *testing.T) {
		client, _ := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `ok`)
		}))
		outcome, err := client.Sign(context.Background(), "u-77", "cs-1", now)
		require.NoError(t, err)
		assert.Equal(t, SignSucceeded, outcome)
	})

	t.Run("non-200 fails", func(t *testing.T) {
		client, _ := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		outcome, err := client.Sign(context.Background(), "u-77", "cs-1", now)
		require.Error(t, err)
		assert.Equal(t, SignFailed, outcome)
	})
}
