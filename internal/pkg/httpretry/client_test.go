package httpretry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type scriptedDoer struct {
	responses []*http.Response
	errs      []error
	calls     int
}

func (s *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], s.errs[i]
}

func resp(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: http.NoBody}
}

func TestDoRetriesServerErrors(t *testing.T) {
	doer := &scriptedDoer{
		responses: []*http.Response{resp(503), resp(503), resp(200)},
		errs:      []error{nil, nil, nil},
	}
	c := New(doer, 3)
	c.baseDelay = 0

	req := httptest.NewRequest("GET", "http://api.example.com/v1", nil)
	got, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got.StatusCode != 200 {
		t.Errorf("status = %d, want 200", got.StatusCode)
	}
	if doer.calls != 3 {
		t.Errorf("calls = %d, want 3", doer.calls)
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	doer := &scriptedDoer{
		responses: []*http.Response{resp(403)},
		errs:      []error{nil},
	}
	c := New(doer, 3)

	got, err := c.Do(httptest.NewRequest("GET", "http://api.example.com/v1", nil))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got.StatusCode != 403 {
		t.Errorf("status = %d, want 403", got.StatusCode)
	}
	if doer.calls != 1 {
		t.Errorf("calls = %d, want 1", doer.calls)
	}
}

func TestDoReturnsLastResponseWhenExhausted(t *testing.T) {
	doer := &scriptedDoer{
		responses: []*http.Response{resp(502), resp(502), resp(502)},
		errs:      []error{nil, nil, nil},
	}
	c := New(doer, 2)
	c.baseDelay = 0

	got, err := c.Do(httptest.NewRequest("POST", "http://api.example.com/v1",
		strings.NewReader("{}")))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got.StatusCode != 502 {
		t.Errorf("status = %d, want the final 502 passed through", got.StatusCode)
	}
	if doer.calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", doer.calls)
	}
}

func TestDoRetriesNetworkErrors(t *testing.T) {
	doer := &scriptedDoer{
		responses: []*http.Response{nil, resp(200)},
		errs:      []error{errors.New("connection refused"), nil},
	}
	c := New(doer, 1)
	c.baseDelay = 0

	got, err := c.Do(httptest.NewRequest("GET", "http://api.example.com/v1", nil))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got.StatusCode != 200 {
		t.Errorf("status = %d, want 200", got.StatusCode)
	}
}
