package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse overrides the backend's answer for one namespace.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBackend is an HTTP server that pages through a fixed set of rows
// at /v1/{namespace}?offset=&limit=, answering {"records": [...]}.
type MockBackend struct {
	server    *httptest.Server
	mu        sync.RWMutex
	records   []Row
	responses map[string]MockResponse
	delay     time.Duration

	// Tracking
	requestCount int
	lastHeader   http.Header
	lastQuery    url.Values
}

// NewMockBackend starts a backend serving records.
func NewMockBackend(records []Row) *MockBackend {
	mock := &MockBackend{
		records:   records,
		responses: make(map[string]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.lastHeader = r.Header.Clone()
		mock.lastQuery = r.URL.Query()
		delay := mock.delay
		mock.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		namespace := strings.TrimPrefix(r.URL.Path, "/v1/")

		mock.mu.RLock()
		resp, overridden := mock.responses[namespace]
		mock.mu.RUnlock()

		if overridden {
			mock.writeOverride(w, resp)
			return
		}

		mock.servePage(w, r)
	}))

	return mock
}

// URL returns the server base URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts down the server.
func (m *MockBackend) Close() {
	m.server.Close()
}

// SetDelay delays every response.
func (m *MockBackend) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetResponse replaces the paged answer for a namespace.
func (m *MockBackend) SetResponse(namespace string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[namespace] = resp
}

// ClearResponses restores paged answers for every namespace.
func (m *MockBackend) ClearResponses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = make(map[string]MockResponse)
}

// RequestCount returns the number of requests received.
func (m *MockBackend) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// LastHeader returns the headers of the most recent request.
func (m *MockBackend) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// LastQuery returns the query parameters of the most recent request.
func (m *MockBackend) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

func (m *MockBackend) writeOverride(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func (m *MockBackend) servePage(w http.ResponseWriter, r *http.Request) {
	offset, err1 := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err2 := strconv.Atoi(r.URL.Query().Get("limit"))
	if err1 != nil || err2 != nil || offset < 0 || limit < 0 {
		http.Error(w, `{"error": "invalid paging parameters"}`, http.StatusBadRequest)
		return
	}

	m.mu.RLock()
	page := []Row{}
	if offset < len(m.records) {
		end := min(offset+limit, len(m.records))
		page = append(page, m.records[offset:end]...)
	}
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(struct {
		Records []Row `json:"records"`
	}{Records: page})
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewBadRequestResponse creates a 400 Bad Request response.
func NewBadRequestResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"error": "unknown filter"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
