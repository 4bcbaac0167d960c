// Package testutil provides testing utilities for the OSF archiver.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// DefaultPerPage matches the OSF API's default listing page size.
const DefaultPerPage = 10

// MockOSFResponse defines the behavior for a mock OSF endpoint response.
type MockOSFResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Delay      time.Duration
}

type mockWiki struct {
	id      string
	name    string
	content []byte
}

// MockOSF is a configurable mock OSF API server for testing.
//
// Wiki listings registered with AddWiki are paginated like the real API:
// meta.total and meta.per_page on every page and links.next while more
// pages follow. Queued failures are served before the regular response.
type MockOSF struct {
	server *httptest.Server
	mu     sync.Mutex

	perPage   int
	handlers  map[string]func(w http.ResponseWriter, r *http.Request)
	wikis     map[string][]mockWiki
	failures  map[string][]int
	pageDelay map[int]time.Duration

	requests         map[string]int
	requestCount     int
	conditionalCount int
	lastHeader       http.Header
}

// NewMockOSF creates and starts a new mock OSF server.
func NewMockOSF() *MockOSF {
	mock := &MockOSF{
		perPage:   DefaultPerPage,
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		wikis:     make(map[string][]mockWiki),
		failures:  make(map[string][]int),
		pageDelay: make(map[int]time.Duration),
		requests:  make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

func (m *MockOSF) serve(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path
	if page := r.URL.Query().Get("page"); page != "" {
		key += "?page=" + page
	}

	m.mu.Lock()
	m.requestCount++
	m.requests[key]++
	m.lastHeader = r.Header.Clone()
	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		m.conditionalCount++
	}

	var failStatus int
	if queue := m.failures[key]; len(queue) > 0 {
		failStatus = queue[0]
		m.failures[key] = queue[1:]
	}
	handler, hasHandler := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if failStatus != 0 {
		w.WriteHeader(failStatus)
		return
	}
	if hasHandler {
		handler(w, r)
		return
	}

	if m.serveListing(w, r) || m.serveContent(w, r) {
		return
	}

	http.Error(w, `{"errors": [{"detail": "Not found."}]}`, http.StatusNotFound)
}

// URL returns the mock server URL with a trailing slash, usable as the
// API root.
func (m *MockOSF) URL() string {
	return m.server.URL + "/"
}

// Close shuts down the mock server.
func (m *MockOSF) Close() {
	m.server.Close()
}

// SetPerPage changes the listing page size.
func (m *MockOSF) SetPerPage(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perPage = n
}

// SetPageDelay delays every listing response for the given page number.
func (m *MockOSF) SetPageDelay(page int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageDelay[page] = d
}

// AddWiki appends a wiki with the given id, name, and content to the
// listing of kind/guid (kind is "registrations" or "nodes").
func (m *MockOSF) AddWiki(kind, guid, id, name string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := fmt.Sprintf("/v2/%s/%s/wikis/", kind, guid)
	m.wikis[path] = append(m.wikis[path], mockWiki{id: id, name: name, content: content})
}

// ContentURL returns the download link of a wiki.
func (m *MockOSF) ContentURL(id string) string {
	return fmt.Sprintf("%s/v2/wikis/%s/content/", m.server.URL, id)
}

// ListingKey returns the request key of one listing page, as accepted by
// FailNext and RequestsFor.
func ListingKey(kind, guid string, page int) string {
	return fmt.Sprintf("/v2/%s/%s/wikis/?page=%d", kind, guid, page)
}

// ContentKey returns the request key of a wiki's content.
func ContentKey(id string) string {
	return fmt.Sprintf("/v2/wikis/%s/content/", id)
}

// FailNext queues statuses to be served, in order, for the next requests
// matching key before the regular response.
func (m *MockOSF) FailNext(key string, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key] = append(m.failures[key], statuses...)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockOSF) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockOSF) SetResponse(path string, resp MockOSFResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		w.Write(resp.Body)
	})
}

// SetFilesZip serves data as the osfstorage zip archive of guid.
func (m *MockOSF) SetFilesZip(guid string, data []byte) {
	m.SetResponse(fmt.Sprintf("/v1/resources/%s/providers/osfstorage/", guid), MockOSFResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers:    map[string]string{"Content-Type": "application/zip"},
	})
}

// RequestCount returns the total number of requests served.
func (m *MockOSF) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// RequestsFor returns how many requests matched key.
func (m *MockOSF) RequestsFor(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[key]
}

// ConditionalCount returns the number of conditional requests received.
func (m *MockOSF) ConditionalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conditionalCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockOSF) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

func (m *MockOSF) serveListing(w http.ResponseWriter, r *http.Request) bool {
	m.mu.Lock()
	wikis, ok := m.wikis[r.URL.Path]
	perPage := m.perPage
	m.mu.Unlock()
	if !ok {
		return false
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			http.Error(w, `{"errors": [{"detail": "Invalid page."}]}`, http.StatusNotFound)
			return true
		}
		page = n
	}

	m.mu.Lock()
	delay := m.pageDelay[page]
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	start := (page - 1) * perPage
	if start > len(wikis) || (start == len(wikis) && page > 1) {
		http.Error(w, `{"errors": [{"detail": "Invalid page."}]}`, http.StatusNotFound)
		return true
	}
	end := min(start+perPage, len(wikis))

	data := make([]map[string]any, 0, end-start)
	for _, wiki := range wikis[start:end] {
		data = append(data, map[string]any{
			"id":   wiki.id,
			"type": "wikis",
			"attributes": map[string]any{
				"name": wiki.name,
				"kind": "file",
				"size": len(wiki.content),
			},
			"links": map[string]any{
				"info":     fmt.Sprintf("%s/v2/wikis/%s/", m.server.URL, wiki.id),
				"download": m.ContentURL(wiki.id),
			},
		})
	}

	var next any
	if end < len(wikis) {
		next = fmt.Sprintf("%s%s?page=%d", m.server.URL, r.URL.Path, page+1)
	}

	w.Header().Set("Content-Type", "application/vnd.api+json")
	json.NewEncoder(w).Encode(map[string]any{
		"data": data,
		"links": map[string]any{
			"first": nil,
			"last":  nil,
			"prev":  nil,
			"next":  next,
		},
		"meta": map[string]any{
			"total":    len(wikis),
			"per_page": perPage,
		},
	})
	return true
}

func (m *MockOSF) serveContent(w http.ResponseWriter, r *http.Request) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, wikis := range m.wikis {
		for _, wiki := range wikis {
			if r.URL.Path == ContentKey(wiki.id) {
				w.Header().Set("Content-Type", "text/markdown")
				w.Write(wiki.content)
				return true
			}
		}
	}
	return false
}
