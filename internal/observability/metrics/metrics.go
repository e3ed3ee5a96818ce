// Package metrics keeps in-process counters and exposes them in the
// Prometheus text format. The registry is deliberately small: no external
// metrics dependency, no histograms beyond sum/count pairs.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	Method string
	Path   string
	Status int
}

type requestStats struct {
	Count       uint64
	DurationSum float64
}

// Recorder accumulates counters for HTTP traffic and domain events.
type Recorder struct {
	mu             sync.Mutex
	requests       map[requestKey]*requestStats
	accountEvents  map[string]uint64
	favoriteEvents map[string]uint64
	authEvents     map[string]uint64
	catalogLookups map[string]uint64
	datastoreUp    int
}

// NewRecorder constructs an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		requests:       make(map[requestKey]*requestStats),
		accountEvents:  make(map[string]uint64),
		favoriteEvents: make(map[string]uint64),
		authEvents:     make(map[string]uint64),
		catalogLookups: make(map[string]uint64),
		datastoreUp:    1,
	}
}

var (
	defaultRecorder *Recorder
	defaultOnce     sync.Once
)

// Default returns the process-wide recorder.
func Default() *Recorder {
	defaultOnce.Do(func() {
		defaultRecorder = NewRecorder()
	})
	return defaultRecorder
}

// ObserveRequest records one served HTTP request.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	key := requestKey{Method: method, Path: NormalizePath(path), Status: status}
	r.mu.Lock()
	stats, ok := r.requests[key]
	if !ok {
		stats = &requestStats{}
		r.requests[key] = stats
	}
	stats.Count++
	stats.DurationSum += duration.Seconds()
	r.mu.Unlock()
}

// ObserveAccountEvent counts account lifecycle events (created, updated,
// deleted).
func (r *Recorder) ObserveAccountEvent(event string) {
	r.mu.Lock()
	r.accountEvents[event]++
	r.mu.Unlock()
}

// ObserveFavoriteEvent counts favorites mutations (added, removed).
func (r *Recorder) ObserveFavoriteEvent(event string) {
	r.mu.Lock()
	r.favoriteEvents[event]++
	r.mu.Unlock()
}

// ObserveAuthEvent counts authentication outcomes (login_success,
// login_failure, logout).
func (r *Recorder) ObserveAuthEvent(event string) {
	r.mu.Lock()
	r.authEvents[event]++
	r.mu.Unlock()
}

// ObserveCatalogLookup counts catalog queries by kind (list, title, genre,
// director).
func (r *Recorder) ObserveCatalogLookup(kind string) {
	r.mu.Lock()
	r.catalogLookups[kind]++
	r.mu.Unlock()
}

// SetDatastoreHealth records the most recent datastore health probe result.
func (r *Recorder) SetDatastoreHealth(healthy bool) {
	r.mu.Lock()
	if healthy {
		r.datastoreUp = 1
	} else {
		r.datastoreUp = 0
	}
	r.mu.Unlock()
}

// NormalizePath collapses per-entity path segments so the label cardinality
// stays bounded.
func NormalizePath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "/"
	}
	switch segments[0] {
	case "users":
		if len(segments) >= 2 {
			segments[1] = ":login"
		}
		if len(segments) >= 4 && (segments[2] == "favorites" || segments[2] == "movies") {
			segments[3] = ":movie"
		}
	case "movies":
		if len(segments) >= 3 {
			switch segments[1] {
			case "title":
				segments[2] = ":title"
			case "genre":
				segments[2] = ":genre"
			case "director":
				segments[2] = ":director"
			}
		}
	case "directors":
		if len(segments) >= 2 {
			segments[1] = ":director"
		}
	}
	return "/" + strings.Join(segments, "/")
}

func writeCounterMap(w io.Writer, name, label string, values map[string]uint64) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(w, "%s{%s=%q} %d\n", name, label, key, values[key])
	}
}

// Write renders the registry in the Prometheus text exposition format.
func (r *Recorder) Write(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.requests) > 0 {
		keys := make([]requestKey, 0, len(r.requests))
		for key := range r.requests {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Path != keys[j].Path {
				return keys[i].Path < keys[j].Path
			}
			if keys[i].Method != keys[j].Method {
				return keys[i].Method < keys[j].Method
			}
			return keys[i].Status < keys[j].Status
		})
		fmt.Fprintln(w, "# TYPE cineshelf_http_requests_total counter")
		for _, key := range keys {
			fmt.Fprintf(w, "cineshelf_http_requests_total{method=%q,path=%q,status=\"%d\"} %d\n",
				key.Method, key.Path, key.Status, r.requests[key].Count)
		}
		fmt.Fprintln(w, "# TYPE cineshelf_http_request_duration_seconds summary")
		for _, key := range keys {
			fmt.Fprintf(w, "cineshelf_http_request_duration_seconds_sum{method=%q,path=%q,status=\"%d\"} %f\n",
				key.Method, key.Path, key.Status, r.requests[key].DurationSum)
			fmt.Fprintf(w, "cineshelf_http_request_duration_seconds_count{method=%q,path=%q,status=\"%d\"} %d\n",
				key.Method, key.Path, key.Status, r.requests[key].Count)
		}
	}

	writeCounterMap(w, "cineshelf_account_events_total", "event", r.accountEvents)
	writeCounterMap(w, "cineshelf_favorite_events_total", "event", r.favoriteEvents)
	writeCounterMap(w, "cineshelf_auth_events_total", "event", r.authEvents)
	writeCounterMap(w, "cineshelf_catalog_lookups_total", "kind", r.catalogLookups)

	fmt.Fprintln(w, "# TYPE cineshelf_datastore_up gauge")
	fmt.Fprintf(w, "cineshelf_datastore_up %d\n", r.datastoreUp)
}

// Handler serves the registry over HTTP.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.Write(w)
	})
}
