package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/vizzTools/osmUtils/internal/logger"
	"github.com/vizzTools/osmUtils/internal/overpass"
	"github.com/vizzTools/osmUtils/pkg/geo"
)

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

type reply struct {
	resp *overpass.Response
	err  error
}

// scripted answers queries from a fixed list, then repeats the last reply.
type scripted struct {
	mu      sync.Mutex
	replies []reply
	queries []string
}

func (s *scripted) Interpreter(ctx context.Context, query string) (*overpass.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r.resp, r.err
}

// countingPacer counts waits and never blocks.
type countingPacer struct {
	mu sync.Mutex
	n  int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.n++
	p.mu.Unlock()
	return ctx.Err()
}

func elements(n int) []overpass.Element {
	out := make([]overpass.Element, n)
	for i := range out {
		out[i] = overpass.Element{Type: overpass.TypeNode, ID: int64(i + 1)}
	}
	return out
}

var (
	ok       = reply{resp: &overpass.Response{Elements: elements(2)}}
	empty    = reply{resp: &overpass.Response{Elements: []overpass.Element{}}}
	overload = reply{err: fmt.Errorf("%w: status 429", overpass.ErrRateLimitExceeded)}
	remark   = reply{resp: &overpass.Response{Elements: elements(1), Remark: "runtime error: out of memory"}}
	missing  = reply{resp: &overpass.Response{}}
	broken   = reply{err: &overpass.TransportError{Op: "interpreter", StatusCode: 400}}
)

func newEngine(client Interpreter, p *countingPacer) *Engine {
	return NewEngine(client, p, DefaultOptions(), logger.Discard())
}

func TestFetchClassification(t *testing.T) {
	tests := []struct {
		name     string
		reply    reply
		status   Status
		elements int
	}{
		{"success", ok, Success, 2},
		{"empty", empty, Empty, 0},
		{"remark", remark, Malformed, 0},
		{"missing elements", missing, Malformed, 0},
		{"transport error", broken, Malformed, 0},
		{"malformed body", reply{err: overpass.ErrMalformedResponse}, Malformed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newEngine(&scripted{replies: []reply{tt.reply}}, &countingPacer{}).
				Fetch(context.Background(), square(0, 0, 1, 1), nil, time.Second)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if res.Status != tt.status {
				t.Errorf("expected %s, got %s", tt.status, res.Status)
			}
			if len(res.Elements) != tt.elements {
				t.Errorf("expected %d elements, got %d", tt.elements, len(res.Elements))
			}
			if (tt.status == Malformed) != (res.Err != nil) {
				t.Errorf("unexpected Err %v for %s", res.Err, res.Status)
			}
		})
	}
}

func TestFetchOverloadIsBounded(t *testing.T) {
	client := &scripted{replies: []reply{overload}}
	p := &countingPacer{}
	res, err := newEngine(client, p).Fetch(context.Background(), square(0, 0, 1, 1), nil, time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != Overload {
		t.Fatalf("expected overload, got %s", res.Status)
	}
	if res.Requests != 3 || len(client.queries) != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Requests)
	}
	if p.n != 3 {
		t.Errorf("expected a pacer wait before each attempt, got %d", p.n)
	}
	if !errors.Is(res.Err, overpass.ErrRateLimitExceeded) {
		t.Errorf("expected ErrRateLimitExceeded, got %v", res.Err)
	}
}

func TestFetchOverloadThenSuccess(t *testing.T) {
	client := &scripted{replies: []reply{overload, overload, ok}}
	res, err := newEngine(client, &countingPacer{}).Fetch(context.Background(), square(0, 0, 1, 1), nil, time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != Success || res.Requests != 3 {
		t.Errorf("expected success after 3 requests, got %s after %d", res.Status, res.Requests)
	}
}

func TestFetchRequestsPerFilterAndPart(t *testing.T) {
	client := &scripted{replies: []reply{ok}}
	geom := orb.MultiPolygon{square(0, 0, 1, 1), square(2, 2, 3, 3)}
	filters := []string{`["highway"="primary"]`, `["highway"="secondary"]`, ""}

	res, err := newEngine(client, &countingPacer{}).Fetch(context.Background(), geom, filters, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Requests != 6 {
		t.Errorf("expected 6 requests, got %d", res.Requests)
	}
	if len(res.Elements) != 12 {
		t.Errorf("expected aggregated 12 elements, got %d", len(res.Elements))
	}
	if !strings.Contains(client.queries[0], `way["highway"]["highway"="primary"](poly:"0.000000 0.000000`) {
		t.Errorf("unexpected first query %s", client.queries[0])
	}
	if strings.Contains(client.queries[0], "[timeout:") {
		t.Errorf("zero timeout must not be sent: %s", client.queries[0])
	}
}

func TestFetchAggregation(t *testing.T) {
	geom := orb.MultiPolygon{square(0, 0, 1, 1), square(2, 2, 3, 3)}

	tests := []struct {
		name    string
		replies []reply
		want    Status
	}{
		{"success and empty", []reply{ok, empty}, Success},
		{"empty and empty", []reply{empty, empty}, Empty},
		{"success and malformed", []reply{ok, broken}, Malformed},
		{"malformed and overload", []reply{broken, overload}, Overload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(&scripted{replies: tt.replies}, &countingPacer{}, Options{OverloadAttempts: 1}, logger.Discard())
			res, err := e.Fetch(context.Background(), geom, nil, time.Second)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if res.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, res.Status)
			}
			if res.Status != Success && res.Elements != nil {
				t.Errorf("expected no elements for %s", res.Status)
			}
		})
	}
}

func TestFetchInvalidGeometry(t *testing.T) {
	_, err := newEngine(&scripted{replies: []reply{ok}}, &countingPacer{}).
		Fetch(context.Background(), orb.LineString{{0, 0}, {1, 1}}, nil, time.Second)
	var ige *geo.InvalidGeometryError
	if !errors.As(err, &ige) {
		t.Errorf("expected InvalidGeometryError, got %v", err)
	}
}

func TestFetchClippedConcavePart(t *testing.T) {
	u := orb.Polygon{{
		{0, 0}, {3, 0}, {3, 3}, {2, 3}, {2, 1}, {1, 1}, {1, 3}, {0, 3}, {0, 0},
	}}
	part := geo.Clip(orb.Bound{Min: orb.Point{0, 2}, Max: orb.Point{3, 3}}, u)
	client := &scripted{replies: []reply{ok}}
	res, err := newEngine(client, &countingPacer{}).Fetch(context.Background(), part, nil, time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != Success {
		t.Errorf("expected success, got %s", res.Status)
	}
	if len(client.queries) == 0 {
		t.Error("expected the part to be queried")
	}
}

func TestFetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEngine(&scripted{replies: []reply{ok}}, &countingPacer{}).
		Fetch(ctx, square(0, 0, 1, 1), nil, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFetchRequestTimeoutIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	opts := overpass.DefaultOptions()
	opts.Endpoint = server.URL
	opts.RetryAttempts = 0
	client := overpass.NewClient(opts)

	res, err := newEngine(client, &countingPacer{}).Fetch(context.Background(), square(0, 0, 1, 1), nil, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != Malformed {
		t.Errorf("expected malformed on timeout, got %s", res.Status)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded cause, got %v", res.Err)
	}
}

func TestFetchOverHTTP(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.FormValue("data")
		w.Write([]byte(`{"elements":[{"type":"node","id":1,"lat":1,"lon":2}]}`))
	}))
	defer server.Close()

	opts := overpass.DefaultOptions()
	opts.Endpoint = server.URL
	res, err := newEngine(overpass.NewClient(opts), &countingPacer{}).
		Fetch(context.Background(), square(0, 0, 1, 1), []string{`["area"!="yes"]`}, 180*time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != Success {
		t.Errorf("expected success, got %s", res.Status)
	}
	want := `[out:json][timeout:180];(way["highway"]["area"!="yes"](poly:"0.000000 0.000000 0.000000 1.000000 1.000000 1.000000 1.000000 0.000000 0.000000 0.000000");>;);out;`
	if got != want {
		t.Errorf("unexpected query:\n got %s\nwant %s", got, want)
	}
}

func TestResolveFilters(t *testing.T) {
	got, err := ResolveFilters([]string{"all_roads", `["highway"="primary"]`, ""})
	if err != nil {
		t.Fatalf("ResolveFilters: %v", err)
	}
	if !strings.HasPrefix(got[0], `[!"tunnel"]["area"!="yes"]`) {
		t.Errorf("unexpected preset expansion %s", got[0])
	}
	if got[1] != `["highway"="primary"]` || got[2] != "" {
		t.Errorf("raw filters must pass through: %v", got)
	}

	if _, err := ResolveFilters([]string{"all_rivers"}); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("expected ErrUnknownPreset, got %v", err)
	}
}
