package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMergeTurns(t *testing.T) {
	tests := []struct {
		name string
		in   []Turn
		want []Turn
	}{
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
		{
			name: "alternating unchanged",
			in: []Turn{
				{Role: RoleUser, Text: "hi"},
				{Role: RoleModel, Text: "hello"},
				{Role: RoleUser, Text: "how are you"},
			},
			want: []Turn{
				{Role: RoleUser, Text: "hi"},
				{Role: RoleModel, Text: "hello"},
				{Role: RoleUser, Text: "how are you"},
			},
		},
		{
			name: "repeated role joined with newline",
			in: []Turn{
				{Role: RoleUser, Text: "first"},
				{Role: RoleUser, Text: "second"},
				{Role: RoleModel, Text: "reply"},
			},
			want: []Turn{
				{Role: RoleUser, Text: "first\nsecond"},
				{Role: RoleModel, Text: "reply"},
			},
		},
		{
			name: "three in a row",
			in: []Turn{
				{Role: RoleModel, Text: "a"},
				{Role: RoleModel, Text: "b"},
				{Role: RoleModel, Text: "c"},
			},
			want: []Turn{
				{Role: RoleModel, Text: "a\nb\nc"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeTurns(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("MergeTurns mismatch (-want +got):\n%s", diff)
			}
			if len(tt.in) > 1 && tt.in[0].Role == tt.in[1].Role && len(got) != len(tt.in)-countAdjacent(tt.in) {
				t.Errorf("merged length = %d", len(got))
			}
		})
	}
}

func countAdjacent(turns []Turn) int {
	n := 0
	for i := 1; i < len(turns); i++ {
		if turns[i].Role == turns[i-1].Role {
			n++
		}
	}
	return n
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseAnalysis(t *testing.T) {
	a, err := parseAnalysis("```json\n{\"title\":\"Midnight Chat\",\"description\":\"A quiet talk.\",\"price\":12}\n```")
	if err != nil {
		t.Fatalf("parseAnalysis: %v", err)
	}
	if a.Title != "Midnight Chat" || a.Price != 12 {
		t.Errorf("analysis = %+v", a)
	}

	if _, err := parseAnalysis("not json at all"); err == nil {
		t.Error("expected error for non-JSON response")
	}
	if _, err := parseAnalysis(`{"description":"no title"}`); err == nil {
		t.Error("expected error for missing title")
	}
}

func candidateBody(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"role":"model","parts":[{"text":%q}]}}]}`, text)
}

func newTestClient(serverURL string) *HTTPClient {
	c := NewHTTPClient(Config{
		APIKey:    "test-key",
		BaseURL:   serverURL,
		Model:     "test-model",
		PlantName: "Fern",
	})
	c.sleep = func(time.Duration) {}
	return c
}

func TestConverse(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, candidateBody("hello from the pot"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	reply, err := c.Converse(context.Background(), []Turn{{Role: RoleUser, Text: "hi"}})
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if reply != "hello from the pot" {
		t.Errorf("reply = %q", reply)
	}
	if gotPath != "/models/test-model:generateContent" {
		t.Errorf("path = %s", gotPath)
	}
}

func TestConverseRetriesTransient(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, candidateBody("finally"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	reply, err := c.Converse(context.Background(), []Turn{{Role: RoleUser, Text: "hi"}})
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if reply != "finally" {
		t.Errorf("reply = %q", reply)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestConverseAuthNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Converse(context.Background(), []Turn{{Role: RoleUser, Text: "hi"}})
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (auth failures must not retry)", calls)
	}
}

func TestConverseRetriesExhausted(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Converse(context.Background(), []Turn{{Role: RoleUser, Text: "hi"}})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "retries exhausted") {
		t.Errorf("err = %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (1 + 3 retries)", calls)
	}
}

func TestAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, candidateBody("```json\n{\"title\":\"Leafy Dialogue\",\"description\":\"Touch and talk.\",\"price\":8}\n```"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	a, err := c.Analyze(context.Background(), "user: hi\nplant: hello")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	want := &Analysis{Title: "Leafy Dialogue", Description: "Touch and talk.", Price: 8}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("analysis mismatch (-want +got):\n%s", diff)
	}
}

func TestNewFactory(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without API key")
	}
	c, err := New(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.(*HTTPClient); !ok {
		t.Errorf("default backend = %T, want *HTTPClient", c)
	}
	if _, err := New(Config{APIKey: "k", Backend: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
