package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newlyCreatedBody(id string) string {
	return fmt.Sprintf(`{"newlyCreated":{"blobObject":{"blobId":"%s"}}}`, id)
}

func TestStoreFirstPublisher(t *testing.T) {
	var gotPath, gotMethod, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		fmt.Fprint(w, newlyCreatedBody("abc123"))
	}))
	defer srv.Close()

	c := NewClient(Config{
		Publishers: []string{srv.URL},
		Aggregator: "https://agg.example",
		Epochs:     5,
	})
	res, err := c.Store(context.Background(), []byte("hello"), 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/v1/store?epochs=5" {
		t.Errorf("path = %s, want /v1/store?epochs=5", gotPath)
	}
	if gotBody != "hello" {
		t.Errorf("body = %q, want hello", gotBody)
	}
	if res.BlobID != "abc123" {
		t.Errorf("BlobID = %s, want abc123", res.BlobID)
	}
	if res.URL != "https://agg.example/v1/abc123" {
		t.Errorf("URL = %s", res.URL)
	}
}

func TestStoreFallbackThroughFailures(t *testing.T) {
	var calls []string
	fail := func(name string, status int) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, name)
			w.WriteHeader(status)
		}))
	}
	bad1 := fail("bad1", http.StatusInternalServerError)
	defer bad1.Close()
	bad2 := fail("bad2", http.StatusServiceUnavailable)
	defer bad2.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "good")
		fmt.Fprint(w, `{"alreadyCertified":{"blobId":"dup-77"}}`)
	}))
	defer good.Close()

	c := NewClient(Config{
		Publishers: []string{bad1.URL, bad2.URL, good.URL},
		Aggregator: "https://agg.example",
	})
	res, err := c.Store(context.Background(), []byte("payload"), 1)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if res.BlobID != "dup-77" {
		t.Errorf("BlobID = %s, want dup-77", res.BlobID)
	}
	want := []string{"bad1", "bad2", "good"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, calls[i], want[i])
		}
	}
}

func TestStoreAllPublishersFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInsufficientStorage)
	}))
	defer bad.Close()

	c := NewClient(Config{
		Publishers: []string{bad.URL, "http://127.0.0.1:1/unroutable"},
		Aggregator: "https://agg.example",
	})
	_, err := c.Store(context.Background(), []byte("x"), 1)
	if err == nil {
		t.Fatal("expected error when all publishers fail")
	}
	if !strings.Contains(err.Error(), "all 2 publishers failed") {
		t.Errorf("error missing aggregate summary: %v", err)
	}
	// The last underlying failure must be named.
	if !strings.Contains(err.Error(), "127.0.0.1:1") {
		t.Errorf("error missing last underlying failure: %v", err)
	}
}

func TestStoreMissingBlobID(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"unexpected":true}`)
	}))
	defer srv.Close()
	spare := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("second publisher should not be tried after an accepted upload")
	}))
	defer spare.Close()

	c := NewClient(Config{Publishers: []string{srv.URL, spare.URL}, Aggregator: "https://agg.example"})
	_, err := c.Store(context.Background(), []byte("x"), 1)
	if !errors.Is(err, ErrNoBlobID) {
		t.Fatalf("err = %v, want ErrNoBlobID", err)
	}
	if calls != 1 {
		t.Errorf("publisher called %d times, want 1", calls)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/abc123" {
			fmt.Fprint(w, "blob contents")
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(Config{Publishers: []string{"http://unused"}, Aggregator: srv.URL})
	data, err := c.Fetch(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "blob contents" {
		t.Errorf("data = %q", data)
	}

	if _, err := c.Fetch(context.Background(), "missing"); err == nil {
		t.Error("expected error for missing blob")
	}
}

func TestCertify(t *testing.T) {
	c := NewClient(Config{Publishers: []string{"http://unused"}, Aggregator: "http://unused"})
	if err := c.Certify(context.Background(), "abc123"); err != nil {
		t.Errorf("Certify: %v", err)
	}
	if err := c.Certify(context.Background(), ""); err == nil {
		t.Error("expected error for empty id")
	}
}
