package httpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPost_SendsBody(t *testing.T) {
	var got string
	var ctype string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		ctype = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	resp, err := Post(context.Background(), srv.URL, "text/plain", []byte("hello"))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	resp.Body.Close()

	if got != "hello" {
		t.Errorf("body = %q, want hello", got)
	}
	if ctype != "text/plain" {
		t.Errorf("Content-Type = %q", ctype)
	}
}

func TestNewJSONRequest(t *testing.T) {
	req, err := NewJSONRequest(context.Background(), http.MethodPost, "http://example.test/api", map[string]string{"frame": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", req.Header.Get("Content-Type"))
	}

	var body map[string]string
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["frame"] != "x" {
		t.Errorf("body = %v", body)
	}

	empty, err := NewJSONRequest(context.Background(), http.MethodPost, "http://example.test/api", nil)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Body != nil {
		t.Error("nil value should send no body")
	}
}

func TestNewJSONRequest_EncodeError(t *testing.T) {
	if _, err := NewJSONRequest(context.Background(), http.MethodPost, "http://example.test", func() {}); err == nil {
		t.Error("expected encode error")
	}
}

func TestGet_Context(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Get(ctx, srv.URL); err == nil {
		t.Error("expected error for cancelled context")
	}
}
