package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestSendRequestAssemblesQueryAndHeaders(t *testing.T) {
	var gotQuery, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient()
	resp, err := c.SendRequest(context.Background(), &RequestOptions{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Headers: map[string]string{"User-Agent": "probe/1.0"},
		Query:   url.Values{"symbol": {"SAP.DE"}, "interval": {"30m"}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	resp.Body.Close()

	if gotQuery != "interval=30m&symbol=SAP.DE" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotAgent != "probe/1.0" {
		t.Fatalf("unexpected agent %q", gotAgent)
	}
}

func TestSendRequestEncodesJSONBody(t *testing.T) {
	var gotCT string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient()
	resp, err := c.SendRequest(context.Background(), &RequestOptions{
		Method: http.MethodPost,
		URL:    srv.URL,
		Body:   map[string]string{"symbol": "SAP.DE"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	resp.Body.Close()

	if gotCT != "application/json" {
		t.Fatalf("unexpected content type %q", gotCT)
	}
	var decoded map[string]string
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	if decoded["symbol"] != "SAP.DE" {
		t.Fatalf("unexpected body %s", gotBody)
	}
}

func TestSendRequestRawStringBody(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient()
	resp, err := c.SendRequest(context.Background(), &RequestOptions{
		Method: http.MethodPost,
		URL:    srv.URL,
		Body:   "plain payload",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	resp.Body.Close()

	if string(gotBody) != "plain payload" {
		t.Fatalf("unexpected body %q", gotBody)
	}
}
