package clickhouse

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteSendsConcatenatedRowsAndRequiredParams(t *testing.T) {
	var gotQuery string
	var gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	writer := New(Config{BaseURL: srv.URL, Database: "default", Table: "events_raw"})
	err := writer.Write(context.Background(), [][]byte{[]byte(`{"a":1}` + "\n"), []byte(`{"a":2}` + "\n")})
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	if !strings.Contains(gotQuery, "insert_distributed_sync=1") {
		t.Errorf("query %q missing insert_distributed_sync=1", gotQuery)
	}
	if !strings.Contains(gotQuery, "load_balancing=in_order") {
		t.Errorf("query %q missing load_balancing=in_order", gotQuery)
	}
	if gotBody != `{"a":1}`+"\n"+`{"a":2}`+"\n" {
		t.Errorf("body = %q, want concatenated rows", gotBody)
	}
}

func TestWriteEmptyRowsIsNoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	writer := New(Config{BaseURL: srv.URL, Database: "default", Table: "events_raw"})
	if err := writer.Write(context.Background(), nil); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if called {
		t.Error("Write() with no rows should not hit the network")
	}
}

func TestWriteNonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	writer := New(Config{BaseURL: srv.URL, Database: "default", Table: "events_raw"})
	err := writer.Write(context.Background(), [][]byte{[]byte("x\n")})
	if err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}
