package collector

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const stubStatusBody = `Active connections: 291
server accepts handled requests
 16630948 16630948 31070465
Reading: 6 Writing: 179 Waiting: 106
`

func TestParseActiveConnections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{name: "nginx stub_status", body: stubStatusBody, want: 291},
		{name: "single line", body: "Active connections: 7\n", want: 7},
		{name: "no trailing newline", body: "Active connections: 0", want: 0},
		{name: "label on later line", body: "header\nActive connections: 12\n", want: 12},
		{name: "missing label", body: "Reading: 1 Writing: 2\n", wantErr: true},
		{name: "not a number", body: "Active connections: many\n", wantErr: true},
		{name: "negative", body: "Active connections: -3\n", wantErr: true},
		{name: "empty", body: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseActiveConnections(strings.NewReader(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseActiveConnections = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProxyStatusProbeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		_, _ = w.Write([]byte(stubStatusBody))
	}))
	defer server.Close()

	status, err := NewProxyStatusProbe(server.URL, nil).Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe error: %v", err)
	}
	if status.ActiveConnections != 291 {
		t.Errorf("ActiveConnections = %d, want 291", status.ActiveConnections)
	}
}

func TestProxyStatusProbeFailures(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Active connections: 5", http.StatusNotFound)
	}))
	defer notFound.Close()

	malformed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>welcome to nginx</html>"))
	}))
	defer malformed.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	refusedURL := "http://" + ln.Addr().String() + "/nginx_status"
	ln.Close()

	tests := []struct {
		name string
		url  string
	}{
		{name: "non-200", url: notFound.URL},
		{name: "malformed body", url: malformed.URL},
		{name: "connection refused", url: refusedURL},
		{name: "invalid url", url: "://bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProxyStatusProbe(tt.url, nil).Probe(context.Background())
			if !errors.Is(err, ErrProxyStatus) {
				t.Errorf("Probe error = %v, want ErrProxyStatus", err)
			}
		})
	}
}

func TestProxyStatusProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := NewProxyStatusProbe(server.URL, nil).Probe(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrProxyStatus) {
		t.Fatalf("Probe error = %v, want ErrProxyStatus", err)
	}
	if elapsed > proxyStatusTimeout+time.Second {
		t.Errorf("probe should give up after %v, took %v", proxyStatusTimeout, elapsed)
	}
}
