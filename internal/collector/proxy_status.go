package collector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lb-heartbeat-agent/internal/model"
)

const (
	activeConnectionsLabel = "Active connections:"
	proxyStatusTimeout     = 2 * time.Second
)

// ErrProxyStatus wraps every reason the proxy status page could not be used.
var ErrProxyStatus = errors.New("proxy status unavailable")

// ProxyStatusProbe reads the live connection count from the local reverse
// proxy's stub_status page.
type ProxyStatusProbe struct {
	url    string
	client *http.Client
}

func NewProxyStatusProbe(url string, client *http.Client) *ProxyStatusProbe {
	if client == nil {
		client = &http.Client{Timeout: proxyStatusTimeout}
	}
	return &ProxyStatusProbe{url: url, client: client}
}

func (p *ProxyStatusProbe) Probe(ctx context.Context) (model.ProxyStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, proxyStatusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return model.ProxyStatus{}, fmt.Errorf("%w: %v", ErrProxyStatus, err)
	}
	res, err := p.client.Do(req)
	if err != nil {
		return model.ProxyStatus{}, fmt.Errorf("%w: %v", ErrProxyStatus, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return model.ProxyStatus{}, fmt.Errorf("%w: status %s", ErrProxyStatus, res.Status)
	}

	n, err := ParseActiveConnections(res.Body)
	if err != nil {
		return model.ProxyStatus{}, fmt.Errorf("%w: %v", ErrProxyStatus, err)
	}
	return model.ProxyStatus{ActiveConnections: n}, nil
}

// ParseActiveConnections scans an nginx stub_status body for the first line
// holding "Active connections:" and returns the integer after the colon.
func ParseActiveConnections(r io.Reader) (int, error) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := s.Text()
		if !strings.Contains(line, activeConnectionsLabel) {
			continue
		}
		_, value, _ := strings.Cut(line, ":")
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("parse active connections %q: %w", line, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("negative active connections %d", n)
		}
		return n, nil
	}
	if err := s.Err(); err != nil {
		return 0, fmt.Errorf("scan status page: %w", err)
	}
	return 0, errors.New("active connections line not found")
}
