package probe

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

// HTTPChecker treats any HTTP response as proof of life: a 500 still means
// the machine is up and serving. Only transport failures count as down.
type HTTPChecker struct {
	Client *http.Client
	Scheme string
	Port   int
	name   domain.CheckName
}

func NewHTTPChecker(port int, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		Client: newClient(timeout, nil),
		Scheme: "http",
		Port:   port,
		name:   domain.CheckHTTP,
	}
}

// NewHTTPSChecker skips certificate verification; targets are usually
// addressed by IP and the certificate would never match.
func NewHTTPSChecker(port int, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		Client: newClient(timeout, &tls.Config{InsecureSkipVerify: true}), //nolint:gosec
		Scheme: "https",
		Port:   port,
		name:   domain.CheckHTTPS,
	}
}

func newClient(timeout time.Duration, tlsCfg *tls.Config) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = tlsCfg
	tr.DisableKeepAlives = true
	tr.Proxy = nil // reachability of the host itself, never via a proxy
	return &http.Client{
		Timeout:   timeout,
		Transport: tr,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (h *HTTPChecker) Name() domain.CheckName { return h.name }

func (h *HTTPChecker) Check(ctx context.Context, host string) domain.CheckResult {
	start := time.Now()
	target := h.Scheme + "://" + net.JoinHostPort(host, strconv.Itoa(h.Port)) + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return failed(h.name, start, err.Error())
	}

	resp, err := h.Client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return domain.CheckResult{Name: h.name, Success: false, Latency: latency, Message: err.Error()}
	}
	defer resp.Body.Close()

	return domain.CheckResult{
		Name:    h.name,
		Success: true,
		Latency: latency,
		Message: resp.Status,
	}
}
