package remediation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PowerControl can restart a physical server by its identifier.
type PowerControl interface {
	Restart(ctx context.Context, server string) error
	// Verify confirms credentials and restart permission without acting.
	Verify(ctx context.Context, server string) error
}

// ErrServerNotFound: the account behind the credentials does not own the server.
var ErrServerNotFound = errors.New("server not found in account")

// APIError is a non-2xx answer from the power-control API.
type APIError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	return fmt.Sprintf("%s: HTTP %d %s", e.Op, e.StatusCode, strings.TrimSpace(msg))
}

// Rejected reports whether the API was reachable and refused the request.
// Server-side failures (5xx) are not rejections.
func (e *APIError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// RobotClient talks to the Hetzner Robot web service.
type RobotClient struct {
	BaseURL   string
	Username  string
	Password  string
	ResetType string
	Client    *http.Client
}

func NewRobotClient(baseURL, username, password, resetType string, timeout time.Duration) *RobotClient {
	if resetType == "" {
		resetType = "sw"
	}
	return &RobotClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Username:  username,
		Password:  password,
		ResetType: resetType,
		Client:    &http.Client{Timeout: timeout},
	}
}

type robotServer struct {
	Server struct {
		ServerIP     string `json:"server_ip"`
		ServerNumber int    `json:"server_number"`
		ServerName   string `json:"server_name"`
		Status       string `json:"status"`
	} `json:"server"`
}

type robotError struct {
	Error struct {
		Status  int    `json:"status"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Restart looks the server up by IP and issues a reset of ResetType.
func (c *RobotClient) Restart(ctx context.Context, server string) error {
	n, err := c.serverNumber(ctx, server)
	if err != nil {
		return err
	}
	form := url.Values{"type": {c.ResetType}}
	req, err := c.newRequest(ctx, http.MethodPost, "/reset/"+strconv.Itoa(n), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("reset server #%d: %w", n, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError("reset", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Verify checks the credentials, that the server belongs to the account, and
// that the reset endpoint is accessible, using only read requests.
func (c *RobotClient) Verify(ctx context.Context, server string) error {
	n, err := c.serverNumber(ctx, server)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodHead, "/reset/"+strconv.Itoa(n), nil)
	if err != nil {
		return err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("probe reset endpoint: %w", err)
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNotFound:
		return &APIError{Op: "verify reset", StatusCode: resp.StatusCode, Message: fmt.Sprintf("reset not available for server #%d", n)}
	case http.StatusForbidden, http.StatusUnauthorized:
		return &APIError{Op: "verify reset", StatusCode: resp.StatusCode, Message: fmt.Sprintf("reset permission denied for server #%d", n)}
	}
	return nil
}

func (c *RobotClient) serverNumber(ctx context.Context, ip string) (int, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/server", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("list servers: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, apiError("list servers", resp)
	}

	var servers []robotServer
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		return 0, fmt.Errorf("decode server list: %w", err)
	}
	for _, s := range servers {
		if s.Server.ServerIP == ip {
			return s.Server.ServerNumber, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrServerNotFound, ip)
}

func (c *RobotClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.Username, c.Password)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func apiError(op string, resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	e := &APIError{Op: op, StatusCode: resp.StatusCode, Message: string(raw)}
	var re robotError
	if json.Unmarshal(raw, &re) == nil && re.Error.Code != "" {
		e.Code = re.Error.Code
		e.Message = re.Error.Message
	}
	return e
}
