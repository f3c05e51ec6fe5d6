package probe

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

// SSHChecker dials the SSH port and runs the transport handshake. It carries
// no credentials: a server that gets as far as rejecting authentication has
// proven its sshd is alive, which an open TCP port alone does not.
type SSHChecker struct {
	Port    int
	Timeout time.Duration
	User    string
}

func NewSSHChecker(port int, timeout time.Duration) *SSHChecker {
	return &SSHChecker{Port: port, Timeout: timeout, User: "serverwatch"}
}

func (s *SSHChecker) Name() domain.CheckName { return domain.CheckSSH }

func (s *SSHChecker) Check(ctx context.Context, host string) domain.CheckResult {
	start := time.Now()
	addr := net.JoinHostPort(host, strconv.Itoa(s.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return failed(domain.CheckSSH, start, err.Error())
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else if s.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.Timeout))
	}

	cfg := &ssh.ClientConfig{
		User:            s.User,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         s.Timeout,
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	latency := time.Since(start)
	if err == nil {
		_ = ssh.NewClient(c, chans, reqs).Close()
		return domain.CheckResult{Name: domain.CheckSSH, Success: true, Latency: latency, Message: "handshake ok"}
	}
	if isAuthRejection(err) {
		return domain.CheckResult{Name: domain.CheckSSH, Success: true, Latency: latency, Message: "handshake ok (auth required)"}
	}
	return domain.CheckResult{Name: domain.CheckSSH, Success: false, Latency: latency, Message: err.Error()}
}

func isAuthRejection(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}
