package probe

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// startSSHServer runs an sshd that rejects every login.
func startSSHServer(t *testing.T) (string, int) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(ssh.ConnMetadata, []byte) (*ssh.Permissions, error) {
			return nil, errors.New("denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				_, _, _, _ = ssh.NewServerConn(c, cfg)
			}()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestSSHChecker_HandshakeReachesAuth(t *testing.T) {
	host, port := startSSHServer(t)
	out := NewSSHChecker(port, 2*time.Second).Check(context.Background(), host)
	if !out.Success {
		t.Fatalf("want success when sshd rejects auth, got %+v", out)
	}
}

// An open port that is not speaking SSH is not proof of a working sshd.
func TestSSHChecker_NotSSH(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = c.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
			c.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	out := NewSSHChecker(addr.Port, time.Second).Check(context.Background(), addr.IP.String())
	if out.Success {
		t.Fatalf("want failure for non-ssh service, got %+v", out)
	}
}

func TestSSHChecker_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	out := NewSSHChecker(addr.Port, time.Second).Check(context.Background(), addr.IP.String())
	if out.Success || out.Message == "" {
		t.Fatalf("want failure with message, got %+v", out)
	}
}

func TestSSHChecker_SilentServerTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close() // hold the connection open, never speak
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	out := NewSSHChecker(addr.Port, 0).Check(ctx, addr.IP.String())
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("check did not respect the context deadline")
	}
}
