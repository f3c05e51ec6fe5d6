package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

const (
	protoICMP   = 1
	protoICMPv6 = 58
)

var pingSeq atomic.Uint32

// PingChecker sends one ICMP echo request and waits for the matching reply.
// It prefers unprivileged datagram sockets and falls back to raw sockets.
type PingChecker struct {
	Payload []byte
	// Listen opens the ICMP socket; nil uses icmp.ListenPacket.
	Listen func(network, address string) (*icmp.PacketConn, error)
}

func NewPingChecker() *PingChecker {
	return &PingChecker{Payload: []byte("serverwatch"), Listen: icmp.ListenPacket}
}

func (p *PingChecker) Name() domain.CheckName { return domain.CheckPing }

func (p *PingChecker) Check(ctx context.Context, host string) domain.CheckResult {
	start := time.Now()

	ip, err := resolveOne(ctx, host)
	if err != nil {
		return failed(domain.CheckPing, start, err.Error())
	}
	v6 := ip.To4() == nil

	conn, privileged, err := p.open(v6)
	if err != nil {
		return failed(domain.CheckPing, start, err.Error())
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	_ = conn.SetDeadline(deadline)

	seq := int(pingSeq.Add(1) & 0xffff)
	msg := icmp.Message{
		Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: seq, Data: p.Payload},
	}
	proto := protoICMP
	if v6 {
		msg.Type = ipv6.ICMPTypeEchoRequest
		proto = protoICMPv6
	} else {
		msg.Type = ipv4.ICMPTypeEcho
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return failed(domain.CheckPing, start, err.Error())
	}

	var dst net.Addr = &net.UDPAddr{IP: ip}
	if privileged {
		dst = &net.IPAddr{IP: ip}
	}
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return failed(domain.CheckPing, start, err.Error())
	}

	rb := make([]byte, 1500)
	for {
		if ctx.Err() != nil {
			return failed(domain.CheckPing, start, ctx.Err().Error())
		}
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			return failed(domain.CheckPing, start, err.Error())
		}
		if !sameHost(peer, ip) {
			continue
		}
		rm, err := icmp.ParseMessage(proto, rb[:n])
		if err != nil {
			continue
		}
		if rm.Type != ipv4.ICMPTypeEchoReply && rm.Type != ipv6.ICMPTypeEchoReply {
			continue
		}
		// Unprivileged sockets get their echo ID rewritten by the kernel, so
		// only the sequence number is matched.
		if echo, ok := rm.Body.(*icmp.Echo); ok && echo.Seq == seq {
			return domain.CheckResult{
				Name:    domain.CheckPing,
				Success: true,
				Latency: time.Since(start),
				Message: fmt.Sprintf("echo reply from %s", ip),
			}
		}
	}
}

func (p *PingChecker) open(v6 bool) (*icmp.PacketConn, bool, error) {
	listen := p.Listen
	if listen == nil {
		listen = icmp.ListenPacket
	}
	dgram, raw, addr := "udp4", "ip4:icmp", "0.0.0.0"
	if v6 {
		dgram, raw, addr = "udp6", "ip6:ipv6-icmp", "::"
	}
	conn, err := listen(dgram, addr)
	if err == nil {
		return conn, false, nil
	}
	conn, rerr := listen(raw, addr)
	if rerr == nil {
		return conn, true, nil
	}
	return nil, false, fmt.Errorf("open icmp socket: %w", errors.Join(err, rerr))
}

func resolveOne(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	ips, err := Lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no address for %s", host)
	}
	return ips[0], nil
}

func sameHost(peer net.Addr, ip net.IP) bool {
	switch a := peer.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	}
	return false
}
