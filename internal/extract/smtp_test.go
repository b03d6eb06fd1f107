package extract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

type staticMX struct {
	host string
	err  error
}

func (s staticMX) MailHost(context.Context, string) (string, error) { return s.host, s.err }

// fakeSMTP accepts RCPT only for the given mailboxes.
func fakeSMTP(t *testing.T, accept map[string]bool) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handleSMTP(conn, accept)
		}
	}()
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	return port
}

func handleSMTP(conn net.Conn, accept map[string]bool) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	fmt.Fprint(conn, "220 mx.test ESMTP\r\n")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			fmt.Fprint(conn, "250 mx.test\r\n")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			fmt.Fprint(conn, "250 2.1.0 ok\r\n")
		case strings.HasPrefix(cmd, "RCPT TO"):
			addr := strings.ToLower(strings.Trim(strings.TrimSpace(line[len("RCPT TO:"):]), "<>"))
			if accept[addr] {
				fmt.Fprint(conn, "250 2.1.5 ok\r\n")
			} else {
				fmt.Fprint(conn, "550 5.1.1 no such user\r\n")
			}
		case strings.HasPrefix(cmd, "QUIT"):
			fmt.Fprint(conn, "221 bye\r\n")
			return
		default:
			fmt.Fprint(conn, "502 not implemented\r\n")
		}
	}
}

func TestSMTPVerifier(t *testing.T) {
	port := fakeSMTP(t, map[string]bool{"jane@acme.io": true})
	v := NewSMTPVerifier(SMTPConfig{Port: port, Timeout: 2 * time.Second, HeloHost: "probe.test"}, staticMX{host: "127.0.0.1"}, nil)

	tests := []struct {
		email string
		want  Verdict
	}{
		{"jane@acme.io", VerdictExists},
		{"nobody@acme.io", VerdictRejected},
		{"not-an-address", VerdictUnknown},
	}
	for _, tt := range tests {
		if got := v.Verify(context.Background(), tt.email); got != tt.want {
			t.Errorf("Verify(%q) = %s, want %s", tt.email, got, tt.want)
		}
	}
}

func TestSMTPVerifierUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()

	v := NewSMTPVerifier(SMTPConfig{Port: port, Timeout: time.Second}, staticMX{host: "127.0.0.1"}, nil)
	if got := v.Verify(context.Background(), "jane@acme.io"); got != VerdictUnknown {
		t.Errorf("closed port verdict = %s", got)
	}

	v = NewSMTPVerifier(SMTPConfig{}, staticMX{err: errors.New("no mx")}, nil)
	if got := v.Verify(context.Background(), "jane@acme.io"); got != VerdictUnknown {
		t.Errorf("no mx verdict = %s", got)
	}
}

func TestSMTPVerifierCanceled(t *testing.T) {
	v := NewSMTPVerifier(SMTPConfig{Concurrency: 1}, staticMX{host: "127.0.0.1"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := v.Verify(ctx, "jane@acme.io"); got != VerdictUnknown {
		t.Errorf("canceled verdict = %s", got)
	}
}
