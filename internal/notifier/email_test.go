package notifier

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
)

func TestSMTPSenderBuildsMultipart(t *testing.T) {
	t.Parallel()

	var (
		gotTo   []string
		gotData string
	)
	s := NewSMTPSender(EmailConfig{Host: "smtp.example.com", Port: 587, From: "jobs@example.com"})
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "smtp.example.com:587" {
			t.Errorf("unexpected addr %s", addr)
		}
		gotTo = to
		gotData = string(msg)
		return nil
	}

	msg := Message{
		To:      "s1@example.com",
		Subject: "New Job Posted: Go Developer",
		HTML:    "<h2>Go Developer</h2><p>Location: Remote</p>",
	}
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	if len(gotTo) != 1 || gotTo[0] != "s1@example.com" {
		t.Fatalf("expected single recipient, got %v", gotTo)
	}
	for _, want := range []string{
		"Subject: New Job Posted: Go Developer",
		"multipart/alternative",
		"text/plain; charset=utf-8",
		"text/html; charset=utf-8",
		"Location: Remote",
	} {
		if !strings.Contains(gotData, want) {
			t.Fatalf("expected mail data to contain %q, got %s", want, gotData)
		}
	}
}

func TestSMTPSenderRejectsEmptyRecipient(t *testing.T) {
	t.Parallel()

	s := NewSMTPSender(EmailConfig{Host: "smtp", Port: 25})
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatalf("sendMail must not be called")
		return nil
	}
	if err := s.Send(context.Background(), Message{Subject: "x"}); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	got := PlainText(`<h2>New Job</h2><style>p{color:red}</style><p>Title: Go   Developer</p><p>Location:<br>Remote</p>`)
	want := "New Job\nTitle: Go Developer\nLocation:\nRemote"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

// --- stubs ---

type stubSender struct {
	mu     sync.Mutex
	sent   []Message
	failTo map[string]bool
}

func (s *stubSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if s.failTo[msg.To] {
		return errors.New("mailbox unavailable")
	}
	return ctx.Err()
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}
