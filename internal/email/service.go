package email

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

var ErrNoRecipient = errors.New("email: recipient is required")

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service handles email sending via SMTP
type Service struct {
	host     string
	port     string
	from     string
	auth     smtp.Auth
	sendMail SendFunc
}

// NewService creates a new email service. username may be empty for relays
// that accept unauthenticated mail.
func NewService(host, port, from, username, password string) *Service {
	s := &Service{
		host:     host,
		port:     port,
		from:     from,
		sendMail: smtp.SendMail,
	}
	if username != "" {
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

// WithSendFunc replaces the transport, mainly for tests.
func (s *Service) WithSendFunc(fn SendFunc) *Service {
	s.sendMail = fn
	return s
}

// SendReceipt sends a checkout receipt.
func (s *Service) SendReceipt(to string, r Receipt) error {
	if strings.TrimSpace(to) == "" {
		return ErrNoRecipient
	}
	ref := r.TransactionRef
	if len(ref) > 12 {
		ref = ref[:12]
	}
	subject := fmt.Sprintf("Your receipt (ref %s)", ref)
	body, err := BuildReceiptBody(r)
	if err != nil {
		return err
	}
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	if err := s.sendMail(addr, s.auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
