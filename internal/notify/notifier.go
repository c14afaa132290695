// Package notify is the fire-and-forget notification boundary. The core
// triggers sends but never awaits or depends on their outcome.
package notify

import (
	"fmt"
	"net/smtp"

	"github.com/sirupsen/logrus"
)

// Notifier delivers a message to a user. Implementations must not block the
// caller on delivery problems; errors are for logging only.
type Notifier interface {
	Send(toEmail, subject, body string) error
}

// EmailNotifier sends plain-text email over SMTP.
type EmailNotifier struct {
	host     string
	port     string
	user     string
	password string
	from     string
}

func NewEmailNotifier(host, port, user, password, from string) *EmailNotifier {
	return &EmailNotifier{host: host, port: port, user: user, password: password, from: from}
}

func (s *EmailNotifier) Send(toEmail, subject, body string) error {
	if s.host == "" || s.port == "" || s.user == "" || s.password == "" {
		return fmt.Errorf("SMTP credentials not fully configured")
	}

	auth := smtp.PlainAuth("", s.user, s.password, s.host)

	message := []byte(fmt.Sprintf("To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", toEmail, subject, body))

	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	if err := smtp.SendMail(addr, auth, s.from, []string{toEmail}, message); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// LogNotifier writes notifications to the log; used when SMTP is not
// configured and in tests.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n *LogNotifier) Send(toEmail, subject, body string) error {
	n.Log.WithFields(logrus.Fields{"to": toEmail, "subject": subject}).Info("notification")
	return nil
}
