package notifier

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	gomail "gopkg.in/gomail.v2"
)

type SmtpOpts func(n *SmtpNotifier)

// SmtpNotifier sends a "report ready" mail with a download link.
type SmtpNotifier struct {
	dialer  *gomail.Dialer
	from    string
	baseUrl string
}

var _ Notifier = (*SmtpNotifier)(nil)

func NewSmtpNotifier(host string, port int, user, password string, opts ...SmtpOpts) *SmtpNotifier {
	n := &SmtpNotifier{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   "noreply@example.com",
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *SmtpNotifier) Notify(ctx context.Context, recipient string, reportID uuid.UUID) error {
	if recipient == "" {
		return nil
	}

	downloadUrl := fmt.Sprintf("%s/api/v1/reports/%s/download", n.baseUrl, reportID)

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", "Your report is ready")
	m.SetBody("text/html", fmt.Sprintf(
		`<h2>Your report is ready for download</h2>
<p><a href=%q>Download Report</a></p>
<p>If you did not request this report, please ignore this email.</p>`, downloadUrl))

	return n.dialer.DialAndSend(m)
}

func WithFrom(from string) SmtpOpts {
	return func(n *SmtpNotifier) {
		n.from = from
	}
}

func WithBaseUrl(baseUrl string) SmtpOpts {
	return func(n *SmtpNotifier) {
		n.baseUrl = baseUrl
	}
}
