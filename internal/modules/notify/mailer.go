// README: Log-backed mailer. A real provider (SendGrid, SES) slots in behind the
// Mailer interface without touching callers.
package notify

import "log"

type LogMailer struct{}

func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (m *LogMailer) Send(to, subject, body string) error {
	log.Printf("mail to=%s subject=%q\n%s", to, subject, body)
	return nil
}
