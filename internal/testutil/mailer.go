package testutil

import "sync"

// SentEmail is one message captured by RecordingMailer.
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// RecordingMailer captures alert emails instead of sending them.
type RecordingMailer struct {
	mu     sync.Mutex
	sent   []SentEmail
	Result bool
}

// NewRecordingMailer returns a mailer that reports every send as delivered.
func NewRecordingMailer() *RecordingMailer {
	return &RecordingMailer{Result: true}
}

func (m *RecordingMailer) SendAlertEmail(to, subject, body string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentEmail{To: to, Subject: subject, Body: body})
	return m.Result
}

// Sent returns a copy of the captured messages.
func (m *RecordingMailer) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.sent...)
}
