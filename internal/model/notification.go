package model

import "time"

// NoticeTemplate is the name of the template used for unauthorized-print notices.
const NoticeTemplate = "NoEmail"

// Notice holds the fields rendered into the notification body.
type Notice struct {
	FullName string `json:"full_name"`
	Printer  string `json:"printer"`
	FileName string `json:"file_name"`
}

// Envelope is a fully built outbound email.
type Envelope struct {
	FromName    string `json:"from_name"`
	FromAddress string `json:"from_address,omitempty"`
	To          string `json:"to"`
	Subject     string `json:"subject"`
	HTMLBody    string `json:"html_body"`
}

// FailedNotification is an envelope whose delivery failed during a sweep.
// The originating row stays processed; the entry allows later redelivery.
type FailedNotification struct {
	ID           string    `json:"id"`
	SweepID      string    `json:"sweep_id"`
	Row          int       `json:"row"`
	Envelope     Envelope  `json:"envelope"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	Delivered    bool      `json:"delivered"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (f *FailedNotification) CanRetry() bool {
	return !f.Delivered && f.RetryCount < f.MaxRetries
}
