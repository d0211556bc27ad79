package model

// NotAuthorized is the sentinel status written for a person missing from the
// reference table. The notifier scans for this exact value.
const NotAuthorized = "Not Authorized"

// ReferenceRecord is one authorized person from the reference sheet.
type ReferenceRecord struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Value     string `json:"value"`
}

// LogRow is one usage entry from the Logs sheet (columns B..L).
type LogRow struct {
	Row       int    `json:"row"` // 1-based sheet row number
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Status    string `json:"status"` // authorized value (usually an email) or NotAuthorized
	Device    string `json:"device"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Duration  string `json:"duration"`
	EndTime   string `json:"end_time"`
	FileName  string `json:"file_name"`
	Sent      bool   `json:"sent"`
}

// FullName joins first and last name the way the notification template expects.
func (r LogRow) FullName() string {
	return r.FirstName + " " + r.LastName
}

// Unauthorized reports whether the row's status is exactly the sentinel.
func (r LogRow) Unauthorized() bool {
	return r.Status == NotAuthorized
}

// Pending reports whether the row still needs to be visited by a sweep.
// Rows with an empty status have not been resolved yet and are left alone.
// Any other content, whitespace included, counts as a status.
func (r LogRow) Pending() bool {
	return !r.Sent && r.Status != ""
}
