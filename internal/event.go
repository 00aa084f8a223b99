package internal

// Event is the canonical shape of a calendar event, whatever the backend
// returned for it.
type Event struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Location    string   `json:"location"`
	Attendees   []string `json:"attendees"`
	ColorID     string   `json:"colorId,omitempty"`
	CalendarID  string   `json:"calendarId,omitempty"`
}

// Interval is a busy or free period, both ends in RFC3339 UTC.
type Interval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Window is a normalized time range. Start is always strictly before End.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Zone  string `json:"zone"`
}
