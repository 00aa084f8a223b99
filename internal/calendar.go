package internal

// Calendar is an entry of the backend's calendar list.
type Calendar struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Primary  bool   `json:"primary,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

func (c Calendar) String() string {
	if c.Summary == "" {
		return c.ID
	}
	return c.Summary + " (" + c.ID + ")"
}

// Color is an event color of the backend palette.
type Color struct {
	Background string `json:"background"`
	Foreground string `json:"foreground"`
}

type Account struct {
	Platform string
	Name     string
	Auth     string
}

func (a Account) ID() string {
	return a.Platform + "/" + a.Name
}
