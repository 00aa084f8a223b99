package internal

import "time"

// Dispatch is the journal entry of one interpreted command. It keeps the
// outcome only, never the model text that produced it.
type Dispatch struct {
	RequestID string
	Kind      Kind
	OK        bool
	Stage     Stage
	Message   string
	CreatedAt time.Time
}

func NewDispatch(requestID string, res Result, at time.Time) Dispatch {
	d := Dispatch{
		RequestID: requestID,
		Kind:      res.Kind,
		OK:        res.OK,
		CreatedAt: at.UTC(),
	}
	if res.Error != nil {
		d.Stage = res.Error.Stage
		d.Message = res.Error.Message
	}
	return d
}
