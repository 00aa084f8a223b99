package internal

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownKind = errors.New("unknown command kind")

type Kind string

func (k Kind) String() string {
	return string(k)
}

const (
	KindCreate        Kind = "create"
	KindList          Kind = "list"
	KindSearch        Kind = "search"
	KindUpdate        Kind = "update"
	KindDelete        Kind = "delete"
	KindAvailability  Kind = "availability"
	KindListCalendars Kind = "list-calendars"
	KindListColors    Kind = "list-colors"
	KindCurrentTime   Kind = "current-time"
	KindFreeBusy      Kind = "free-busy"
)

// Kinds lists the closed set of command kinds.
var Kinds = []Kind{
	KindCreate,
	KindList,
	KindSearch,
	KindUpdate,
	KindDelete,
	KindAvailability,
	KindListCalendars,
	KindListColors,
	KindCurrentTime,
	KindFreeBusy,
}

// kindAliases maps protocol operation names and other spellings models tend
// to produce onto a Kind.
var kindAliases = map[string]Kind{
	OpCreateEvent:    KindCreate,
	OpListEvents:     KindList,
	OpSearchEvents:   KindSearch,
	OpUpdateEvent:    KindUpdate,
	OpDeleteEvent:    KindDelete,
	OpListCalendars:  KindListCalendars,
	OpListColors:     KindListColors,
	OpGetCurrentTime: KindCurrentTime,
	OpGetFreeBusy:    KindFreeBusy,

	"freebusy":           KindFreeBusy,
	"check-availability": KindAvailability,
}

// ParseKind accepts a canonical kind, a protocol operation name, or either
// of those written with underscores or mixed case.
func ParseKind(s string) (Kind, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "_", "-")
	for _, k := range Kinds {
		if v == string(k) {
			return k, nil
		}
	}
	if k, ok := kindAliases[v]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Command is a calendar instruction found in model output. It lives for one
// chat turn and is never persisted.
type Command struct {
	Kind     Kind           `json:"kind"`
	Params   map[string]any `json:"params"`
	Message  string         `json:"humanMessage,omitempty"`
	Repaired bool           `json:"repaired,omitempty"`
}

// Param returns the first present parameter among names. Null and blank
// strings count as absent.
func (c *Command) Param(names ...string) (any, bool) {
	for _, name := range names {
		v, ok := c.Params[name]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}
