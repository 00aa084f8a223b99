package sqlite

import (
	"strings"
	"time"

	"github.com/guilherme-santos/calcmd/internal"
)

type Account struct {
	ID   string
	Auth string
}

func (a Account) Convert() *internal.Account {
	acc := &internal.Account{
		Auth: a.Auth,
	}
	acc.Platform, acc.Name, _ = strings.Cut(a.ID, "/")
	return acc
}

type Dispatch struct {
	RequestID string    `db:"request_id"`
	Kind      string    `db:"kind"`
	OK        bool      `db:"ok"`
	Stage     string    `db:"stage"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}

func (d Dispatch) Convert() internal.Dispatch {
	return internal.Dispatch{
		RequestID: d.RequestID,
		Kind:      internal.Kind(d.Kind),
		OK:        d.OK,
		Stage:     internal.Stage(d.Stage),
		Message:   d.Message,
		CreatedAt: d.CreatedAt.UTC(),
	}
}
