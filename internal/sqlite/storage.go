package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/guilherme-santos/calcmd/internal"
)

const DriverName = "sqlite3"

var ErrAccountNotFound = errors.New("account not found")

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sql.DB) *Storage {
	s := &Storage{
		db: sqlx.NewDb(db, DriverName),
	}
	err := s.RunMigrations()
	if err != nil {
		panic(fmt.Sprintf("sqlite: running migrations: %v", err))
	}
	return s
}

func (s Storage) AddAccount(ctx context.Context, account *internal.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, auth) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET auth=?;
	`, account.ID(), account.Auth, account.Auth)
	return err
}

func (s Storage) Accounts(ctx context.Context) ([]*internal.Account, error) {
	var accs []Account
	err := s.db.SelectContext(ctx, &accs, `SELECT id, auth FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}

	res := make([]*internal.Account, len(accs))
	for i, a := range accs {
		res[i] = a.Convert()
	}
	return res, nil
}

// AccountToken returns the stored auth of accountID ("platform/name").
func (s Storage) AccountToken(ctx context.Context, accountID string) ([]byte, error) {
	var auth string
	err := s.db.GetContext(ctx, &auth, `SELECT auth FROM accounts WHERE id = ?`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, err
	}
	return []byte(auth), nil
}

func (s Storage) SaveAccountToken(ctx context.Context, accountID string, token []byte) error {
	acc := Account{ID: accountID, Auth: string(token)}.Convert()
	return s.AddAccount(ctx, acc)
}

func (s Storage) RecordDispatch(ctx context.Context, d internal.Dispatch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatches (request_id, kind, ok, stage, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.RequestID, string(d.Kind), d.OK, string(d.Stage), d.Message, d.CreatedAt.UTC())
	return err
}

// Dispatches returns the latest limit journal entries, newest first.
func (s Storage) Dispatches(ctx context.Context, limit int) ([]internal.Dispatch, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []Dispatch
	err := s.db.SelectContext(ctx, &rows, `
		SELECT request_id, kind, ok, stage, message, created_at
		FROM dispatches
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}

	res := make([]internal.Dispatch, len(rows))
	for i, r := range rows {
		res[i] = r.Convert()
	}
	return res, nil
}
