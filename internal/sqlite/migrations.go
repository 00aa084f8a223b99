package sqlite

func (s Storage) RunMigrations() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id VARCHAR NOT NULL PRIMARY KEY,
		auth TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dispatches (
		request_id VARCHAR NOT NULL PRIMARY KEY,
		kind VARCHAR NOT NULL DEFAULT '',
		ok BOOLEAN NOT NULL,
		stage VARCHAR NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS dispatches_created_at ON dispatches (created_at)`,
}
