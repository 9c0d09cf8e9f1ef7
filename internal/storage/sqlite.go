// Package storage keeps the queryable history ledger in SQLite: finished
// player sessions and maintenance run outcomes. The canonical playtime
// totals live in the playtime package's mapping file; this is the archive
// behind the admin API.
package storage

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite" // Driver sqlite
)

// Session is one finished player session.
type Session struct {
	JoinedAt time.Time `json:"joined_at"`
	LeftAt   time.Time `json:"left_at"`
	Profile  string    `json:"profile"`
	Identity string    `json:"identity"`
	Seconds  int64     `json:"seconds"`
}

// MaintenanceRun is the recorded outcome of one scheduled maintenance task.
type MaintenanceRun struct {
	RanAt   time.Time `json:"ran_at"`
	Profile string    `json:"profile"`
	Task    string    `json:"task"`
	Outcome string    `json:"outcome"`
	OK      bool      `json:"ok"`
}

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes a new SQLite connection, sets connection pool parameters,
// and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// RecordSession appends a finished session to the ledger.
func (r *Repository) RecordSession(s Session) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions (profile, identity, joined_at, left_at, seconds) VALUES (?, ?, ?, ?, ?)`,
		s.Profile, s.Identity, s.JoinedAt, s.LeftAt, s.Seconds,
	)

	return err
}

// RecordMaintenance appends a maintenance run outcome.
func (r *Repository) RecordMaintenance(m MaintenanceRun) error {
	_, err := r.db.Exec(
		`INSERT INTO maintenance_runs (profile, task, ok, outcome, ran_at) VALUES (?, ?, ?, ?, ?)`,
		m.Profile, m.Task, m.OK, m.Outcome, m.RanAt,
	)

	return err
}

// Sessions returns the most recent sessions, newest first. An empty
// profile means all profiles.
func (r *Repository) Sessions(profile string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT profile, identity, joined_at, left_at, seconds FROM sessions`
	var args []interface{}
	if profile != "" {
		query += ` WHERE profile = ?`
		args = append(args, profile)
	}
	query += ` ORDER BY left_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.Profile, &s.Identity, &s.JoinedAt, &s.LeftAt, &s.Seconds); err != nil {
			continue
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// MaintenanceRuns returns the most recent maintenance outcomes, newest
// first. An empty profile means all profiles.
func (r *Repository) MaintenanceRuns(profile string, limit int) ([]MaintenanceRun, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT profile, task, ok, outcome, ran_at FROM maintenance_runs`
	var args []interface{}
	if profile != "" {
		query += ` WHERE profile = ?`
		args = append(args, profile)
	}
	query += ` ORDER BY ran_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []MaintenanceRun
	for rows.Next() {
		var m MaintenanceRun
		if err := rows.Scan(&m.Profile, &m.Task, &m.OK, &m.Outcome, &m.RanAt); err != nil {
			continue
		}
		runs = append(runs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}
