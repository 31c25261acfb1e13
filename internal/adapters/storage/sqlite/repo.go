package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hylla/reqtrack/internal/app"
	"github.com/hylla/reqtrack/internal/domain"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// tsLayout is fixed-width so text ordering in SQL matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Repository represents repository data used by this package.
type Repository struct {
	db  *sql.DB
	loc *time.Location
}

// Option configures a repository.
type Option func(*Repository)

// WithLocation sets the timezone used to derive calendar dates for range queries.
func WithLocation(loc *time.Location) Option {
	return func(r *Repository) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// Open opens the requested operation.
func Open(path string, opts ...Option) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db, opts)
}

// OpenInMemory opens an isolated in-memory database.
func OpenInMemory(opts ...Option) (*Repository, error) {
	db, err := sql.Open(driverName, fmt.Sprintf("file:reqtrack-%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newRepository(db, opts)
}

// newRepository applies options and migrates the schema.
func newRepository(db *sql.DB, opts []Option) (*Repository, error) {
	repo := &Repository{db: db, loc: time.Local}
	for _, opt := range opts {
		opt(repo)
	}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS activity_entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			request_id TEXT NOT NULL,
			request_internal_id TEXT NOT NULL DEFAULT '',
			request_title TEXT NOT NULL DEFAULT '',
			actor_id TEXT,
			actor_name TEXT NOT NULL DEFAULT '',
			team_id TEXT,
			fiscal_year INTEGER,
			type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			created_date TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_activity_entries_created_date ON activity_entries(created_date, created_at, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_activity_entries_request ON activity_entries(request_id, created_at, seq);`,
		`CREATE TABLE IF NOT EXISTS requests (
			id TEXT PRIMARY KEY,
			internal_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			assignee_id TEXT,
			team_id TEXT,
			fiscal_year INTEGER,
			status TEXT NOT NULL DEFAULT 'open',
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'viewer',
			team_id TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_team ON users(team_id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// entryColumns lists the activity_entries columns in scan order.
const entryColumns = `seq, id, request_id, request_internal_id, request_title, actor_id, actor_name, team_id, fiscal_year, type, description, metadata_json, created_at`

// ListByDateRange returns entries whose local calendar date lies in [startDate, endDate].
func (r *Repository) ListByDateRange(ctx context.Context, startDate, endDate string) ([]domain.ActivityEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM activity_entries
		WHERE created_date >= ? AND created_date <= ?
		ORDER BY created_at ASC, seq ASC
	`, startDate, endDate)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// ListAll returns every entry in append order.
func (r *Repository) ListAll(ctx context.Context) ([]domain.ActivityEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM activity_entries
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Append inserts one entry and returns it with the assigned sequence number.
func (r *Repository) Append(ctx context.Context, entry domain.ActivityEntry) (domain.ActivityEntry, error) {
	args, err := r.entryArgs(entry)
	if err != nil {
		return domain.ActivityEntry{}, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_entries(
			id, request_id, request_internal_id, request_title, actor_id, actor_name, team_id, fiscal_year,
			type, description, metadata_json, created_at, created_date
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return domain.ActivityEntry{}, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return domain.ActivityEntry{}, err
	}
	entry.Seq = seq
	return entry, nil
}

// ImportEntry inserts an entry unless its id already exists.
func (r *Repository) ImportEntry(ctx context.Context, entry domain.ActivityEntry) (bool, error) {
	args, err := r.entryArgs(entry)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_entries(
			id, request_id, request_internal_id, request_title, actor_id, actor_name, team_id, fiscal_year,
			type, description, metadata_json, created_at, created_date
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// entryArgs encodes an entry's insert arguments.
func (r *Repository) entryArgs(e domain.ActivityEntry) ([]any, error) {
	metadata, err := encodeMetadata(e.Metadata)
	if err != nil {
		return nil, err
	}
	return []any{
		e.ID, e.RequestID, e.RequestInternalID, e.RequestTitle, nullableString(e.ActorID), e.ActorName,
		nullableString(e.TeamID), nullableInt(e.FiscalYear), string(e.Type), e.Description, metadata,
		ts(e.CreatedAt), e.LocalDate(r.loc),
	}, nil
}

// ListVisibleRequests returns requests matching scope, ordered by id.
func (r *Repository) ListVisibleRequests(ctx context.Context, scope domain.RequestScope) ([]domain.Request, error) {
	var (
		clauses []string
		args    []any
	)
	if scope.TeamID != "" {
		clauses = append(clauses, "team_id = ?")
		args = append(args, scope.TeamID)
	}
	if scope.FiscalYear != 0 {
		clauses = append(clauses, "fiscal_year = ?")
		args = append(args, scope.FiscalYear)
	}
	query := `SELECT id, internal_id, title, assignee_id, team_id, fiscal_year, status, created_at FROM requests`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// FindRequest returns one request by id.
func (r *Repository) FindRequest(ctx context.Context, id string) (domain.Request, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, internal_id, title, assignee_id, team_id, fiscal_year, status, created_at
		FROM requests
		WHERE id = ?
	`, id)
	return scanRequest(row)
}

// UpsertRequest creates or replaces a request directory row.
func (r *Repository) UpsertRequest(ctx context.Context, req domain.Request) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO requests(id, internal_id, title, assignee_id, team_id, fiscal_year, status, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			internal_id = excluded.internal_id,
			title = excluded.title,
			assignee_id = excluded.assignee_id,
			team_id = excluded.team_id,
			fiscal_year = excluded.fiscal_year,
			status = excluded.status
	`, req.ID, req.InternalID, req.Title, nullableString(req.AssigneeID), nullableString(req.TeamID), nullableInt(req.FiscalYear), req.Status, ts(req.CreatedAt))
	return err
}

// ListUsersByTeam returns the users of one team, ordered by id.
func (r *Repository) ListUsersByTeam(ctx context.Context, teamID string) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, display_name, role, team_id FROM users WHERE team_id = ? ORDER BY id ASC
	`, teamID)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

// ListUsers returns every user, ordered by id.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, display_name, role, team_id FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

// FindUser returns one user by id.
func (r *Repository) FindUser(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, display_name, role, team_id FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// UpsertUser creates or replaces a user directory row.
func (r *Repository) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users(id, display_name, role, team_id) VALUES(?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			role = excluded.role,
			team_id = excluded.team_id
	`, u.ID, u.DisplayName, string(u.Role), nullableString(u.TeamID))
	return err
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanEntries drains rows into entries.
func scanEntries(rows *sql.Rows) ([]domain.ActivityEntry, error) {
	defer rows.Close()
	out := make([]domain.ActivityEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// scanEntry handles scan entry.
func scanEntry(s scanner) (domain.ActivityEntry, error) {
	var (
		e           domain.ActivityEntry
		actorID     sql.NullString
		teamID      sql.NullString
		fiscalYear  sql.NullInt64
		typeRaw     string
		metadataRaw string
		createdRaw  string
	)
	if err := s.Scan(&e.Seq, &e.ID, &e.RequestID, &e.RequestInternalID, &e.RequestTitle, &actorID, &e.ActorName, &teamID, &fiscalYear, &typeRaw, &e.Description, &metadataRaw, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ActivityEntry{}, app.ErrNotFound
		}
		return domain.ActivityEntry{}, err
	}
	metadata, err := decodeMetadata(metadataRaw)
	if err != nil {
		return domain.ActivityEntry{}, fmt.Errorf("decode activity_entries.metadata_json: %w", err)
	}
	e.ActorID = parseNullString(actorID)
	e.TeamID = parseNullString(teamID)
	e.FiscalYear = parseNullInt(fiscalYear)
	e.Type = domain.NormalizeActivityType(domain.ActivityType(typeRaw))
	e.Metadata = metadata
	e.CreatedAt = parseTS(createdRaw)
	return e, nil
}

// scanRequest handles scan request.
func scanRequest(s scanner) (domain.Request, error) {
	var (
		req        domain.Request
		assigneeID sql.NullString
		teamID     sql.NullString
		fiscalYear sql.NullInt64
		createdRaw string
	)
	if err := s.Scan(&req.ID, &req.InternalID, &req.Title, &assigneeID, &teamID, &fiscalYear, &req.Status, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Request{}, app.ErrNotFound
		}
		return domain.Request{}, err
	}
	req.AssigneeID = parseNullString(assigneeID)
	req.TeamID = parseNullString(teamID)
	req.FiscalYear = parseNullInt(fiscalYear)
	req.CreatedAt = parseTS(createdRaw)
	return req, nil
}

// scanUsers drains rows into users.
func scanUsers(rows *sql.Rows) ([]domain.User, error) {
	defer rows.Close()
	out := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// scanUser handles scan user.
func scanUser(s scanner) (domain.User, error) {
	var (
		u      domain.User
		role   string
		teamID sql.NullString
	)
	if err := s.Scan(&u.ID, &u.DisplayName, &role, &teamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, app.ErrNotFound
		}
		return domain.User{}, err
	}
	u.Role = domain.NormalizeRole(domain.Role(role))
	u.TeamID = parseNullString(teamID)
	return u, nil
}

// encodeMetadata handles encode metadata.
func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(raw), nil
}

// decodeMetadata keeps integers exact by decoding numbers as json.Number.
func decodeMetadata(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" || raw == "{}" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// nullableString handles nullable string.
func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// nullableInt handles nullable int.
func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// parseNullString parses input into a normalized form.
func parseNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// parseNullInt parses input into a normalized form.
func parseNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
