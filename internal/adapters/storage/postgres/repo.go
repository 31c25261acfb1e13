// Package postgres implements the activity store and directories on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hylla/reqtrack/internal/app"
	"github.com/hylla/reqtrack/internal/domain"
)

// Repository represents repository data used by this package.
type Repository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// Open connects to dsn, verifies connectivity, and migrates the schema.
func Open(ctx context.Context, dsn string, loc *time.Location) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if loc == nil {
		loc = time.Local
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	repo := &Repository{pool: pool, loc: loc}
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activity_entries (
			seq BIGSERIAL PRIMARY KEY,
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
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL,
			created_date TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_entries_created_date ON activity_entries(created_date, created_at, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_entries_request ON activity_entries(request_id, created_at, seq)`,
		`CREATE TABLE IF NOT EXISTS requests (
			id TEXT PRIMARY KEY,
			internal_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			assignee_id TEXT,
			team_id TEXT,
			fiscal_year INTEGER,
			status TEXT NOT NULL DEFAULT 'open',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'viewer',
			team_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_team ON users(team_id)`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}
	return nil
}

// entryColumns lists the activity_entries columns in scan order.
const entryColumns = `seq, id, request_id, request_internal_id, request_title, actor_id, actor_name, team_id, fiscal_year, type, description, metadata, created_at`

// insertEntry is shared by Append and ImportEntry.
const insertEntry = `
	INSERT INTO activity_entries(
		id, request_id, request_internal_id, request_title, actor_id, actor_name, team_id, fiscal_year,
		type, description, metadata, created_at, created_date
	) VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// ListByDateRange returns entries whose local calendar date lies in [startDate, endDate].
func (r *Repository) ListByDateRange(ctx context.Context, startDate, endDate string) ([]domain.ActivityEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM activity_entries
		WHERE created_date >= $1 AND created_date <= $2
		ORDER BY created_at ASC, seq ASC
	`, startDate, endDate)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// ListAll returns every entry in append order.
func (r *Repository) ListAll(ctx context.Context) ([]domain.ActivityEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM activity_entries ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// Append inserts one entry and returns it with the assigned sequence number.
func (r *Repository) Append(ctx context.Context, entry domain.ActivityEntry) (domain.ActivityEntry, error) {
	args, err := r.entryArgs(entry)
	if err != nil {
		return domain.ActivityEntry{}, err
	}
	if err := r.pool.QueryRow(ctx, insertEntry+` RETURNING seq`, args...).Scan(&entry.Seq); err != nil {
		return domain.ActivityEntry{}, err
	}
	return entry, nil
}

// ImportEntry inserts an entry unless its id already exists.
func (r *Repository) ImportEntry(ctx context.Context, entry domain.ActivityEntry) (bool, error) {
	args, err := r.entryArgs(entry)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx, insertEntry+` ON CONFLICT (id) DO NOTHING`, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// entryArgs encodes an entry's insert arguments.
func (r *Repository) entryArgs(e domain.ActivityEntry) ([]any, error) {
	metadata := []byte("{}")
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		metadata = raw
	}
	return []any{
		e.ID, e.RequestID, e.RequestInternalID, e.RequestTitle, e.ActorID, e.ActorName,
		e.TeamID, e.FiscalYear, string(e.Type), e.Description, metadata,
		e.CreatedAt.UTC(), e.LocalDate(r.loc),
	}, nil
}

// ListVisibleRequests returns requests matching scope, ordered by id.
func (r *Repository) ListVisibleRequests(ctx context.Context, scope domain.RequestScope) ([]domain.Request, error) {
	var (
		clauses []string
		args    []any
	)
	if scope.TeamID != "" {
		args = append(args, scope.TeamID)
		clauses = append(clauses, fmt.Sprintf("team_id = $%d", len(args)))
	}
	if scope.FiscalYear != 0 {
		args = append(args, scope.FiscalYear)
		clauses = append(clauses, fmt.Sprintf("fiscal_year = $%d", len(args)))
	}
	query := `SELECT id, internal_id, title, assignee_id, team_id, fiscal_year, status, created_at FROM requests`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, rowTo(scanRequest))
}

// FindRequest returns one request by id.
func (r *Repository) FindRequest(ctx context.Context, id string) (domain.Request, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, internal_id, title, assignee_id, team_id, fiscal_year, status, created_at
		FROM requests WHERE id = $1
	`, id)
	req, err := scanRequest(row)
	return req, translateNoRows(err)
}

// UpsertRequest creates or replaces a request directory row.
func (r *Repository) UpsertRequest(ctx context.Context, req domain.Request) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO requests(id, internal_id, title, assignee_id, team_id, fiscal_year, status, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			internal_id = EXCLUDED.internal_id,
			title = EXCLUDED.title,
			assignee_id = EXCLUDED.assignee_id,
			team_id = EXCLUDED.team_id,
			fiscal_year = EXCLUDED.fiscal_year,
			status = EXCLUDED.status
	`, req.ID, req.InternalID, req.Title, req.AssigneeID, req.TeamID, req.FiscalYear, req.Status, req.CreatedAt.UTC())
	return err
}

// ListUsersByTeam returns the users of one team, ordered by id.
func (r *Repository) ListUsersByTeam(ctx context.Context, teamID string) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, display_name, role, team_id FROM users WHERE team_id = $1 ORDER BY id ASC`, teamID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, rowTo(scanUser))
}

// ListUsers returns every user, ordered by id.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, display_name, role, team_id FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, rowTo(scanUser))
}

// FindUser returns one user by id.
func (r *Repository) FindUser(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT id, display_name, role, team_id FROM users WHERE id = $1`, id))
	return u, translateNoRows(err)
}

// UpsertUser creates or replaces a user directory row.
func (r *Repository) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users(id, display_name, role, team_id) VALUES($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			role = EXCLUDED.role,
			team_id = EXCLUDED.team_id
	`, u.ID, u.DisplayName, string(u.Role), u.TeamID)
	return err
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// rowTo adapts a scanner func for pgx.CollectRows.
func rowTo[T any](scan func(scanner) (T, error)) pgx.RowToFunc[T] {
	return func(row pgx.CollectableRow) (T, error) {
		return scan(row)
	}
}

// collectEntries drains rows into entries.
func collectEntries(rows pgx.Rows) ([]domain.ActivityEntry, error) {
	out, err := pgx.CollectRows(rows, rowTo(scanEntry))
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.ActivityEntry{}
	}
	return out, nil
}

// scanEntry handles scan entry.
func scanEntry(row scanner) (domain.ActivityEntry, error) {
	var (
		e           domain.ActivityEntry
		typeRaw     string
		metadataRaw []byte
	)
	if err := row.Scan(&e.Seq, &e.ID, &e.RequestID, &e.RequestInternalID, &e.RequestTitle, &e.ActorID, &e.ActorName, &e.TeamID, &e.FiscalYear, &typeRaw, &e.Description, &metadataRaw, &e.CreatedAt); err != nil {
		return domain.ActivityEntry{}, err
	}
	if len(metadataRaw) > 0 && string(metadataRaw) != "{}" {
		dec := json.NewDecoder(strings.NewReader(string(metadataRaw)))
		dec.UseNumber()
		if err := dec.Decode(&e.Metadata); err != nil {
			return domain.ActivityEntry{}, fmt.Errorf("decode activity_entries.metadata: %w", err)
		}
	}
	e.Type = domain.NormalizeActivityType(domain.ActivityType(typeRaw))
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

// scanRequest handles scan request.
func scanRequest(row scanner) (domain.Request, error) {
	var req domain.Request
	if err := row.Scan(&req.ID, &req.InternalID, &req.Title, &req.AssigneeID, &req.TeamID, &req.FiscalYear, &req.Status, &req.CreatedAt); err != nil {
		return domain.Request{}, err
	}
	req.CreatedAt = req.CreatedAt.UTC()
	return req, nil
}

// scanUser handles scan user.
func scanUser(row scanner) (domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := row.Scan(&u.ID, &u.DisplayName, &role, &u.TeamID); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.NormalizeRole(domain.Role(role))
	return u, nil
}

// translateNoRows maps pgx.ErrNoRows onto app.ErrNotFound.
func translateNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return app.ErrNotFound
	}
	return err
}
