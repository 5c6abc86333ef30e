package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	dom "github.com/Oliver-Leonor/taskmaster-enterprise/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DeletedMode selects how a filter treats soft-deleted rows.
type DeletedMode string

const (
	DeletedExclude DeletedMode = "exclude" // zero value "" behaves the same
	DeletedInclude DeletedMode = "include"
	DeletedOnly    DeletedMode = "only"
)

// SortBy is a list sort field as exposed by the API.
type SortBy string

const (
	SortByCreatedAt SortBy = "createdAt"
	SortByUpdatedAt SortBy = "updatedAt"
	SortByTitle     SortBy = "title"
)

// sortColumns whitelists ORDER BY targets; anything else falls back to created_at.
var sortColumns = map[SortBy]string{
	SortByCreatedAt: "created_at",
	SortByUpdatedAt: "updated_at",
	SortByTitle:     "title",
}

// TaskFilter is the query predicate shared by reads, conditioned writes and
// list/count. Zero values mean "no constraint".
type TaskFilter struct {
	ID      int64
	OwnerID int64
	Deleted DeletedMode
	Status  *dom.Status

	// TitleQuery is a case-insensitive substring match against title.
	TitleQuery string

	// UpdatedAt, when set, is an equality precondition on updated_at
	// (the optimistic-concurrency token).
	UpdatedAt *time.Time
}

// TaskPatch carries the mutable fields of an update; nil means "leave as is".
type TaskPatch struct {
	Title  *string
	Status *dom.Status
}

// ListOptions controls ordering and pagination for List.
type ListOptions struct {
	Sort   SortBy
	Desc   bool
	Offset int
	Limit  int
}

// TaskRepo provides task persistence. Update, SoftDelete and Restore are
// single conditioned statements: the filter is evaluated and the row mutated
// atomically, and pgx.ErrNoRows is returned when the filter matched nothing.
type TaskRepo interface {
	Create(ctx context.Context, t dom.Task) (dom.Task, error)
	FindOne(ctx context.Context, f TaskFilter) (dom.Task, error)
	Update(ctx context.Context, f TaskFilter, p TaskPatch) (dom.Task, error)
	SoftDelete(ctx context.Context, f TaskFilter, deletedBy int64) (dom.Task, error)
	Restore(ctx context.Context, f TaskFilter) (dom.Task, error)
	List(ctx context.Context, f TaskFilter, opts ListOptions) ([]dom.Task, error)
	Count(ctx context.Context, f TaskFilter) (int64, error)
}

// PGTaskRepo implements TaskRepo with Postgres.
type PGTaskRepo struct {
	db *pgxpool.Pool
}

// NewPGTaskRepo returns a new PGTaskRepo.
func NewPGTaskRepo(db *pgxpool.Pool) *PGTaskRepo {
	return &PGTaskRepo{db: db}
}

const taskColumns = "id, owner_id, title, status, deleted_at, deleted_by, created_at, updated_at"

// updatedAtExpr keeps updated_at strictly increasing even when two writes land
// within the same clock tick.
const updatedAtExpr = "GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')"

// where renders the filter as a SQL condition with positional args starting at $1.
func (f TaskFilter) where() (string, []any) {
	var conds []string
	var args []any
	add := func(format string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}

	if f.ID != 0 {
		add("id = $%d", f.ID)
	}
	if f.OwnerID != 0 {
		add("owner_id = $%d", f.OwnerID)
	}
	switch f.Deleted {
	case DeletedInclude:
		// no constraint
	case DeletedOnly:
		conds = append(conds, "deleted_at IS NOT NULL")
	default:
		conds = append(conds, "deleted_at IS NULL")
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.TitleQuery != "" {
		add("title ILIKE $%d", "%"+escapeLike(f.TitleQuery)+"%")
	}
	if f.UpdatedAt != nil {
		add("updated_at = $%d", *f.UpdatedAt)
	}

	if len(conds) == 0 {
		return "TRUE", args
	}
	return strings.Join(conds, " AND "), args
}

// escapeLike escapes LIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

func scanTask(row interface{ Scan(...any) error }) (dom.Task, error) {
	var t dom.Task
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Status,
		&t.DeletedAt, &t.DeletedBy, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *PGTaskRepo) Create(ctx context.Context, t dom.Task) (dom.Task, error) {
	query := `
		INSERT INTO tasks (owner_id, title, status)
		VALUES ($1, $2, $3)
		RETURNING ` + taskColumns
	return scanTask(r.db.QueryRow(ctx, query, t.OwnerID, t.Title, t.Status))
}

func (r *PGTaskRepo) FindOne(ctx context.Context, f TaskFilter) (dom.Task, error) {
	cond, args := f.where()
	query := "SELECT " + taskColumns + " FROM tasks WHERE " + cond
	return scanTask(r.db.QueryRow(ctx, query, args...))
}

// Update applies the patch to the single row matching the filter. The WHERE
// clause carries the scope and the optional updated_at precondition, so the
// check and the write are one statement and races resolve at the row level.
func (r *PGTaskRepo) Update(ctx context.Context, f TaskFilter, p TaskPatch) (dom.Task, error) {
	cond, args := f.where()
	query := fmt.Sprintf(`
		UPDATE tasks
		SET title = COALESCE($%d, title), status = COALESCE($%d, status), updated_at = %s
		WHERE %s
		RETURNING %s`, len(args)+1, len(args)+2, updatedAtExpr, cond, taskColumns)
	args = append(args, p.Title, p.Status)
	return scanTask(r.db.QueryRow(ctx, query, args...))
}

func (r *PGTaskRepo) SoftDelete(ctx context.Context, f TaskFilter, deletedBy int64) (dom.Task, error) {
	cond, args := f.where()
	query := fmt.Sprintf(`
		UPDATE tasks
		SET deleted_at = now(), deleted_by = $%d, updated_at = %s
		WHERE %s
		RETURNING %s`, len(args)+1, updatedAtExpr, cond, taskColumns)
	args = append(args, deletedBy)
	return scanTask(r.db.QueryRow(ctx, query, args...))
}

func (r *PGTaskRepo) Restore(ctx context.Context, f TaskFilter) (dom.Task, error) {
	cond, args := f.where()
	query := fmt.Sprintf(`
		UPDATE tasks
		SET deleted_at = NULL, deleted_by = NULL, updated_at = %s
		WHERE %s
		RETURNING %s`, updatedAtExpr, cond, taskColumns)
	return scanTask(r.db.QueryRow(ctx, query, args...))
}

func (r *PGTaskRepo) List(ctx context.Context, f TaskFilter, opts ListOptions) ([]dom.Task, error) {
	cond, args := f.where()
	col, ok := sortColumns[opts.Sort]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if opts.Desc {
		dir = "DESC"
	}
	query := fmt.Sprintf(
		"SELECT %s FROM tasks WHERE %s ORDER BY %s %s OFFSET $%d LIMIT $%d",
		taskColumns, cond, col, dir, len(args)+1, len(args)+2)
	args = append(args, opts.Offset, opts.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []dom.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (r *PGTaskRepo) Count(ctx context.Context, f TaskFilter) (int64, error) {
	cond, args := f.where()
	var n int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM tasks WHERE "+cond, args...).Scan(&n)
	return n, err
}
