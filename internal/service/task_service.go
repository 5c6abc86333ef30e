package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Oliver-Leonor/taskmaster-enterprise/internal/cache"
	dom "github.com/Oliver-Leonor/taskmaster-enterprise/internal/domain"
	"github.com/Oliver-Leonor/taskmaster-enterprise/internal/repo"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrValidation marks caller errors; the wrapped message carries the detail.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound covers missing, not-owned and deleted-but-invisible alike,
	// so existence of other users' tasks never leaks.
	ErrNotFound = errors.New("task not found")
	// ErrForbidden is surfaced only by Restore; everywhere else scope failures
	// collapse into ErrNotFound.
	ErrForbidden = errors.New("not allowed")
	// ErrConflict signals a lost optimistic-concurrency race.
	ErrConflict = errors.New("task was modified by someone else")
)

const (
	titleMaxLen  = 200
	defaultLimit = 20
	maxLimit     = 100
)

// UpdateTaskInput is a partial patch; nil fields are left untouched.
type UpdateTaskInput struct {
	Title  *string
	Status *dom.Status
}

// ListTasksInput mirrors the list query surface.
type ListTasksInput struct {
	Page     int
	Limit    int
	Status   *dom.Status
	Query    string
	SortBy   repo.SortBy
	SortDesc bool
	Deleted  repo.DeletedMode
}

// ListTasksResult is one page plus the filter-wide total.
type ListTasksResult struct {
	Page  int
	Limit int
	Total int64
	Items []dom.Task
}

// TaskService owns authorization scoping, the status state machine and the
// optimistic-concurrency update path. It is stateless per request; the store's
// conditioned update is the only serialization point.
type TaskService struct {
	repo  repo.TaskRepo
	cache *cache.TaskCache
	sf    singleflight.Group
}

// NewTaskService creates a TaskService. If c is nil, caching is disabled.
func NewTaskService(r repo.TaskRepo, c *cache.TaskCache) *TaskService {
	return &TaskService{repo: r, cache: c}
}

// scope builds the filter every read/update/delete goes through: privileged
// actors see any row, everyone else only their own non-deleted rows.
func scope(actor dom.Actor, id int64) repo.TaskFilter {
	f := repo.TaskFilter{ID: id, Deleted: repo.DeletedExclude}
	if !actor.Role.Privileged() {
		f.OwnerID = actor.ID
	}
	return f
}

// Create inserts a task owned by the actor. The owner always comes from the
// actor, never from the payload.
func (s *TaskService) Create(ctx context.Context, actor dom.Actor, title string, status dom.Status) (dom.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > titleMaxLen {
		return dom.Task{}, fmt.Errorf("%w: title must be 1-%d characters", ErrValidation, titleMaxLen)
	}
	if status == "" {
		status = dom.StatusTodo
	}
	if !status.Valid() {
		return dom.Task{}, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	t, err := s.repo.Create(ctx, dom.Task{OwnerID: actor.ID, Title: title, Status: status})
	if err != nil {
		return dom.Task{}, err
	}
	s.invalidate(ctx, actor.ID)
	return t, nil
}

// GetByID returns the task if it is within the actor's scope.
func (s *TaskService) GetByID(ctx context.Context, actor dom.Actor, id int64) (dom.Task, error) {
	t, err := s.repo.FindOne(ctx, scope(actor, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	return t, nil
}

// Update patches title and/or status. Transition legality is checked against
// the most recently observed status, the concurrency precondition against the
// caller's last known updated_at; the write itself is a single conditioned
// statement, so either check can independently void it.
func (s *TaskService) Update(ctx context.Context, actor dom.Actor, id int64, in UpdateTaskInput, ifUnmodifiedSince string) (dom.Task, error) {
	if in.Title == nil && in.Status == nil {
		return dom.Task{}, fmt.Errorf("%w: no fields to update", ErrValidation)
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" || utf8.RuneCountInString(title) > titleMaxLen {
			return dom.Task{}, fmt.Errorf("%w: title must be 1-%d characters", ErrValidation, titleMaxLen)
		}
		in.Title = &title
	}
	if in.Status != nil && !in.Status.Valid() {
		return dom.Task{}, fmt.Errorf("%w: unknown status %q", ErrValidation, *in.Status)
	}

	base := scope(actor, id)

	// Read for validation: existence + scope, and the current status the
	// transition is judged against.
	current, err := s.repo.FindOne(ctx, base)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	if in.Status != nil {
		if err := dom.ValidateTransition(current.Status, *in.Status); err != nil {
			return dom.Task{}, fmt.Errorf("%w: %s", ErrValidation, err)
		}
	}

	withPrecondition := base
	if ifUnmodifiedSince != "" {
		expected, err := parsePrecondition(ifUnmodifiedSince)
		if err != nil {
			return dom.Task{}, fmt.Errorf("%w: invalid If-Unmodified-Since value", ErrValidation)
		}
		withPrecondition.UpdatedAt = &expected
	}

	// Conditioned write: scope plus optional precondition in one statement.
	updated, err := s.repo.Update(ctx, withPrecondition, repo.TaskPatch{Title: in.Title, Status: in.Status})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The read above succeeded, so with a precondition the only
			// remaining explanation is a lost race.
			if withPrecondition.UpdatedAt != nil {
				return dom.Task{}, ErrConflict
			}
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	s.invalidate(ctx, updated.OwnerID)
	return updated, nil
}

// Delete soft-deletes the task: the row stays, deleted_at/deleted_by are set.
// Deletion is orthogonal to status, so no transition check applies.
func (s *TaskService) Delete(ctx context.Context, actor dom.Actor, id int64) (dom.Task, error) {
	t, err := s.repo.SoftDelete(ctx, scope(actor, id), actor.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	s.invalidate(ctx, t.OwnerID)
	return t, nil
}

// Restore clears the soft-delete marker. Privileged only: deleted tasks are
// reachable solely through privileged listing, so a plain forbidden here does
// not leak anything.
func (s *TaskService) Restore(ctx context.Context, actor dom.Actor, id int64) (dom.Task, error) {
	if !actor.Role.Privileged() {
		return dom.Task{}, fmt.Errorf("%w: only manager or admin can restore tasks", ErrForbidden)
	}
	// Filter by id only, deleted or not.
	t, err := s.repo.Restore(ctx, repo.TaskFilter{ID: id, Deleted: repo.DeletedInclude})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	s.invalidate(ctx, t.OwnerID)
	return t, nil
}

// List returns one page plus the total for the identical filter. Items and
// total are independent reads and run concurrently.
func (s *TaskService) List(ctx context.Context, actor dom.Actor, in ListTasksInput) (ListTasksResult, error) {
	if in.Page < 1 {
		return ListTasksResult{}, fmt.Errorf("%w: page must be >= 1", ErrValidation)
	}
	if in.Limit == 0 {
		in.Limit = defaultLimit
	}
	if in.Limit < 1 || in.Limit > maxLimit {
		return ListTasksResult{}, fmt.Errorf("%w: limit must be 1-%d", ErrValidation, maxLimit)
	}
	if in.Status != nil && !in.Status.Valid() {
		return ListTasksResult{}, fmt.Errorf("%w: unknown status %q", ErrValidation, *in.Status)
	}

	f := repo.TaskFilter{
		Status:     in.Status,
		TitleQuery: strings.TrimSpace(in.Query),
	}
	if actor.Role.Privileged() {
		f.Deleted = in.Deleted
		if f.Deleted == "" {
			f.Deleted = repo.DeletedExclude
		}
	} else {
		// Hard-pinned regardless of the requested mode.
		f.OwnerID = actor.ID
		f.Deleted = repo.DeletedExclude
	}
	opts := repo.ListOptions{
		Sort:   in.SortBy,
		Desc:   in.SortDesc,
		Offset: (in.Page - 1) * in.Limit,
		Limit:  in.Limit,
	}

	// Cache only non-privileged reads: their keys are owner-scoped, so writes
	// can invalidate by owner prefix. Privileged filters span owners.
	if s.cache != nil && !actor.Role.Privileged() {
		key := cache.ListKey(actor.ID, listCacheKey(f, opts))
		v, err, _ := s.sf.Do(key, func() (interface{}, error) {
			if page, err := s.cache.GetList(ctx, key); err == nil && page != nil {
				return *page, nil
			}
			page, err := s.fetchPage(ctx, f, opts)
			if err != nil {
				return nil, err
			}
			_ = s.cache.SetList(ctx, key, page)
			return page, nil
		})
		if err != nil {
			return ListTasksResult{}, err
		}
		page := v.(cache.ListPage)
		return ListTasksResult{Page: in.Page, Limit: in.Limit, Total: page.Total, Items: page.Items}, nil
	}

	page, err := s.fetchPage(ctx, f, opts)
	if err != nil {
		return ListTasksResult{}, err
	}
	return ListTasksResult{Page: in.Page, Limit: in.Limit, Total: page.Total, Items: page.Items}, nil
}

// fetchPage runs the page query and the total count off the same filter.
func (s *TaskService) fetchPage(ctx context.Context, f repo.TaskFilter, opts repo.ListOptions) (cache.ListPage, error) {
	var (
		items []dom.Task
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.repo.List(gctx, f, opts)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return cache.ListPage{}, err
	}
	return cache.ListPage{Total: total, Items: items}, nil
}

func (s *TaskService) invalidate(ctx context.Context, ownerID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateOwner(ctx, ownerID)
	}
}

// listCacheKey encodes the full query shape so distinct queries never collide.
func listCacheKey(f repo.TaskFilter, opts repo.ListOptions) string {
	status := ""
	if f.Status != nil {
		status = string(*f.Status)
	}
	return strings.Join([]string{
		status,
		strings.ToLower(f.TitleQuery),
		string(opts.Sort),
		strconv.FormatBool(opts.Desc),
		strconv.Itoa(opts.Offset),
		strconv.Itoa(opts.Limit),
	}, ":")
}

// parsePrecondition accepts RFC3339(Nano) — what the API emits — plus the
// classic HTTP date format for plain If-Unmodified-Since callers.
func parsePrecondition(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return http.ParseTime(s)
}
