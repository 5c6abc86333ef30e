package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	dom "github.com/Oliver-Leonor/taskmaster-enterprise/internal/domain"
	"github.com/Oliver-Leonor/taskmaster-enterprise/internal/repo"

	"github.com/jackc/pgx/v5"
)

// fakeTaskRepo is an in-memory TaskRepo. The mutex spans each conditioned
// update's check-and-write, matching the atomicity the Postgres single
// UPDATE statement provides.
type fakeTaskRepo struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]dom.Task
	clock  time.Time
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{
		nextID: 1,
		tasks:  make(map[int64]dom.Task),
		clock:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp.
func (r *fakeTaskRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Millisecond)
	return r.clock
}

func matches(f repo.TaskFilter, t dom.Task) bool {
	if f.ID != 0 && t.ID != f.ID {
		return false
	}
	if f.OwnerID != 0 && t.OwnerID != f.OwnerID {
		return false
	}
	switch f.Deleted {
	case repo.DeletedInclude:
	case repo.DeletedOnly:
		if t.DeletedAt == nil {
			return false
		}
	default:
		if t.DeletedAt != nil {
			return false
		}
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.TitleQuery != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.TitleQuery)) {
		return false
	}
	if f.UpdatedAt != nil && !t.UpdatedAt.Equal(*f.UpdatedAt) {
		return false
	}
	return true
}

func (r *fakeTaskRepo) Create(_ context.Context, t dom.Task) (dom.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.tick()
	t.ID = r.nextID
	r.nextID++
	t.CreatedAt = now
	t.UpdatedAt = now
	r.tasks[t.ID] = t
	return t, nil
}

func (r *fakeTaskRepo) FindOne(_ context.Context, f repo.TaskFilter) (dom.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if matches(f, t) {
			return t, nil
		}
	}
	return dom.Task{}, pgx.ErrNoRows
}

func (r *fakeTaskRepo) Update(_ context.Context, f repo.TaskFilter, p repo.TaskPatch) (dom.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tasks {
		if !matches(f, t) {
			continue
		}
		if p.Title != nil {
			t.Title = *p.Title
		}
		if p.Status != nil {
			t.Status = *p.Status
		}
		t.UpdatedAt = r.tick()
		r.tasks[id] = t
		return t, nil
	}
	return dom.Task{}, pgx.ErrNoRows
}

func (r *fakeTaskRepo) SoftDelete(_ context.Context, f repo.TaskFilter, deletedBy int64) (dom.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tasks {
		if !matches(f, t) {
			continue
		}
		now := r.tick()
		t.DeletedAt = &now
		t.DeletedBy = &deletedBy
		t.UpdatedAt = now
		r.tasks[id] = t
		return t, nil
	}
	return dom.Task{}, pgx.ErrNoRows
}

func (r *fakeTaskRepo) Restore(_ context.Context, f repo.TaskFilter) (dom.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tasks {
		if !matches(f, t) {
			continue
		}
		t.DeletedAt = nil
		t.DeletedBy = nil
		t.UpdatedAt = r.tick()
		r.tasks[id] = t
		return t, nil
	}
	return dom.Task{}, pgx.ErrNoRows
}

func (r *fakeTaskRepo) List(_ context.Context, f repo.TaskFilter, opts repo.ListOptions) ([]dom.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []dom.Task
	for _, t := range r.tasks {
		if matches(f, t) {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		var less bool
		switch opts.Sort {
		case repo.SortByUpdatedAt:
			less = all[i].UpdatedAt.Before(all[j].UpdatedAt)
		case repo.SortByTitle:
			less = all[i].Title < all[j].Title
		default:
			less = all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		if opts.Desc {
			return !less
		}
		return less
	})
	if opts.Offset >= len(all) {
		return nil, nil
	}
	all = all[opts.Offset:]
	if opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (r *fakeTaskRepo) Count(_ context.Context, f repo.TaskFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tasks {
		if matches(f, t) {
			n++
		}
	}
	return n, nil
}

var (
	alice = dom.Actor{ID: 1, Role: dom.RoleUser}
	bob   = dom.Actor{ID: 2, Role: dom.RoleUser}
	boss  = dom.Actor{ID: 3, Role: dom.RoleManager}
	root  = dom.Actor{ID: 4, Role: dom.RoleAdmin}
)

func newSvc() (*TaskService, *fakeTaskRepo) {
	r := newFakeTaskRepo()
	return NewTaskService(r, nil), r
}

func TestCreate_ForcesOwnerAndDefaults(t *testing.T) {
	svc, _ := newSvc()
	ctx := context.Background()

	task, err := svc.Create(ctx, alice, "  A task  ", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.OwnerID != alice.ID {
		t.Errorf("OwnerID = %d, want %d", task.OwnerID, alice.ID)
	}
	if task.Status != dom.StatusTodo {
		t.Errorf("Status = %s, want todo", task.Status)
	}
	if task.Title != "A task" {
		t.Errorf("Title = %q, want trimmed", task.Title)
	}

	if _, err := svc.Create(ctx, alice, "   ", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("empty title: err = %v, want ErrValidation", err)
	}
	if _, err := svc.Create(ctx, alice, strings.Repeat("x", 201), ""); !errors.Is(err, ErrValidation) {
		t.Errorf("long title: err = %v, want ErrValidation", err)
	}
	if _, err := svc.Create(ctx, alice, "ok", "archived"); !errors.Is(err, ErrValidation) {
		t.Errorf("bad status: err = %v, want ErrValidation", err)
	}
}

func TestGetByID_ScopeMasksAsNotFound(t *testing.T) {
	svc, _ := newSvc()
	ctx := context.Background()

	task, _ := svc.Create(ctx, alice, "alices task", "")

	// Another plain user never sees it, and never gets a forbidden.
	if _, err := svc.GetByID(ctx, bob, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("bob gets %v, want ErrNotFound", err)
	}
	// Privileged roles see it.
	if _, err := svc.GetByID(ctx, boss, task.ID); err != nil {
		t.Errorf("manager gets %v, want nil", err)
	}
	if _, err := svc.GetByID(ctx, root, task.ID); err != nil {
		t.Errorf("admin gets %v, want nil", err)
	}
}

func TestUpdate_Validation(t *testing.T) {
	svc, _ := newSvc()
	ctx := context.Background()
	task, _ := svc.Create(ctx, alice, "t", "")

	if _, err := svc.Update(ctx, alice, task.ID, UpdateTaskInput{}, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("empty patch: err = %v, want ErrValidation", err)
	}

	done := dom.StatusDone
	todo := dom.StatusTodo
	// todo -> done is legal.
	if _, err := svc.Update(ctx, alice, task.ID, UpdateTaskInput{Status: &done}, ""); err != nil {
		t.Fatalf("todo->done: %v", err)
	}
	// done -> todo is the forbidden edge; the error names it.
	_, err := svc.Update(ctx, alice, task.ID, UpdateTaskInput{Status: &todo}, "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("done->todo: err = %v, want ErrValidation", err)
	}
	if !strings.Contains(err.Error(), "done -> todo") {
		t.Errorf("error %q should name the rejected edge", err)
	}
	// Self-transition is a no-op success.
	if _, err := svc.Update(ctx, alice, task.ID, UpdateTaskInput{Status: &done}, ""); err != nil {
		t.Errorf("done->done: %v", err)
	}
	// Malformed precondition.
	title := "new"
	if _, err := svc.Update(ctx, alice, task.ID, UpdateTaskInput{Title: &title}, "yesterday-ish"); !errors.Is(err, ErrValidation) {
		t.Errorf("bad precondition: err = %v, want ErrValidation", err)
	}
}

func TestUpdate_OtherUsersTaskIsNotFound(t *testing.T) {
	svc, _ := newSvc()
	ctx := context.Background()
	task, _ := svc.Create(ctx, alice, "t", "")

	title := "stolen"
	if _, err := svc.Update(ctx, bob, task.ID, UpdateTaskInput{Title: &title}, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	// Manager may update someone else's task.
	if _, err := svc.Update(ctx, boss, task.ID, UpdateTaskInput{Title: &title}, ""); err != nil {
		t.Errorf("manager update: %v", err)
	}
}

func TestUpdate_PreconditionHappyThenStale(t *testing.T) {
	svc, _ := newSvc()
	ctx := context.Background()
	task, _ := svc.Create(ctx, alice, "t", "")

	title := "v2"
	updated, err := svc.Update(ctx, alice, task.ID, UpdateTaskInput{Title: &title},
		task.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		t.Fatalf("fresh precondition: %v", err)
	}
	if !updated.UpdatedAt.After(task.UpdatedAt) {
		t.Error("UpdatedAt did not increase")
	}

	// Same timestamp again is now stale: the read succeeds, the conditioned
	// write matches nothing, so this is a conflict, not a 404.
	title3 := "v3"
	_, err = svc.Update(ctx, alice, task.ID, UpdateTaskInput{Title: &title3},
		task.UpdatedAt.Format(time.RFC3339Nano))
	if !errors.Is(err, ErrConflict) {
		t.Errorf("stale precondition: err = %v, want ErrConflict", err)
	}
}

func TestUpdate_ConcurrentStalePrecondition_OneWins(t *testing.T) {
	svc, _ := newSvc()
	ctx := context.Background()
	task, _ := svc.Create(ctx, alice, "t", "")
	precondition := task.UpdatedAt.Format(time.RFC3339Nano)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		title := "race"
		go func() {
			defer wg.Done()
			_, err := svc.Update(ctx, alice, task.ID, UpdateTaskInput{Title: &title}, precondition)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Errorf("got %d successes and %d conflicts, want exactly 1 and 1", ok, conflicts)
	}
}

func TestUpdate_NoPreconditionRaceWithDeleteIsNotFound(t *testing.T) {
	svc, r := newSvc()
	ctx := context.Background()
	task, _ := svc.Create(ctx, alice, "t", "")

	// Simulate a concurrent delete landing between the service's read and
	// its conditioned write: delete directly in the store.
	if _, err := r.SoftDelete(ctx, repo.TaskFilter{ID: task.ID}, bob.ID); err != nil {
		t.Fatalf("direct delete: %v", err)
	}
	title := "late"
	if _, err := svc.Update(ctx, alice, task.ID, UpdateTaskInput{Title: &title}, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete_SetsBothMarkersAndMasks(t *testing.T) {
	svc, _ := newSvc()
	ctx := context.Background()
	task, _ := svc.Create(ctx, alice, "t", "")

	deleted, err := svc.Delete(ctx, alice, task.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted.DeletedAt == nil || deleted.DeletedBy == nil {
		t.Fatal("deleted_at and deleted_by must both be set")
	}
	if *deleted.DeletedBy != alice.ID {
		t.Errorf("DeletedBy = %d, want %d", *deleted.DeletedBy, alice.ID)
	}
	// Deleted task is invisible to its owner.
	if _, err := svc.GetByID(ctx, alice, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("owner get after delete: %v, want ErrNotFound", err)
	}
	// Double delete is NotFound too.
	if _, err := svc.Delete(ctx, alice, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: %v, want ErrNotFound", err)
	}
	// Someone else's task is NotFound, never forbidden.
	other, _ := svc.Create(ctx, bob, "bobs", "")
	if _, err := svc.Delete(ctx, alice, other.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign delete: %v, want ErrNotFound", err)
	}
}

func TestRestore_PrivilegedOnly(t *testing.T) {
	svc, _ := newSvc()
	ctx := context.Background()
	task, _ := svc.Create(ctx, alice, "t", "")
	if _, err := svc.Delete(ctx, alice, task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// This is the one place forbidden is surfaced explicitly.
	if _, err := svc.Restore(ctx, alice, task.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("owner restore: err = %v, want ErrForbidden", err)
	}

	restored, err := svc.Restore(ctx, boss, task.ID)
	if err != nil {
		t.Fatalf("manager restore: %v", err)
	}
	if restored.DeletedAt != nil || restored.DeletedBy != nil {
		t.Error("restore must clear both soft-delete markers")
	}
	// Unknown id is NotFound even for admins.
	if _, err := svc.Restore(ctx, root, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id: err = %v, want ErrNotFound", err)
	}
}

func TestList_OwnerScopingAndDeletedModes(t *testing.T) {
	svc, _ := newSvc()
	ctx := context.Background()

	a1, _ := svc.Create(ctx, alice, "alice one", "")
	svc.Create(ctx, alice, "alice two", "")
	svc.Create(ctx, bob, "bob one", "")
	if _, err := svc.Delete(ctx, alice, a1.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// Plain user: own + non-deleted only, requested mode ignored.
	res, err := svc.List(ctx, alice, ListTasksInput{Page: 1, Limit: 10, Deleted: repo.DeletedInclude})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 1 || len(res.Items) != 1 {
		t.Fatalf("alice sees total=%d items=%d, want 1/1", res.Total, len(res.Items))
	}
	if res.Items[0].OwnerID != alice.ID || res.Items[0].DeletedAt != nil {
		t.Error("alice's listing leaked a foreign or deleted task")
	}

	// Privileged deleted=only: exactly the soft-deleted set.
	res, err = svc.List(ctx, boss, ListTasksInput{Page: 1, Limit: 10, Deleted: repo.DeletedOnly})
	if err != nil {
		t.Fatalf("List only: %v", err)
	}
	if res.Total != 1 || len(res.Items) != 1 || res.Items[0].ID != a1.ID {
		t.Errorf("deleted=only: total=%d, want the single deleted task", res.Total)
	}

	// Privileged exclude: everything live across owners.
	res, _ = svc.List(ctx, boss, ListTasksInput{Page: 1, Limit: 10, Deleted: repo.DeletedExclude})
	if res.Total != 2 {
		t.Errorf("deleted=exclude: total=%d, want 2", res.Total)
	}

	// Privileged include: all three.
	res, _ = svc.List(ctx, boss, ListTasksInput{Page: 1, Limit: 10, Deleted: repo.DeletedInclude})
	if res.Total != 3 {
		t.Errorf("deleted=include: total=%d, want 3", res.Total)
	}
}

func TestList_PaginationTotals(t *testing.T) {
	svc, _ := newSvc()
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		if _, err := svc.Create(ctx, alice, "task "+strings.Repeat("i", i+1), ""); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	res, err := svc.List(ctx, alice, ListTasksInput{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(res.Items) != 10 {
		t.Errorf("page 2 items = %d, want 10", len(res.Items))
	}
	if res.Total != 25 {
		t.Errorf("total = %d, want 25 regardless of page/limit", res.Total)
	}

	// Last partial page.
	res, _ = svc.List(ctx, alice, ListTasksInput{Page: 3, Limit: 10})
	if len(res.Items) != 5 || res.Total != 25 {
		t.Errorf("page 3: items=%d total=%d, want 5/25", len(res.Items), res.Total)
	}

	if _, err := svc.List(ctx, alice, ListTasksInput{Page: 0, Limit: 10}); !errors.Is(err, ErrValidation) {
		t.Errorf("page=0: err = %v, want ErrValidation", err)
	}
	if _, err := svc.List(ctx, alice, ListTasksInput{Page: 1, Limit: 101}); !errors.Is(err, ErrValidation) {
		t.Errorf("limit=101: err = %v, want ErrValidation", err)
	}
}

func TestList_StatusAndTitleFilter(t *testing.T) {
	svc, _ := newSvc()
	ctx := context.Background()
	svc.Create(ctx, alice, "Write report", "todo")
	svc.Create(ctx, alice, "Review REPORT draft", "in_progress")
	svc.Create(ctx, alice, "Ship release", "done")

	inProgress := dom.StatusInProgress
	res, err := svc.List(ctx, alice, ListTasksInput{Page: 1, Limit: 10, Status: &inProgress})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 1 {
		t.Errorf("status filter total = %d, want 1", res.Total)
	}

	res, _ = svc.List(ctx, alice, ListTasksInput{Page: 1, Limit: 10, Query: "report"})
	if res.Total != 2 {
		t.Errorf("q=report total = %d, want 2 (case-insensitive)", res.Total)
	}
}

func TestList_SortByTitle(t *testing.T) {
	svc, _ := newSvc()
	ctx := context.Background()
	svc.Create(ctx, alice, "banana", "")
	svc.Create(ctx, alice, "apple", "")
	svc.Create(ctx, alice, "cherry", "")

	res, err := svc.List(ctx, alice, ListTasksInput{Page: 1, Limit: 10, SortBy: repo.SortByTitle})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := []string{res.Items[0].Title, res.Items[1].Title, res.Items[2].Title}
	want := []string{"apple", "banana", "cherry"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ascending title order = %v, want %v", got, want)
		}
	}
}
