package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Oliver-Leonor/taskmaster-enterprise/internal/auth"
	dom "github.com/Oliver-Leonor/taskmaster-enterprise/internal/domain"
	"github.com/Oliver-Leonor/taskmaster-enterprise/internal/dto"
	"github.com/Oliver-Leonor/taskmaster-enterprise/internal/repo"
	"github.com/Oliver-Leonor/taskmaster-enterprise/internal/service"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	svc *service.TaskService
}

func NewTaskHandler(svc *service.TaskService) *TaskHandler {
	return &TaskHandler{svc: svc}
}

// Create godoc
// @Summary      Create a task
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      dto.CreateTaskRequest  true  "Task body"
// @Success      201   {object}  dto.TaskResponse
// @Failure      400   {object}  map[string]string
// @Router       /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor := auth.ActorFromContext(c)
	t, err := h.svc.Create(c.Request.Context(), actor, req.Title, dom.Status(req.Status))
	if err != nil {
		respondTaskError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.TaskToResponse(t))
}

// List godoc
// @Summary      List tasks
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        page      query  int     false  "Page (>=1)"
// @Param        limit     query  int     false  "Page size (1-100)"
// @Param        status    query  string  false  "Filter by status"  Enums(todo, in_progress, done)
// @Param        q         query  string  false  "Title substring, case-insensitive"
// @Param        sort_by   query  string  false  "Sort field"  Enums(createdAt, updatedAt, title)
// @Param        sort_dir  query  string  false  "Sort direction"  Enums(asc, desc)
// @Param        deleted   query  string  false  "Deleted mode (manager/admin only)"  Enums(exclude, include, only)
// @Success      200  {object}  dto.ListTasksResponse
// @Failure      400  {object}  map[string]string
// @Router       /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	var q dto.ListTasksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var status *dom.Status
	if q.Status != "" {
		s := dom.Status(q.Status)
		status = &s
	}
	actor := auth.ActorFromContext(c)
	res, err := h.svc.List(c.Request.Context(), actor, service.ListTasksInput{
		Page:     q.Page,
		Limit:    q.Limit,
		Status:   status,
		Query:    q.Q,
		SortBy:   repo.SortBy(q.SortBy),
		SortDesc: q.SortDir != "asc",
		Deleted:  repo.DeletedMode(q.Deleted),
	})
	if err != nil {
		respondTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListTasksResponse{
		Page:  res.Page,
		Limit: res.Limit,
		Total: res.Total,
		Items: dto.TasksToResponses(res.Items),
	})
}

// GetByID godoc
// @Summary      Get a task by ID
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Task ID"
// @Success      200  {object}  dto.TaskResponse
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /tasks/{id} [get]
func (h *TaskHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.GetByID(c.Request.Context(), auth.ActorFromContext(c), id)
	if err != nil {
		respondTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TaskToResponse(t))
}

// Update godoc
// @Summary      Update a task (title and/or status)
// @Description  Optional If-Unmodified-Since header enables optimistic concurrency: the update only applies if updated_at still equals the given value.
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id                   path    int                    true   "Task ID"
// @Param        If-Unmodified-Since  header  string                 false  "Last known updated_at (RFC3339)"
// @Param        body                 body    dto.UpdateTaskRequest  true   "Partial update"
// @Success      200  {object}  dto.TaskResponse
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /tasks/{id} [patch]
func (h *TaskHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var status *dom.Status
	if req.Status != nil {
		s := dom.Status(*req.Status)
		status = &s
	}
	t, err := h.svc.Update(c.Request.Context(), auth.ActorFromContext(c), id,
		service.UpdateTaskInput{Title: req.Title, Status: status},
		c.GetHeader("If-Unmodified-Since"))
	if err != nil {
		respondTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TaskToResponse(t))
}

// Delete godoc
// @Summary      Soft-delete a task
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Task ID"
// @Success      200  {object}  dto.TaskResponse
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /tasks/{id} [delete]
func (h *TaskHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.Delete(c.Request.Context(), auth.ActorFromContext(c), id)
	if err != nil {
		respondTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TaskToResponse(t))
}

// Restore godoc
// @Summary      Restore a soft-deleted task (manager/admin only)
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Task ID"
// @Success      200  {object}  dto.TaskResponse
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /tasks/{id}/restore [post]
func (h *TaskHandler) Restore(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.Restore(c.Request.Context(), auth.ActorFromContext(c), id)
	if err != nil {
		respondTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TaskToResponse(t))
}

// respondTaskError maps service sentinels onto HTTP statuses.
func respondTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "task was modified by someone else, refresh and try again"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
