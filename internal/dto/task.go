package dto

import (
	"time"

	dom "github.com/Oliver-Leonor/taskmaster-enterprise/internal/domain"
)

type CreateTaskRequest struct {
	Title  string `json:"title" binding:"required,min=1,max=200"`
	Status string `json:"status" binding:"omitempty,oneof=todo in_progress done"`
}

// UpdateTaskRequest is a partial patch: nil = leave the field unchanged.
type UpdateTaskRequest struct {
	Title  *string `json:"title" binding:"omitempty,min=1,max=200"`
	Status *string `json:"status" binding:"omitempty,oneof=todo in_progress done"`
}

// ListTasksQuery binds the list query string. Defaults mirror the service's.
type ListTasksQuery struct {
	Page    int    `form:"page,default=1" binding:"omitempty,min=1"`
	Limit   int    `form:"limit,default=20" binding:"omitempty,min=1,max=100"`
	Status  string `form:"status" binding:"omitempty,oneof=todo in_progress done"`
	Q       string `form:"q" binding:"omitempty,max=200"`
	SortBy  string `form:"sort_by,default=createdAt" binding:"omitempty,oneof=createdAt updatedAt title"`
	SortDir string `form:"sort_dir,default=desc" binding:"omitempty,oneof=asc desc"`
	// Deleted is honored for manager/admin only; plain users are always
	// scoped to their own non-deleted tasks.
	Deleted string `form:"deleted,default=exclude" binding:"omitempty,oneof=exclude include only"`
}

type TaskResponse struct {
	ID        int64      `json:"id"`
	OwnerID   int64      `json:"owner_id"`
	Title     string     `json:"title"`
	Status    string     `json:"status"`
	DeletedAt *time.Time `json:"deleted_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type ListTasksResponse struct {
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Total int64          `json:"total"`
	Items []TaskResponse `json:"items"`
}

// TaskToResponse maps the domain entity to its JSON shape.
func TaskToResponse(t dom.Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		OwnerID:   t.OwnerID,
		Title:     t.Title,
		Status:    string(t.Status),
		DeletedAt: t.DeletedAt,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// TasksToResponses maps a slice of tasks; never nil so JSON shows [].
func TasksToResponses(list []dom.Task) []TaskResponse {
	out := make([]TaskResponse, len(list))
	for i := range list {
		out[i] = TaskToResponse(list[i])
	}
	return out
}
