package backend

import "time"

// TaskListResponse is the body of GET /api/tasks.
type TaskListResponse struct {
	Tasks     []Task    `json:"tasks"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskResponse is the body of successful create, update and delete calls.
type TaskResponse struct {
	Message string `json:"message"`
	Task    Task   `json:"task"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status,omitempty"`
}
