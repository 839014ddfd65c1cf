// Package responses provides standardized response formatting following RFC 7807 Problem Details standard.
// All API responses use consistent formatting for success and error cases.
package responses

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Aidin1998/talabin/common/dbutil"
	"github.com/Aidin1998/talabin/pkg/errors"
)

// StandardResponse represents a standard API response format
type StandardResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	StandardResponse
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

// PaginationMeta contains pagination metadata
type PaginationMeta struct {
	Limit        int   `json:"limit"`
	Offset       int   `json:"offset"`
	TotalRecords int64 `json:"total_records"`
	HasNext      bool  `json:"has_next"`
	HasPrev      bool  `json:"has_prev"`
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}, message ...string) {
	send(c, http.StatusOK, data, "Operation successful", message)
}

// Created sends a 201 Created response
func Created(c *gin.Context, data interface{}, message ...string) {
	send(c, http.StatusCreated, data, "Resource created successfully", message)
}

// NoContent sends a 204 No Content response
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func send(c *gin.Context, status int, data interface{}, fallback string, message []string) {
	msg := fallback
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	c.JSON(status, StandardResponse{
		Success:   true,
		Data:      data,
		Message:   msg,
		Timestamp: time.Now().UTC(),
		TraceID:   getTraceID(c),
	})
}

// Paginated sends a page of results together with the total match count
func Paginated(c *gin.Context, data interface{}, page dbutil.Page, total int64) {
	c.JSON(http.StatusOK, PaginatedResponse{
		StandardResponse: StandardResponse{
			Success:   true,
			Data:      data,
			Message:   "Data retrieved successfully",
			Timestamp: time.Now().UTC(),
			TraceID:   getTraceID(c),
		},
		Pagination: CreatePaginationMeta(page, total),
	})
}

// Problem sends an RFC 7807 response
func Problem(c *gin.Context, problemDetails *errors.ProblemDetails) {
	if problemDetails.TraceID == "" {
		if traceID := getTraceID(c); traceID != "" {
			problemDetails.WithTraceID(traceID)
		}
	}
	if problemDetails.Extra == nil {
		problemDetails.WithExtra("timestamp", time.Now().UTC().Format(time.RFC3339))
	}

	body, err := problemDetails.MarshalJSON()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(problemDetails.Status, "application/problem+json", body)
}

// Error converts a service error into problem details and aborts the request.
// Errors without a domain kind are recorded on the context for the access log.
func Error(c *gin.Context, err error) {
	p := errors.ToProblem(err, c.Request.URL.Path)
	if p.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	Problem(c, p)
	c.Abort()
}

// BadRequest sends a 400 Bad Request response
func BadRequest(c *gin.Context, detail string, validationErrors ...errors.ValidationError) {
	problemDetails := errors.NewValidationError(detail, c.Request.URL.Path)
	if len(validationErrors) > 0 {
		problemDetails.WithValidationErrors(validationErrors)
	}
	Problem(c, problemDetails)
	c.Abort()
}

// Unauthorized sends a 401 Unauthorized response
func Unauthorized(c *gin.Context, detail string) {
	Problem(c, errors.NewUnauthorizedError(detail, c.Request.URL.Path))
	c.Abort()
}

// Forbidden sends a 403 Forbidden response
func Forbidden(c *gin.Context, detail string) {
	Problem(c, errors.NewForbiddenError(detail, c.Request.URL.Path))
	c.Abort()
}

// NotFound sends a 404 Not Found response
func NotFound(c *gin.Context, detail string) {
	Problem(c, errors.NewNotFoundError(detail, c.Request.URL.Path))
	c.Abort()
}

// getTraceID extracts trace ID from context
func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Trace-ID")
}

// CreatePaginationMeta creates pagination metadata
func CreatePaginationMeta(page dbutil.Page, totalRecords int64) *PaginationMeta {
	limit := page.Limit
	if limit <= 0 {
		limit = dbutil.DefaultPageLimit
	}
	if limit > dbutil.MaxPageLimit {
		limit = dbutil.MaxPageLimit
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	return &PaginationMeta{
		Limit:        limit,
		Offset:       offset,
		TotalRecords: totalRecords,
		HasNext:      int64(offset+limit) < totalRecords,
		HasPrev:      offset > 0,
	}
}
