package core

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// respondError sends the uniform error envelope
// {"status":"error","message":...,"errors":[{"code","message"}]}.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"status":  "error",
		"message": message,
		"errors":  []gin.H{{"code": code, "message": message}},
	})
}

// respondAppError maps a typed failure onto the envelope without re-wrapping;
// the status and code travel from the point of detection unchanged.
func respondAppError(c *gin.Context, appErr *AppError) {
	respondError(c, appErr.Status, appErr.Code, appErr.Message)
}

// respondAnyError handles the boundary between typed failures and everything
// else. Unexpected errors become a generic 500; detail is only logged
// server-side, never echoed to the client.
func respondAnyError(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		respondAppError(c, appErr)
		return
	}
	log.Printf("unexpected error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "an internal error occurred")
}

// respondOK sends the uniform success envelope {"status":"ok","data":...}.
func respondOK(c *gin.Context, status int, data any) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, gin.H{"status": "ok", "data": data})
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func parsePagination(pageStr, perPageStr string) (int, int, error) {
	page := 1
	perPage := defaultPerPage
	if strings.TrimSpace(pageStr) != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = p
	}
	if strings.TrimSpace(perPageStr) != "" {
		p, err := strconv.Atoi(perPageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("per_page must be a positive integer")
		}
		if p > maxPerPage {
			p = maxPerPage
		}
		perPage = p
	}
	return page, perPage, nil
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
