package core

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RouterDeps bundles the collaborators the HTTP surface is wired against.
type RouterDeps struct {
	Auth      *AuthService
	Tokens    *TokenService
	Users     UserRepository
	Tasks     TaskRepository
	Recommend *RecommendService
	Metrics   *MetricsService
}

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, deps RouterDeps) *gin.Engine {
	startedAt := time.Now()
	r := gin.Default()

	r.Use(OriginRefererMiddleware(cfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/auth/register", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			req.Username = strings.TrimSpace(req.Username)
			if len(req.Username) < 3 || len(req.Username) > 32 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "username must be 3-32 characters")
				return
			}
			if len(req.Password) < 8 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "password must be at least 8 characters")
				return
			}

			u, err := deps.Auth.Register(c.Request.Context(), req.Username, req.Password)
			if err != nil {
				if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
					respondError(c, http.StatusConflict, "CONFLICT", "username is already taken")
					return
				}
				respondAnyError(c, err)
				return
			}
			respondOK(c, http.StatusCreated, gin.H{
				"id":         u.ID,
				"username":   u.Username,
				"created_at": u.CreatedAt,
			})
		})

		api.POST("/auth/login", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			token, err := deps.Auth.Login(c.Request.Context(), req.Username, req.Password)
			if err != nil {
				respondAnyError(c, err)
				return
			}
			respondOK(c, http.StatusOK, gin.H{"token": token})
		})

		// The token flows into the auth service as an argument here rather
		// than through RequireAuth: the service verifies it as the first step
		// of the change-password sequence.
		api.POST("/auth/password/change", func(c *gin.Context) {
			token, ok := extractBearerToken(c.GetHeader("Authorization"))
			if !ok {
				respondAppError(c, ErrInvalidToken())
				return
			}
			var req struct {
				OldPassword string `json:"oldPassword"`
				NewPassword string `json:"newPassword"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if req.OldPassword == "" || req.NewPassword == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "oldPassword and newPassword are required")
				return
			}
			if len(req.NewPassword) < 8 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "new password must be at least 8 characters")
				return
			}

			if err := deps.Auth.ChangePassword(c.Request.Context(), token, req.OldPassword, req.NewPassword); err != nil {
				respondAnyError(c, err)
				return
			}
			respondOK(c, http.StatusOK, nil)
		})

		authed := api.Group("")
		authed.Use(RequireAuth(deps.Tokens))

		authed.GET("/users/me", func(c *gin.Context) {
			identity, _ := CurrentIdentity(c)
			ctx := c.Request.Context()

			u, err := deps.Users.FindByID(ctx, identity.UserID)
			if err != nil {
				respondAnyError(c, err)
				return
			}
			if u == nil {
				respondAppError(c, ErrUserNotFound())
				return
			}
			taskCount, err := deps.Tasks.CountByUser(ctx, u.ID)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to count tasks")
				return
			}
			doneCount, err := deps.Tasks.CountDoneByUser(ctx, u.ID)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to count done tasks")
				return
			}
			respondOK(c, http.StatusOK, gin.H{
				"id":         u.ID,
				"username":   u.Username,
				"role":       u.Role,
				"task_count": taskCount,
				"done_count": doneCount,
				"created_at": u.CreatedAt,
			})
		})

		authed.POST("/tasks", func(c *gin.Context) {
			identity, _ := CurrentIdentity(c)
			var req struct {
				Title       string     `json:"title"`
				Description string     `json:"description"`
				Status      string     `json:"status"`
				Priority    *int       `json:"priority"`
				DueAt       *time.Time `json:"due_at"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			req.Title = strings.TrimSpace(req.Title)
			if req.Title == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "title is required")
				return
			}
			if req.Status == "" {
				req.Status = "todo"
			}
			if !isValidTaskStatus(req.Status) {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "status must be one of todo, in_progress, done")
				return
			}
			priority := 3
			if req.Priority != nil {
				priority = *req.Priority
			}
			if priority < 1 || priority > 5 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "priority must be between 1 and 5")
				return
			}

			t := Task{
				UserID:      identity.UserID,
				Title:       req.Title,
				Description: req.Description,
				Status:      req.Status,
				Priority:    priority,
				DueAt:       req.DueAt,
			}
			id, createdAt, err := deps.Tasks.Create(c.Request.Context(), t)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create task")
				return
			}
			t.ID = id
			t.CreatedAt = createdAt
			t.UpdatedAt = createdAt
			respondOK(c, http.StatusCreated, t)
		})

		authed.GET("/tasks", func(c *gin.Context) {
			identity, _ := CurrentIdentity(c)
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			status := c.Query("status")
			if status != "" && !isValidTaskStatus(status) {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "status must be one of todo, in_progress, done")
				return
			}

			items, total, err := deps.Tasks.ListByUser(c.Request.Context(), identity.UserID, status, page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch tasks")
				return
			}
			respondOK(c, http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		authed.GET("/tasks/:id", func(c *gin.Context) {
			identity, _ := CurrentIdentity(c)
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil || id <= 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			t, err := deps.Tasks.FindByID(c.Request.Context(), id)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch task")
				return
			}
			if t == nil || t.UserID != identity.UserID {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "task not found")
				return
			}
			respondOK(c, http.StatusOK, t)
		})

		authed.PATCH("/tasks/:id", func(c *gin.Context) {
			identity, _ := CurrentIdentity(c)
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil || id <= 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			var req struct {
				Title       *string    `json:"title"`
				Description *string    `json:"description"`
				Status      *string    `json:"status"`
				Priority    *int       `json:"priority"`
				DueAt       *time.Time `json:"due_at"`
				ClearDueAt  bool       `json:"clear_due_at"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "title must not be empty")
				return
			}
			if req.Status != nil && !isValidTaskStatus(*req.Status) {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "status must be one of todo, in_progress, done")
				return
			}
			if req.Priority != nil && (*req.Priority < 1 || *req.Priority > 5) {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "priority must be between 1 and 5")
				return
			}

			t, err := deps.Tasks.Update(c.Request.Context(), id, identity.UserID, TaskUpdate{
				Title:       req.Title,
				Description: req.Description,
				Status:      req.Status,
				Priority:    req.Priority,
				DueAt:       req.DueAt,
				ClearDueAt:  req.ClearDueAt,
			})
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update task")
				return
			}
			if t == nil {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "task not found")
				return
			}
			respondOK(c, http.StatusOK, t)
		})

		authed.DELETE("/tasks/:id", func(c *gin.Context) {
			identity, _ := CurrentIdentity(c)
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil || id <= 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			if err := deps.Tasks.Delete(c.Request.Context(), id, identity.UserID); err != nil {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "task not found")
				return
			}
			c.Status(http.StatusNoContent)
		})

		authed.GET("/tasks/:id/recommendations", func(c *gin.Context) {
			identity, _ := CurrentIdentity(c)
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil || id <= 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			t, err := deps.Tasks.FindByID(c.Request.Context(), id)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch task")
				return
			}
			if t == nil || t.UserID != identity.UserID {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "task not found")
				return
			}

			recs, err := deps.Recommend.ForTask(c.Request.Context(), *t)
			if err != nil {
				respondError(c, http.StatusBadGateway, "RECOMMEND_UNAVAILABLE", "suggestion service is unavailable")
				return
			}
			respondOK(c, http.StatusOK, gin.H{"items": recs})
		})

		admin := authed.Group("/admin")
		admin.Use(AdminOnly(deps.Users))

		admin.GET("/users", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := deps.Users.List(c.Request.Context(), page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch users")
				return
			}
			respondOK(c, http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		metrics := admin.Group("/metrics")
		{
			metrics.GET("/overview", func(c *gin.Context) {
				queueMetrics, workers, err := deps.Metrics.Overview(c.Request.Context())
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load metrics")
					return
				}
				respondOK(c, http.StatusOK, gin.H{
					"queues":  queueMetrics,
					"workers": workers,
				})
			})

			metrics.GET("/queues", func(c *gin.Context) {
				queueMetrics, err := deps.Metrics.Queue(c.Request.Context())
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load queue metrics")
					return
				}
				respondOK(c, http.StatusOK, queueMetrics)
			})

			metrics.GET("/workers", func(c *gin.Context) {
				workers, err := deps.Metrics.Workers(c.Request.Context())
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load workers")
					return
				}
				respondOK(c, http.StatusOK, gin.H{"workers": workers})
			})

			metrics.GET("/workers/:id", func(c *gin.Context) {
				hb, err := deps.Metrics.WorkerByID(c.Request.Context(), c.Param("id"))
				if err != nil {
					if errors.Is(err, redis.Nil) {
						respondError(c, http.StatusNotFound, "NOT_FOUND", "worker not found")
						return
					}
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load worker")
					return
				}
				respondOK(c, http.StatusOK, hb)
			})
		}

		admin.GET("/system/status", func(c *gin.Context) {
			st, err := CollectSystemStatus(c.Request.Context(), deps.Metrics, startedAt)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load system status")
				return
			}
			respondOK(c, http.StatusOK, st)
		})
	}

	return r
}
