package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Recommendation is one suggestion produced by the external assistant for a
// task (e.g. a proposed next step or a breakdown into subtasks).
type Recommendation struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// RecommendClient abstracts the external AI suggestion endpoint.
type RecommendClient interface {
	Suggest(ctx context.Context, task Task) ([]Recommendation, error)
}

// HTTPRecommendClient calls the suggestion endpoint over HTTP.
type HTTPRecommendClient struct {
	client *http.Client
	base   string
}

func NewHTTPRecommendClient(baseURL string) *HTTPRecommendClient {
	return &HTTPRecommendClient{
		client: &http.Client{Timeout: 30 * time.Second},
		base:   baseURL,
	}
}

type recommendRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
}

type recommendResponse struct {
	Suggestions []Recommendation `json:"suggestions"`
}

// Suggest posts the task summary and returns the parsed suggestions.
func (c *HTTPRecommendClient) Suggest(ctx context.Context, task Task) ([]Recommendation, error) {
	if c.base == "" {
		return nil, errors.New("recommend url not configured")
	}

	payload := recommendRequest{
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		Priority:    task.Priority,
	}
	b, _ := json.Marshal(payload)
	log.Printf("recommend request task=%d title_bytes=%d", task.ID, len(task.Title))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/suggest", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("recommend endpoint returned status %d", resp.StatusCode)
	}
	var body recommendResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Suggestions, nil
}

// RecommendService fronts the external client with a redis cache so repeated
// views of the same task do not re-pay the upstream call.
type RecommendService struct {
	client RecommendClient
	redis  RedisClientRaw
	ttl    time.Duration
}

func NewRecommendService(client RecommendClient, redisClient RedisClientRaw, ttl time.Duration) *RecommendService {
	return &RecommendService{client: client, redis: redisClient, ttl: ttl}
}

func recommendCacheKey(taskID int64) string {
	return fmt.Sprintf("task:recommend:%d", taskID)
}

// ForTask returns cached suggestions when present, otherwise calls upstream
// and caches the result. Cache write failures are logged, not surfaced.
func (s *RecommendService) ForTask(ctx context.Context, task Task) ([]Recommendation, error) {
	key := recommendCacheKey(task.ID)
	if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
		var recs []Recommendation
		if err := json.Unmarshal([]byte(cached), &recs); err == nil {
			return recs, nil
		}
	}

	recs, err := s.client.Suggest(ctx, task)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(recs); err == nil {
		if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
			log.Printf("recommend cache write failed for task %d: %v", task.ID, err)
		}
	}
	return recs, nil
}
