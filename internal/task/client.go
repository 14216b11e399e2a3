package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"taskpulse/pkg/circuitbreaker"
)

// CreateInstanceRequest is the body of the idempotent create-instance call
// into the task CRUD API.
type CreateInstanceRequest struct {
	ParentTaskID int64      `json:"parent_task_id"`
	UserID       int64      `json:"user_id"`
	InstanceDate string     `json:"instance_date"` // YYYY-MM-DD
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Priority     string     `json:"priority,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
}

// Creator materializes task instances. The production implementation is
// the HTTP client below; tests substitute a fake.
type Creator interface {
	CreateInstance(ctx context.Context, req CreateInstanceRequest) (*Instance, error)
}

// Client calls the task CRUD API's internal create-instance endpoint. The
// endpoint is idempotent on (parent_task_id, instance_date): a redelivered
// event gets the existing instance back (HTTP 200 instead of 201).
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

func NewClient(baseURL string) *Client {
	cbConfig := circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Bounded: a hung call leaves the event unacked for retry
			// instead of stalling the consumer forever.
			Timeout: 10 * time.Second,
		},
		cb: circuitbreaker.NewCircuitBreaker(cbConfig),
	}
}

func (c *Client) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*Instance, error) {
	var instance *Instance

	err := c.cb.Execute(func() error {
		b, marshalErr := json.Marshal(req)
		if marshalErr != nil {
			return marshalErr
		}

		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/tasks/instances", bytes.NewReader(b))
		if reqErr != nil {
			return reqErr
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, doErr := c.httpClient.Do(httpReq)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated, http.StatusOK:
			var decoded Instance
			if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
				return err
			}
			decoded.Existing = resp.StatusCode == http.StatusOK
			instance = &decoded
			return nil
		default:
			return fmt.Errorf("task api error: %d", resp.StatusCode)
		}
	})
	if err != nil {
		return nil, err
	}

	return instance, nil
}
