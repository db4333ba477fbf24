package buildexec

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"

	"agentbackend/clients"
)

// Client submits backtest jobs to the remote build executor service. The
// executor runs each job in a network-denied sandbox and pushes the terminal
// status back through the backtest callback endpoint - this client never polls.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, apiToken string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)

	return &Client{http: httpClient}
}

type submitBuildResponse struct {
	JobID string `json:"job_id"`
}

type buildError struct {
	Error string `json:"error"`
}

func (c *Client) SubmitBuild(ctx context.Context, spec clients.BuildSpec) (string, error) {
	var result submitBuildResponse
	var errBody buildError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(spec).
		SetResult(&result).
		SetError(&errBody).
		Post("/v1/builds")
	if err != nil {
		return "", fmt.Errorf("failed to submit build: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("build submission rejected (%d): %s", resp.StatusCode(), errBody.Error)
	}

	log.Printf("📋 Submitted backtest build %s for agent %s", result.JobID, spec.AgentID)
	return result.JobID, nil
}

func (c *Client) CancelBuild(ctx context.Context, jobID string) error {
	var errBody buildError
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errBody).
		Delete(fmt.Sprintf("/v1/builds/%s", jobID))
	if err != nil {
		return fmt.Errorf("failed to cancel build: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("build cancellation rejected (%d): %s", resp.StatusCode(), errBody.Error)
	}

	log.Printf("📋 Canceled backtest build %s", jobID)
	return nil
}
