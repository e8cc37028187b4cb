// Package textgen drives a hosted assistant through the threads/runs API:
// upload an optional attachment, post a prompt, start a run, poll it to a
// terminal state and read back the assistant's reply.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tbourn/traderobots-backend/internal/config"
)

var (
	// ErrRunFailed is wrapped when a run ends in any state but completed.
	ErrRunFailed = errors.New("textgen: run failed")

	// ErrNoReply means the run completed without an assistant text message.
	ErrNoReply = errors.New("textgen: no assistant reply")
)

// APIError is a non-2xx answer from the API after retries.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("textgen: status %d: %s", e.Status, e.Message)
}

// Client talks to the assistants API.
type Client struct {
	http        *resty.Client
	assistantID string
	poll        time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithRetryWait overrides the backoff window used for transient failures.
func WithRetryWait(initial, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.SetRetryWaitTime(initial).SetRetryMaxWaitTime(maxWait)
	}
}

// New builds a Client. Transient failures (transport errors, 429 and 5xx)
// are retried up to three times with exponential backoff from 1s to 10s; a
// Retry-After header on a 429 takes precedence.
func New(cfg config.AIConfig, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("OpenAI-Beta", "assistants=v2").
		SetRetryCount(3).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetRetryAfter(retryAfter)

	c := &Client{http: rc, assistantID: cfg.AssistantID, poll: cfg.PollInterval}
	if c.poll <= 0 {
		c.poll = time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryAfter honours Retry-After (in seconds) on 429 responses. Zero means
// "use the regular backoff".
func retryAfter(_ *resty.Client, r *resty.Response) (time.Duration, error) {
	if r == nil || r.StatusCode() != http.StatusTooManyRequests {
		return 0, nil
	}
	secs, err := strconv.Atoi(strings.TrimSpace(r.Header().Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0, nil
	}
	return time.Duration(secs) * time.Second, nil
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		msg := http.StatusText(resp.StatusCode())
		if e, ok := resp.Error().(*apiErrorBody); ok && e.Error.Message != "" {
			msg = e.Error.Message
		}
		return &APIError{Status: resp.StatusCode(), Message: msg}
	}
	return nil
}

func (c *Client) req(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&apiErrorBody{})
}

type object struct {
	ID string `json:"id"`
}

// UploadFile stores r as an assistants attachment and returns its id.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (string, error) {
	var out object
	resp, err := c.req(ctx).
		SetFormData(map[string]string{"purpose": "assistants"}).
		SetFileReader("file", name, r).
		SetResult(&out).
		Post("/files")
	if err := check(resp, err); err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	return out.ID, nil
}

// DeleteFile removes an uploaded attachment.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	resp, err := c.req(ctx).Delete("/files/" + id)
	if err := check(resp, err); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

type tool struct {
	Type string `json:"type"`
}

var codeInterpreter = []tool{{Type: "code_interpreter"}}

type attachment struct {
	FileID string `json:"file_id"`
	Tools  []tool `json:"tools"`
}

type messageRequest struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Attachments []attachment `json:"attachments,omitempty"`
}

type run struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Message string `json:"message"`
	} `json:"last_error"`
}

type messageList struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// Ask posts prompt on a fresh thread, optionally attaching fileID for the
// code interpreter, runs the assistant and returns its reply text. ctx bounds
// the whole exchange including polling.
func (c *Client) Ask(ctx context.Context, prompt, fileID string) (string, error) {
	var thread object
	resp, err := c.req(ctx).SetBody(map[string]any{}).SetResult(&thread).Post("/threads")
	if err := check(resp, err); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}

	msg := messageRequest{Role: "user", Content: prompt}
	if fileID != "" {
		msg.Attachments = []attachment{{FileID: fileID, Tools: codeInterpreter}}
	}
	resp, err = c.req(ctx).SetBody(msg).Post("/threads/" + thread.ID + "/messages")
	if err := check(resp, err); err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}

	body := map[string]any{"assistant_id": c.assistantID}
	if fileID != "" {
		body["tools"] = codeInterpreter
	}
	var r run
	resp, err = c.req(ctx).SetBody(body).SetResult(&r).Post("/threads/" + thread.ID + "/runs")
	if err := check(resp, err); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	if err := c.wait(ctx, thread.ID, &r); err != nil {
		return "", err
	}
	return c.reply(ctx, thread.ID)
}

// wait polls the run until it reaches a terminal state.
func (c *Client) wait(ctx context.Context, threadID string, r *run) error {
	t := time.NewTicker(c.poll)
	defer t.Stop()
	for {
		switch r.Status {
		case "completed":
			return nil
		case "failed", "cancelled", "expired", "incomplete":
			msg := "unknown error"
			if r.LastError != nil && r.LastError.Message != "" {
				msg = r.LastError.Message
			}
			return fmt.Errorf("%w: %s: %s", ErrRunFailed, r.Status, msg)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		resp, err := c.req(ctx).SetResult(r).Get("/threads/" + threadID + "/runs/" + r.ID)
		if err := check(resp, err); err != nil {
			return fmt.Errorf("poll run: %w", err)
		}
	}
}

func (c *Client) reply(ctx context.Context, threadID string) (string, error) {
	var list messageList
	resp, err := c.req(ctx).
		SetQueryParam("order", "desc").
		SetResult(&list).
		Get("/threads/" + threadID + "/messages")
	if err := check(resp, err); err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	for _, m := range list.Data {
		if m.Role != "assistant" {
			continue
		}
		for _, part := range m.Content {
			if part.Type == "text" && part.Text.Value != "" {
				return part.Text.Value, nil
			}
		}
	}
	return "", ErrNoReply
}
