// Package functions is a client for the platform's serverless functions
// (user lookup, invite mail, share links, account deletion, token top-ups).
// Every function is a JSON POST to <base>/<name>. Responses either carry a
// {success, error, data} envelope or a bare JSON object.
package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/tbourn/traderobots-backend/internal/config"
)

var (
	// ErrServerUnavailable is wrapped by errors caused by transport failures,
	// 5xx responses and 429s that persisted through every retry.
	ErrServerUnavailable = errors.New("functions: server unavailable")

	// ErrRemote is wrapped when a function answered with success=false.
	ErrRemote = errors.New("functions: remote error")
)

// Error describes a failed function call.
type Error struct {
	Function string
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("functions: %s: status %d: %s", e.Function, e.Status, msg)
	}
	return fmt.Sprintf("functions: %s: %s", e.Function, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Client calls serverless functions with bearer auth and bounded retries.
type Client struct {
	http *resty.Client
}

// New builds a Client from cfg. Retries is the total number of attempts;
// the wait between attempts is fixed at RetryWait.
func New(cfg config.FunctionsConfig) *Client {
	attempts := cfg.Retries
	if attempts < 1 {
		attempts = 1
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(attempts - 1).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryWait).
		AddRetryCondition(retryable)
	if cfg.APIKey != "" {
		rc.SetAuthToken(cfg.APIKey)
	}
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	return &Client{http: rc}
}

func retryable(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
}

type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// call posts body to the named function and decodes the response into out
// (which may be nil).
func (c *Client) call(ctx context.Context, name string, body, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/" + name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &Error{Function: name, Message: err.Error(), Err: ErrServerUnavailable}
	}

	var env envelope
	_ = json.Unmarshal(resp.Body(), &env)

	status := resp.StatusCode()
	switch {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError,
		strings.EqualFold(env.Error, "server configuration error"):
		return &Error{Function: name, Status: status, Message: env.Error, Err: ErrServerUnavailable}
	case resp.IsError():
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &Error{Function: name, Status: status, Message: msg}
	case env.Success != nil && !*env.Success:
		return &Error{Function: name, Status: status, Message: env.Error, Err: ErrRemote}
	}

	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return &Error{Function: name, Status: status, Message: "invalid response body: " + err.Error()}
		}
	}
	return nil
}

// UserExists reports whether an account is registered for email.
func (c *Client) UserExists(ctx context.Context, email string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.call(ctx, "check-user-exists", map[string]string{"email": email}, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// InviteEmail is the payload of the invitation mail.
type InviteEmail struct {
	RobotName   string `json:"robotName"`
	Email       string `json:"email"`
	InviterName string `json:"inviterName"`
	Permission  string `json:"permission"`
	InviteLink  string `json:"inviteLink"`
}

// SendInviteEmail asks the mail function to deliver an invitation.
func (c *Client) SendInviteEmail(ctx context.Context, msg InviteEmail) error {
	return c.call(ctx, "send-invite-email", msg, nil)
}

// CreateShareLink mints a public share token for a robot.
func (c *Client) CreateShareLink(ctx context.Context, robotName, permission string) (string, error) {
	var out struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	body := map[string]string{"robotName": robotName, "permission": permission}
	if err := c.call(ctx, "create-share-link", body, &out); err != nil {
		return "", err
	}
	if out.Data.Token == "" {
		return "", &Error{Function: "create-share-link", Message: "response has no token", Err: ErrRemote}
	}
	return out.Data.Token, nil
}

// DeleteUser removes the account userID from the identity provider.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.call(ctx, "delete-user", map[string]string{"userId": userID}, nil)
}

// AddTokens credits amount tokens to the account registered under email.
func (c *Client) AddTokens(ctx context.Context, email string, amount int64) error {
	body := struct {
		Email  string `json:"email"`
		Amount int64  `json:"amount"`
	}{email, amount}
	return c.call(ctx, "add-tokens", body, nil)
}

