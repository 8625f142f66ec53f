// Package platform wraps the rewards platform's REST endpoints in typed calls
// executed through the resilient HTTP client.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	xerrors "RewardPilot/internal/errors"
	"RewardPilot/internal/httpclient"
)

// Executor is the subset of httpclient.Client the platform needs.
type Executor interface {
	Execute(ctx context.Context, req httpclient.Request, transport http.RoundTripper) (*httpclient.Response, error)
}

// Client issues platform calls. One Client is shared by every identity; the
// token and transport travel with each call.
type Client struct {
	baseURL string
	referer string
	exec    Executor
}

// NewClient validates baseURL and returns a client.
func NewClient(baseURL, referer string, exec Executor) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "platform base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "invalid platform base url")
	}
	if exec == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "http executor is required")
	}
	return &Client{baseURL: baseURL, referer: referer, exec: exec}, nil
}

// Login posts the signed challenge and returns the raw login envelope. A
// login the platform rejects outright is an auth error, not an API error.
func (c *Client) Login(ctx context.Context, req LoginRequest, rt http.RoundTripper) (LoginData, error) {
	resp, err := c.exec.Execute(ctx, httpclient.Request{
		Method:   http.MethodPost,
		URL:      c.baseURL + PathLogin,
		Endpoint: PathLogin,
		Body:     req,
	}, rt)
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeAPI {
			return LoginData{}, xerrors.Wrap(xerrors.CodeAuth, err, "login rejected",
				xerrors.WithMetadata("wallet", req.WalletAddress))
		}
		return LoginData{}, err
	}
	var envelope struct {
		Data *LoginData `json:"data"`
	}
	if err := resp.Decode(&envelope); err != nil {
		return LoginData{}, xerrors.Wrap(xerrors.CodeAuth, err, "login response unreadable")
	}
	if envelope.Data == nil {
		return LoginData{}, nil
	}
	return *envelope.Data, nil
}

// Profile fetches the identity profile.
func (c *Client) Profile(ctx context.Context, token string, rt http.RoundTripper) (Envelope, error) {
	return c.getOK(ctx, PathProfile, "profile", token, rt)
}

// Dashboard fetches the dashboard.
func (c *Client) Dashboard(ctx context.Context, token string, rt http.RoundTripper) (Envelope, error) {
	return c.getOK(ctx, PathDashboard, "dashboard", token, rt)
}

// Stats fetches dashboard statistics.
func (c *Client) Stats(ctx context.Context, token string, rt http.RoundTripper) (Envelope, error) {
	return c.getOK(ctx, PathStats, "dashboard stats", token, rt)
}

// DailyCheckIn performs the daily check-in.
func (c *Client) DailyCheckIn(ctx context.Context, token string, rt http.RoundTripper) (Envelope, error) {
	return c.getOK(ctx, PathDailyCheckIn, "daily check-in", token, rt)
}

// Tasks lists the tasks available to the identity. A null data field is an
// API error; an empty list is not.
func (c *Client) Tasks(ctx context.Context, token string, rt http.RoundTripper) ([]Task, error) {
	resp, err := c.exec.Execute(ctx, c.authorized(http.MethodGet, PathTasks, PathTasks, token, nil), rt)
	if err != nil {
		return nil, err
	}
	var envelope Envelope
	if err := resp.Decode(&envelope); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAPI, err, "task list unreadable")
	}
	if !envelope.HasData() {
		return nil, xerrors.New(xerrors.CodeAPI, "task list returned no data")
	}
	var tasks []Task
	if err := json.Unmarshal(envelope.Data, &tasks); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAPI, err, "task list malformed")
	}
	return tasks, nil
}

// CompleteTask asks the platform to complete taskID.
func (c *Client) CompleteTask(ctx context.Context, token, taskID string, rt http.RoundTripper) (CompleteResult, error) {
	path := fmt.Sprintf(pathTaskCompleteF, url.PathEscape(taskID))
	resp, err := c.exec.Execute(ctx, c.authorized(http.MethodPost, path, "/tasks/{taskId}/complete", token, struct{}{}), rt)
	if err != nil {
		return CompleteResult{}, err
	}
	var result CompleteResult
	if err := resp.Decode(&result); err != nil {
		return CompleteResult{}, xerrors.Wrap(xerrors.CodeAPI, err, "task completion unreadable")
	}
	result.Message = resp.Message()
	return result, nil
}

func (c *Client) getOK(ctx context.Context, path, step, token string, rt http.RoundTripper) (Envelope, error) {
	resp, err := c.exec.Execute(ctx, c.authorized(http.MethodGet, path, path, token, nil), rt)
	if err != nil {
		return Envelope{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Envelope{}, xerrors.New(xerrors.CodeAPI, step+" returned unexpected status",
			xerrors.WithMetadata("status", strconv.Itoa(resp.StatusCode)))
	}
	var envelope Envelope
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &envelope); err != nil {
			return Envelope{}, xerrors.Wrap(xerrors.CodeAPI, err, step+" response unreadable")
		}
	}
	return envelope, nil
}

func (c *Client) authorized(method, path, endpoint, token string, body any) httpclient.Request {
	header := map[string]string{"Authorization": "Bearer " + token}
	if c.referer != "" {
		header["Referer"] = c.referer
	}
	return httpclient.Request{
		Method:   method,
		URL:      c.baseURL + path,
		Endpoint: endpoint,
		Header:   header,
		Body:     body,
	}
}
