package platform

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// API paths relative to the configured base URL.
const (
	PathLogin         = "/user/login"
	PathProfile       = "/user/profile"
	PathDashboard     = "/dashboard"
	PathStats         = "/dashboard/stats"
	PathDailyCheckIn  = "/tasks/daily"
	PathTasks         = "/tasks/"
	pathTaskCompleteF = "/tasks/%s/complete"
)

// LoginRequest is the body of the signed-challenge login.
type LoginRequest struct {
	Message       string `json:"message"`
	WalletAddress string `json:"walletAddress"`
	Signature     string `json:"signature"`
	ReferralCode  string `json:"referralCode"`
}

// Envelope is the platform's common response wrapper.
type Envelope struct {
	StatusCode int             `json:"statusCode"`
	Message    json.RawMessage `json:"message,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// HasData reports whether data is present and not JSON null.
func (e Envelope) HasData() bool {
	trimmed := string(e.Data)
	return trimmed != "" && trimmed != "null"
}

// LoginData carries the access token.
type LoginData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// TaskID identifies a task. The platform sends it either as a JSON string or
// a JSON number; both decode to text.
type TaskID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *TaskID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*id = TaskID(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("task id must be a string or a number: %w", err)
	}
	*id = TaskID(number.String())
	return nil
}

func (id TaskID) String() string { return string(id) }

// Task is one entry of the task list.
type Task struct {
	TaskID TaskID `json:"taskId"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// CompleteResult is the outcome of a completion call.
type CompleteResult struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"-"`
}

// Completed reports whether the platform accepted the completion.
func (r CompleteResult) Completed() bool {
	return r.StatusCode == 200
}
