package server

import "encoding/json"

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// ResearchRequest submits a new research job.
type ResearchRequest struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
	Depth   string `json:"depth,omitempty"`
}

// JobAccepted acknowledges an accepted research job.
type JobAccepted struct {
	JobID string `json:"job_id"`
}

// JobStatusResponse is the polling view of a job.
type JobStatusResponse struct {
	JobID          string  `json:"job_id"`
	Query          string  `json:"query"`
	Depth          string  `json:"depth"`
	Status         string  `json:"status"`
	Phase          string  `json:"phase,omitempty"`
	Progress       float64 `json:"progress"`
	Error          string  `json:"error,omitempty"`
	Resumable      bool    `json:"resumable"`
	ResultLocation string  `json:"result_location,omitempty"`
}

// ReportResponse is the consolidated research document.
type ReportResponse struct {
	JobID      string          `json:"job_id"`
	Synthesis  string          `json:"synthesis"`
	Strategic  string          `json:"strategic,omitempty"`
	QASummary  string          `json:"qa_summary,omitempty"`
	Stats      json.RawMessage `json:"stats,omitempty"`
	HumanHours float64         `json:"human_hours"`
	CostUSD    float64         `json:"cost_usd"`
}

// CreateWatchRequest registers a recurring research query.
type CreateWatchRequest struct {
	Query        string `json:"query"`
	Depth        string `json:"depth,omitempty"`
	ScheduleCron string `json:"schedule_cron"`
}

// WatchResponse is a registered watch.
type WatchResponse struct {
	ID           string `json:"id"`
	Query        string `json:"query"`
	Depth        string `json:"depth"`
	ScheduleCron string `json:"schedule_cron"`
	LastRunAt    string `json:"last_run_at,omitempty"`
}

// IDResponse is a generic id response wrapper.
type IDResponse struct {
	ID string `json:"id"`
}
