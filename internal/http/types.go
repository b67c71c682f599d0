package http

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse acknowledges a state change with no body of its own.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// WeeklyResponse is the body of GET /api/v1/reflections/weekly. Reflection
// is a saved reflection when IsNew is false and a generated one otherwise.
type WeeklyResponse struct {
	Reflection any  `json:"reflection"`
	IsNew      bool `json:"is_new"`
}

// CreateNotificationRequest is the body of POST /api/v1/notifications.
type CreateNotificationRequest struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
}

// RecordOutcomeRequest is the body of POST /api/v1/outcomes.
type RecordOutcomeRequest struct {
	ReceiptID       string `json:"receipt_id"`
	Outcome         string `json:"outcome"`
	AssumptionDelta string `json:"assumption_delta"`
}
