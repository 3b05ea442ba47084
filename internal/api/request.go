package api

// TriggerRequest is the body of POST /v1/accounts/:id/refresh.
type TriggerRequest struct {
	Date string `json:"date"` // affected transaction date, YYYY-MM-DD
}
