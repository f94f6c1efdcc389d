package handler

// errorResponse documents the JSON envelope rendered for every API error.
type errorResponse struct {
	Error string `json:"error"`
}
