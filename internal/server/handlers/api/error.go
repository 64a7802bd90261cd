package api

import "fmt"

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: code=%s, message=%s", e.Code, e.Message)
}

// ConflictResponse is the 409 body of a rejected write.
type ConflictResponse struct {
	Code           string `json:"code"`
	Message        string `json:"error"`
	Path           string `json:"path"`
	ServerRevision uint64 `json:"server_revision"`
	ServerHash     string `json:"server_hash"`
}
