package handler

import "net/http"

type emptyResponse struct {
	status int
}

func (e emptyResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

// Empty creates an empty response with status 204 (No Content).
func Empty() Response {
	return emptyResponse{status: http.StatusNoContent}
}

// EmptyWithStatus creates an empty response with a custom status code.
//
// Example:
//
//	// acknowledge a webhook
//	return handler.EmptyWithStatus(http.StatusOK)
func EmptyWithStatus(status int) Response {
	return emptyResponse{status: status}
}
