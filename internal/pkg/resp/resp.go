/*
Package resp provides helper functions for constructing and sending standardized HTTP JSON responses.

It offers a generic JSON writer plus convenience wrappers for the success and
error shapes used by the health endpoint and the notification bridge.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"trocchat/internal/pkg/errs"
	"trocchat/internal/pkg/logx"
)

// BridgeResult is the response body returned by the notification bridge
// endpoints. Skipped is set when a notification was filtered out by the
// target's preferences; that is still a successful call.
type BridgeResult struct {
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RespondJSON sets the Content-Type and sends the JSON payload with the given status.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response, err := json.Marshal(payload)
	if err != nil {
		logx.Error(err, "Error encoding JSON response", "http_status", httpStatus)
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	w.Write(response)
}

// RespondSuccess sends a successful HTTP response (HTTP 200 OK) with the given payload.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, data)
}

// RespondError sends an HTTP response containing custom error information.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	res := BridgeResult{
		Success: false,
		Error:   customErr.Message,
	}
	RespondJSON(w, r, customErr.Status, res)
}
