/*
Package handler provides the HTTP handlers and routing setup for the realtime server.

This file contains the notification bridge endpoints the stateless web tier
calls after a state-changing action: targeted notifications and product-state
fan-out. Both require the shared notify secret.
*/
package handler

import (
	"crypto/subtle"
	"net/http"

	"trocchat/internal/app/hub"
	"trocchat/internal/app/notify"
	"trocchat/internal/pkg/errs"
	"trocchat/internal/pkg/req"
	"trocchat/internal/pkg/resp"
)

// NotifyTokenHeader carries the shared secret on bridge calls.
const NotifyTokenHeader = "x-notify-token"

// bridgeAuthorized checks the shared-secret header. An empty configured token
// leaves the bridge open (development only).
func bridgeAuthorized(r *http.Request, configuredToken string) bool {
	if configuredToken == "" {
		return true
	}
	provided := r.Header.Get(NotifyTokenHeader)
	return subtle.ConstantTimeCompare([]byte(provided), []byte(configuredToken)) == 1
}

// HandleNotify serves POST /notify: deliver one targeted notification through
// the bridge. Preference-filtered notifications still answer success with a
// skipped flag; only auth and malformed bodies fail.
func HandleNotify(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !bridgeAuthorized(r, deps.Config.NotifyToken) {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotifyTokenInvalid))
			return
		}

		var request notify.Request
		if bindErr := req.BindJSON(w, r, &request); bindErr != nil {
			resp.RespondError(w, r, bindErr)
			return
		}

		if request.TargetUserID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		result := deps.Notify.Notify(r.Context(), request)

		resp.RespondSuccess(w, r, resp.BridgeResult{
			Success: true,
			Skipped: result.Skipped,
		})
	}
}

// HandleBroadcastProductState serves POST /broadcast-product-state: fan a
// product state change out to every connected socket, unfiltered.
func HandleBroadcastProductState(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !bridgeAuthorized(r, deps.Config.NotifyToken) {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotifyTokenInvalid))
			return
		}

		var state hub.ProductState
		if bindErr := req.BindJSON(w, r, &state); bindErr != nil {
			resp.RespondError(w, r, bindErr)
			return
		}

		if state.ProductID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		deps.Notify.BroadcastProductState(state)

		resp.RespondSuccess(w, r, resp.BridgeResult{Success: true})
	}
}
