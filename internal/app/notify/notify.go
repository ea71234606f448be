/*
Package notify implements the cross-process notification bridge: the service
the stateless web tier calls after a state-changing action to reach connected
browsers in realtime, falling back to web push for offline users.
*/
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"trocchat/internal/app/hub"
	"trocchat/internal/app/push"
	"trocchat/internal/app/store"
	"trocchat/internal/pkg/logx"
)

// Request is the body of a POST /notify bridge call.
type Request struct {
	TargetUserID     string         `json:"targetUserId"`
	Type             string         `json:"type"`
	Title            string         `json:"title"`
	Message          string         `json:"message"`
	Action           string         `json:"action,omitempty"`
	TitleKey         string         `json:"titleKey,omitempty"`
	MessageKey       string         `json:"messageKey,omitempty"`
	Params           map[string]any `json:"params,omitempty"`
	NotificationType string         `json:"notificationType,omitempty"`
	ActorNickname    string         `json:"actorNickname,omitempty"`
	ProductName      string         `json:"productName,omitempty"`
	OwnerReserve     bool           `json:"ownerReserve,omitempty"`
}

// Result reports how a notification was handled. Skipped means the target's
// preferences filtered it out, which is still a successful bridge call.
type Result struct {
	Delivered bool
	Skipped   bool

	// PushSent and PushPruned count the web-push fallback outcome.
	PushSent   int
	PushPruned int
}

// Service is the notification bridge behind the /notify and
// /broadcast-product-state endpoints.
type Service struct {
	hub    *hub.Hub
	store  store.Store
	sender push.Sender
	logger zerolog.Logger
}

// NewService wires the bridge to the hub, the store and an optional web-push
// sender (nil disables the offline fallback).
func NewService(h *hub.Hub, st store.Store, sender push.Sender) *Service {
	return &Service{
		hub:    h,
		store:  st,
		sender: sender,
		logger: logx.With("notify"),
	}
}

// Notify delivers one targeted notification. The target's preferences are
// consulted first; a filtered notification is skipped, not failed. Delivery
// goes over the live socket when the target is online, otherwise to every
// registered push subscription. Push failures are best-effort: gone
// subscriptions (404/410) are pruned, other errors are logged and swallowed.
func (s *Service) Notify(ctx context.Context, req Request) Result {
	prefs, err := s.store.Preferences(ctx, req.TargetUserID)
	if err != nil {
		// Degrade to default delivery rather than failing the bridge call.
		s.logger.Error().Err(err).Str("target", req.TargetUserID).Msg("Failed to load notification preferences.")
		prefs = nil
	}

	if !wantsNotification(prefs, req) {
		return Result{Skipped: true}
	}

	notification := hub.AppNotification{
		Type:             req.Type,
		Title:            req.Title,
		Message:          req.Message,
		TitleKey:         req.TitleKey,
		MessageKey:       req.MessageKey,
		Params:           req.Params,
		Action:           req.Action,
		NotificationType: req.NotificationType,
		OwnerReserve:     req.OwnerReserve,
	}

	if s.hub.EmitToUser(req.TargetUserID, hub.EventAppNotification, notification) {
		return Result{Delivered: true}
	}

	return s.pushFallback(ctx, req.TargetUserID, notification)
}

// wantsNotification applies the target's preference rules.
func wantsNotification(prefs *store.NotificationPrefs, req Request) bool {
	if prefs == nil {
		return true
	}

	if len(prefs.EnabledTypes) > 0 && !containsFold(prefs.EnabledTypes, req.NotificationType) {
		return false
	}

	if prefs.ReceiveAll {
		return true
	}

	if containsFold(prefs.AllowedNicknames, req.ActorNickname) {
		return true
	}

	productName := strings.ToLower(req.ProductName)
	for _, keyword := range prefs.AllowedKeywords {
		if keyword != "" && strings.Contains(productName, strings.ToLower(keyword)) {
			return true
		}
	}

	return false
}

func containsFold(list []string, value string) bool {
	if value == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

// pushResult is the settled outcome of one web-push attempt.
type pushResult struct {
	sub    store.PushSubscription
	status int
	err    error
}

// pushFallback sends the notification to every push subscription of an
// offline user, then deterministically prunes the subscriptions the provider
// reported gone.
func (s *Service) pushFallback(ctx context.Context, userID string, notification hub.AppNotification) Result {
	if s.sender == nil {
		s.logger.Debug().Str("target", userID).Msg("Web push disabled, notification dropped for offline user.")
		return Result{}
	}

	subs, err := s.store.PushSubscriptions(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("target", userID).Msg("Failed to load push subscriptions.")
		return Result{}
	}
	if len(subs) == 0 {
		return Result{}
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal push payload.")
		return Result{}
	}

	// Settle every send before acting on any outcome, so pruning is
	// deterministic instead of racing inside per-send callbacks.
	results := make([]pushResult, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub store.PushSubscription) {
			defer wg.Done()
			status, err := s.sender.Send(ctx, sub, payload)
			results[i] = pushResult{sub: sub, status: status, err: err}
		}(i, sub)
	}
	wg.Wait()

	var res Result
	for _, r := range results {
		switch {
		case r.err != nil:
			s.logger.Warn().Err(r.err).Str("endpoint", r.sub.Endpoint).Msg("Web push delivery failed.")

		case r.status == http.StatusNotFound || r.status == http.StatusGone:
			if err := s.store.DeletePushSubscription(ctx, r.sub.ID); err != nil {
				s.logger.Error().Err(err).Int64("subscription_id", r.sub.ID).Msg("Failed to prune gone subscription.")
			} else {
				res.PushPruned++
			}

		default:
			res.PushSent++
		}
	}

	res.Delivered = res.PushSent > 0
	return res
}

// BroadcastProductState fans a product state change out to every connected
// socket. No preference filtering applies; this is state sync, not a
// notification.
func (s *Service) BroadcastProductState(state hub.ProductState) {
	s.hub.BroadcastAll(hub.EventProductState, state)
}
