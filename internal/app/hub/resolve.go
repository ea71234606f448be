/*
Package hub contains the core logic of the realtime server.

This file classifies and resolves private-chat targets. A payload may address
the counterpart by nickname or by userId; a supplied productId must name a
listing actually owned by the resolved target, which keeps a forged productId
from addressing an unrelated thread.
*/
package hub

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"trocchat/internal/app/store"
)

// ResolvedTarget is the discriminated success result of target resolution.
type ResolvedTarget struct {
	UserID    string
	ProductID string
}

// resolveTarget resolves a TargetPayload to a concrete userId (and validated
// productId). The boolean is false whenever resolution fails; per protocol
// policy the caller then drops the event silently.
func (h *Hub) resolveTarget(ctx context.Context, p TargetPayload) (ResolvedTarget, bool) {
	targetUserID, targetNickname := p.TargetUserID, p.TargetNickname

	if targetUserID == "" && targetNickname == "" && p.Target != "" {
		// Generic target field: a UUID-shaped value is a userId, anything
		// else is a nickname.
		if _, err := uuid.Parse(p.Target); err == nil {
			targetUserID = p.Target
		} else {
			targetNickname = p.Target
		}
	}

	switch {
	case targetUserID != "":
		if _, err := h.store.NicknameByUserID(ctx, targetUserID); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				h.logger.Error().Err(err).Msg("Target userId lookup failed.")
			}
			return ResolvedTarget{}, false
		}

	case targetNickname != "":
		id, err := h.store.UserIDByNickname(ctx, targetNickname)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				h.logger.Error().Err(err).Msg("Target nickname lookup failed.")
			}
			return ResolvedTarget{}, false
		}
		targetUserID = id

	default:
		return ResolvedTarget{}, false
	}

	if p.ProductID != "" {
		owns, err := h.store.OwnsProduct(ctx, targetUserID, p.ProductID)
		if err != nil {
			h.logger.Error().Err(err).Msg("Product ownership check failed.")
			return ResolvedTarget{}, false
		}
		if !owns {
			return ResolvedTarget{}, false
		}
	}

	return ResolvedTarget{UserID: targetUserID, ProductID: p.ProductID}, true
}
