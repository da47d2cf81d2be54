package authz

import (
	"context"
	"log/slog"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state"
)

// MembershipLookup is the slice of the persistence adapter the authorizer
// consults for resource-scoped room joins.
type MembershipLookup interface {
	ResourceMembership(ctx context.Context, kind, resourceID, userID string) (bool, error)
}

// Decision is an allow/deny plus an optional reason for the denial reply.
type Decision struct {
	Allow  bool
	Reason string
}

func allow() Decision             { return Decision{Allow: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Authorizer is a pure decision layer: it holds no mutable state of its own
// and answers from the registry's bindings and the adapter's lookups.
type Authorizer struct {
	store  MembershipLookup
	logger *slog.Logger
}

func New(store MembershipLookup, logger *slog.Logger) *Authorizer {
	return &Authorizer{
		store:  store,
		logger: logger.With(slog.String("component", "authorizer")),
	}
}

// CanJoinRoom decides whether a bound user may enter a room. Resource-scoped
// rooms require membership of the resource; a user room only admits its own
// user.
func (a *Authorizer) CanJoinRoom(ctx context.Context, userID, roomName string) Decision {
	kind, resourceID, ok := state.SplitRoom(roomName)
	if !ok {
		return deny("malformed room name")
	}

	switch kind {
	case state.RoomKindUser:
		if resourceID != userID {
			return deny("not your user room")
		}
		return allow()
	case state.RoomKindEvent, state.RoomKindClub, state.RoomKindCrisis:
		member, err := a.store.ResourceMembership(ctx, kind, resourceID, userID)
		if err != nil {
			a.logger.Warn("Membership lookup failed, denying join",
				slog.String("room", roomName),
				slog.String("userID", userID),
				slog.Any("error", err),
			)
			return deny("membership check unavailable")
		}
		if !member {
			return deny("not a member")
		}
		return allow()
	default:
		return deny("unknown room kind")
	}
}

// CanSignal decides whether a sender may relay call signaling for a call
// between the two given parties.
func (a *Authorizer) CanSignal(callerID, calleeID, senderID string) Decision {
	if senderID == callerID || senderID == calleeID {
		return allow()
	}
	return deny("not a call party")
}
