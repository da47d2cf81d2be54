package dispatch

import (
	"time"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/state"
	"github.com/google/uuid"
)

// Event names are part of the external protocol; clients match on them
// exactly.
const (
	EventUserStatusChanged = "user:status-changed"

	EventClubCreated         = "club:created"
	EventClubUpdated         = "club:updated"
	EventClubDeleted         = "club:deleted"
	EventClubMemberJoined    = "club:member-joined"
	EventClubMemberLeft      = "club:member-left"
	EventClubRoleUpdated     = "club:role-updated"
	EventClubMuted           = "club:muted"
	EventClubUnmuted         = "club:unmuted"
	EventClubRemoved         = "club:removed"
	EventClubNewDiscussion   = "club:new-discussion"
	EventClubNewComment      = "club:new-comment"
	EventClubDiscussionLiked = "club:discussion-liked"
	EventClubCommentLiked    = "club:comment-liked"
	EventClubDiscussionTag   = "club:discussion-tag"
	EventClubNewFile         = "club:new-file"
	EventClubUserTyping      = "club:user-typing"
	EventClubUserStopTyping  = "club:user-stop-typing"
	EventClubJoinRequest     = "club:join-request"
	EventClubRequestApproved = "club:request-approved"
	EventClubRequestRejected = "club:request-rejected"
	EventClubInvited         = "club:invited"

	EventEventCreated        = "event:created"
	EventEventUpdated        = "event:updated"
	EventEventDeleted        = "event:deleted"
	EventEventRSVP           = "event:rsvp"
	EventEventInvited        = "event:invited"
	EventEventInviteAccepted = "event:invite-accepted"
	EventEventInviteDeclined = "event:invite-declined"
	EventEventCheckin        = "event:checkin"

	EventVideoCreated   = "video:created"
	EventVideoViewed    = "video:viewed"
	EventVideoLiked     = "video:liked"
	EventVideoCommented = "video:commented"
	EventVideoDeleted   = "video:deleted"

	EventPhotoCreated = "photo:created"
	EventPhotoUpdated = "photo:updated"
	EventPhotoDeleted = "photo:deleted"

	EventCrisisAlert         = "crisis_alert"
	EventNewCrisisAlert      = "new_crisis_alert"
	EventCrisisHelpOffered   = "crisis_help_offered"
	EventCrisisSafetyCheck   = "crisis_safety_check"
	EventCrisisUpdate        = "crisis_update"
	EventCrisisResolved      = "crisis_resolved"
	EventCrisisResourceAdded = "crisis_resource_added"
	EventCrisisEmergency     = "crisis:emergency"
	EventCrisisViewer        = "crisis:viewer"
	EventCrisisNewUpdate     = "crisis:new-update"

	EventNotificationNew         = "notification:new"
	EventNotificationUnreadCount = "notification:unread-count"

	EventMemoryResponse = "memory:response"
	EventMemoryViewed   = "memory:viewed"
	EventMemoryShared   = "memory:shared"
	EventMemoryError    = "memory:error"
)

// StatusPayload is the body of user:status-changed.
type StatusPayload struct {
	UserID     string    `json:"userId"`
	Online     bool      `json:"online"`
	LastActive time.Time `json:"lastActive"`
}

// UserStatusChanged broadcasts a presence transition to all connections.
func (d *Dispatcher) UserStatusChanged(userID string, online bool, lastActive time.Time) {
	d.Broadcast(EventUserStatusChanged, StatusPayload{
		UserID:     userID,
		Online:     online,
		LastActive: lastActive,
	})
}

// NotificationNew delivers a new notification plus the refreshed unread
// count. Keeping both emits in one helper is what makes the count refresh
// mandatory on every counted change.
func (d *Dispatcher) NotificationNew(userID string, notification any, unreadCount int) {
	d.ToUser(userID, EventNotificationNew, notification)
	d.ToUser(userID, EventNotificationUnreadCount, map[string]int{"count": unreadCount})
}

// The family helpers below bake the audience into the emit, so callers (the
// router and the HTTP side's projection hooks) can't pair an event with the
// wrong room.

// TypingPayload is the body of the club typing indicators.
type TypingPayload struct {
	ClubID   string `json:"clubId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// CrisisPayload is the shared body of the crisis room events.
type CrisisPayload struct {
	CrisisID  string `json:"crisisId"`
	UserID    string `json:"userId,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ClubActivity delivers a club:* event to everyone subscribed to the club.
func (d *Dispatcher) ClubActivity(clubID, event string, payload any) {
	d.ToRoom(state.ClubRoom(clubID), event, payload)
}

// ClubTyping tells the club room someone started typing. The origin device
// already knows and is skipped.
func (d *Dispatcher) ClubTyping(clubID string, origin uuid.UUID, userID, userName string) {
	d.ToRoomExcept(state.ClubRoom(clubID), origin, EventClubUserTyping, TypingPayload{
		ClubID:   clubID,
		UserID:   userID,
		UserName: userName,
	})
}

func (d *Dispatcher) ClubStopTyping(clubID string, origin uuid.UUID, userID string) {
	d.ToRoomExcept(state.ClubRoom(clubID), origin, EventClubUserStopTyping, TypingPayload{
		ClubID: clubID,
		UserID: userID,
	})
}

// EventActivity delivers an event:* update to the event's subscribers.
func (d *Dispatcher) EventActivity(eventID, event string, payload any) {
	d.ToRoom(state.EventRoom(eventID), event, payload)
}

// MediaActivity fans a video:* or photo:* event out to the creator's
// followers. The caller resolves the follower list; the audience for media
// events is always per-user rooms, never a shared room.
func (d *Dispatcher) MediaActivity(followerIDs []string, event string, payload any) {
	d.FanOutUsers(followerIDs, event, payload)
}

// CrisisActivity delivers a crisis lifecycle event to the crisis watchers.
func (d *Dispatcher) CrisisActivity(crisisID, event string, payload any) {
	d.ToRoom(state.CrisisRoom(crisisID), event, payload)
}

// CrisisUpdate publishes a status update to everyone watching the crisis,
// the author's devices included.
func (d *Dispatcher) CrisisUpdate(crisisID string, payload CrisisPayload) {
	d.ToRoom(state.CrisisRoom(crisisID), EventCrisisNewUpdate, payload)
}

// CrisisViewerPing tells the other watchers someone opened the crisis view.
func (d *Dispatcher) CrisisViewerPing(crisisID string, origin uuid.UUID, userID string) {
	d.ToRoomExcept(state.CrisisRoom(crisisID), origin, EventCrisisViewer, CrisisPayload{
		CrisisID: crisisID,
		UserID:   userID,
	})
}

// CrisisEmergency publishes the emergency to the crisis room and alerts the
// sender's friends in their user rooms, with one body for both audiences.
func (d *Dispatcher) CrisisEmergency(crisisID string, friendIDs []string, payload CrisisPayload) {
	d.ToRoom(state.CrisisRoom(crisisID), EventCrisisEmergency, payload)
	d.FanOutUsers(friendIDs, EventCrisisAlert, payload)
}
