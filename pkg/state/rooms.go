package state

import "strings"

// Room names are part of the wire protocol; clients subscribe to them by
// these exact shapes.
const (
	RoomKindUser   = "user"
	RoomKindEvent  = "event"
	RoomKindClub   = "club"
	RoomKindCrisis = "crisis"
)

func UserRoom(userID string) string     { return RoomKindUser + ":" + userID }
func EventRoom(eventID string) string   { return RoomKindEvent + ":" + eventID }
func ClubRoom(clubID string) string     { return RoomKindClub + ":" + clubID }
func CrisisRoom(crisisID string) string { return RoomKindCrisis + ":" + crisisID }

// SplitRoom breaks a room name into its kind and resource id.
func SplitRoom(name string) (kind, id string, ok bool) {
	kind, id, ok = strings.Cut(name, ":")
	if !ok || kind == "" || id == "" {
		return "", "", false
	}
	return kind, id, true
}
