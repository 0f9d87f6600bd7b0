package cache

import (
	"fmt"
	"strings"
)

// Key semantics:
// - membersKey(roomID): Hash<participantId -> participant JSON>
// - aliveKey(roomID):   ZSet<participantId, score = expireAt in ms>
// - roomChannel(roomID): pub/sub channel carrying relay envelopes for the room
// - roomSnapshotKey(roomID): String<room JSON or missingRoomMarker>
//
// The {roomID} hash tag keeps both presence keys of a room on one cluster slot,
// which the Lua scripts and WATCH need.

const (
	keyMembersFmt    = "presence:room:{%s}:members"
	keyAliveFmt      = "presence:room:{%s}:alive"
	roomChannelFmt   = "relay:room:%s"
	roomChannelMatch = "relay:room:*"
	keyRoomFmt       = "room:{%s}:snapshot"
)

func membersKey(roomID string) string      { return fmt.Sprintf(keyMembersFmt, roomID) }
func aliveKey(roomID string) string        { return fmt.Sprintf(keyAliveFmt, roomID) }
func roomChannel(roomID string) string     { return fmt.Sprintf(roomChannelFmt, roomID) }
func roomSnapshotKey(roomID string) string { return fmt.Sprintf(keyRoomFmt, roomID) }

func roomFromChannel(channel string) string {
	roomID, ok := strings.CutPrefix(channel, "relay:room:")
	if !ok {
		return ""
	}
	return roomID
}
