package protocol

import (
	"encoding/json"
	"time"

	"github.com/dreamware/designsync/internal/presence"
)

// Outbound event types.
const (
	TypeJoinedRoom      = "joined-room"
	TypeLeftRoom        = "left-room"
	TypeCursorSnapshot  = "cursor-snapshot"
	TypeUserJoined      = "user-joined"
	TypeUserLeft        = "user-left"
	TypePresenceUpdate  = "presence-update"
	TypeCursorUpdate    = "cursor-update"
	TypeSelectionUpdate = "selection-update"
	TypeLockGranted     = "lock-granted"
	TypeLockDenied      = "lock-denied"
	TypeLockReleased    = "lock-released"
	TypeResourceChanged = "resource-changed"
	TypeCommentAdded    = "comment-added"
	TypeReactionAdded   = "reaction-added"
	TypeTypingStatus    = "typing-status"
	TypeError           = "error"
	TypePong            = "pong"
)

// Event is one outbound frame.
type Event struct {
	Data any    `json:"data"`
	Type string `json:"type"`
}

// Encode serializes the event as a JSON text frame.
func Encode(ev Event) ([]byte, error) {
	if ev.Data == nil {
		ev.Data = struct{}{}
	}
	return json.Marshal(ev)
}

// Cursor is a user's last pointer position in a room.
type Cursor struct {
	UserID    string  `json:"userId"`
	ElementID string  `json:"elementId,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// Comment is the payload of comment-added.
type Comment struct {
	CreatedAt    time.Time `json:"createdAt"`
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	RoomID       string    `json:"roomId"`
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	Content      string    `json:"content"`
	ParentID     string    `json:"parentId,omitempty"`
}

type JoinedRoomData struct {
	RoomID string           `json:"roomId"`
	Roster []presence.Entry `json:"roster"`
}

type RoomData struct {
	RoomID string `json:"roomId"`
}

type UserRoomData struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type CursorSnapshotData struct {
	Cursors []Cursor `json:"cursors"`
}

type PresenceData struct {
	UserID string          `json:"userId"`
	Status presence.Status `json:"status"`
}

type SelectionData struct {
	UserID     string          `json:"userId"`
	ResourceID string          `json:"resourceId"`
	Selection  json.RawMessage `json:"selection"`
}

type LockGrantedData struct {
	ResourceID string `json:"resourceId"`
	UserID     string `json:"userId"`
}

type LockDeniedData struct {
	ResourceID string `json:"resourceId"`
	HeldBy     string `json:"heldBy"`
}

type LockReleasedData struct {
	ResourceID string `json:"resourceId"`
}

type ResourceChangedData struct {
	ResourceID   string          `json:"resourceId"`
	ResourceType string          `json:"resourceType"`
	UserID       string          `json:"userId"`
	Changes      json.RawMessage `json:"changes"`
}

type CommentAddedData struct {
	Comment Comment `json:"comment"`
}

type ReactionAddedData struct {
	CommentID string `json:"commentId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId"`
}

type TypingData struct {
	ResourceID   string `json:"resourceId"`
	ResourceType string `json:"resourceType,omitempty"`
	UserID       string `json:"userId"`
	Typing       bool   `json:"typing"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func JoinedRoom(roomID string, roster []presence.Entry) Event {
	if roster == nil {
		roster = []presence.Entry{}
	}
	return Event{Type: TypeJoinedRoom, Data: JoinedRoomData{RoomID: roomID, Roster: roster}}
}

func LeftRoom(roomID string) Event {
	return Event{Type: TypeLeftRoom, Data: RoomData{RoomID: roomID}}
}

func CursorSnapshot(cursors []Cursor) Event {
	return Event{Type: TypeCursorSnapshot, Data: CursorSnapshotData{Cursors: cursors}}
}

func UserJoined(userID, roomID string) Event {
	return Event{Type: TypeUserJoined, Data: UserRoomData{UserID: userID, RoomID: roomID}}
}

func UserLeft(userID, roomID string) Event {
	return Event{Type: TypeUserLeft, Data: UserRoomData{UserID: userID, RoomID: roomID}}
}

func PresenceUpdate(userID string, status presence.Status) Event {
	return Event{Type: TypePresenceUpdate, Data: PresenceData{UserID: userID, Status: status}}
}

func CursorUpdate(c Cursor) Event {
	return Event{Type: TypeCursorUpdate, Data: c}
}

func SelectionUpdate(userID, resourceID string, selection json.RawMessage) Event {
	return Event{Type: TypeSelectionUpdate, Data: SelectionData{UserID: userID, ResourceID: resourceID, Selection: selection}}
}

func LockGranted(resourceID, userID string) Event {
	return Event{Type: TypeLockGranted, Data: LockGrantedData{ResourceID: resourceID, UserID: userID}}
}

func LockDenied(resourceID, heldBy string) Event {
	return Event{Type: TypeLockDenied, Data: LockDeniedData{ResourceID: resourceID, HeldBy: heldBy}}
}

func LockReleased(resourceID string) Event {
	return Event{Type: TypeLockReleased, Data: LockReleasedData{ResourceID: resourceID}}
}

func ResourceChanged(userID string, u ResourceUpdate) Event {
	return Event{Type: TypeResourceChanged, Data: ResourceChangedData{
		ResourceID:   u.ResourceID,
		ResourceType: u.ResourceType,
		UserID:       userID,
		Changes:      u.Changes,
	}}
}

func CommentAdded(c Comment) Event {
	return Event{Type: TypeCommentAdded, Data: CommentAddedData{Comment: c}}
}

func ReactionAdded(userID string, r ReactionAdd) Event {
	return Event{Type: TypeReactionAdded, Data: ReactionAddedData{CommentID: r.CommentID, Emoji: r.Emoji, UserID: userID}}
}

func TypingStatus(userID, resourceID, resourceType string, typing bool) Event {
	return Event{Type: TypeTypingStatus, Data: TypingData{
		ResourceID:   resourceID,
		ResourceType: resourceType,
		UserID:       userID,
		Typing:       typing,
	}}
}

// Error builds an error reply from a reply code and a client-safe message.
func Error(code, message string) Event {
	return Event{Type: TypeError, Data: ErrorData{Code: code, Message: message}}
}

func Pong() Event {
	return Event{Type: TypePong}
}
