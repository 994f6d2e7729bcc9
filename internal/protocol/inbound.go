package protocol

import (
	"bytes"
	"encoding/json"
	"math"
	"unicode/utf8"

	"github.com/dreamware/designsync/internal/apperr"
)

// Inbound message types.
const (
	TypeJoinRoom        = "join-room"
	TypeLeaveRoom       = "leave-room"
	TypeCursorMove      = "cursor-move"
	TypeSelectionChange = "selection-change"
	TypeUserStatus      = "user-status"
	TypeLockAcquire     = "lock-acquire"
	TypeLockRelease     = "lock-release"
	TypeResourceUpdate  = "resource-update"
	TypeCommentCreate   = "comment-create"
	TypeReactionAdd     = "reaction-add"
	TypeTypingStart     = "typing-start"
	TypeTypingStop      = "typing-stop"
	TypePing            = "ping"
)

// Resource types that can be edited and locked.
const (
	ResourceComponent = "component"
	ResourceToken     = "token"
)

// Field limits.
const (
	MaxIDLength      = 128
	MaxCommentLength = 10000
	MaxEmojiLength   = 32
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is one decoded inbound message. The concrete types below form a
// closed set; the relay switches on them.
type Message interface {
	MessageType() string
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

type CursorMove struct {
	ElementID string  `json:"elementId,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// SelectionChange carries an opaque client-defined selection.
type SelectionChange struct {
	ResourceID string          `json:"resourceId"`
	Selection  json.RawMessage `json:"selection"`
}

type UserStatus struct {
	Status string `json:"status"`
}

type LockAcquire struct {
	ResourceID string `json:"resourceId"`
}

type LockRelease struct {
	ResourceID string `json:"resourceId"`
}

// ResourceUpdate carries an opaque change set for a component or token.
type ResourceUpdate struct {
	ResourceID   string          `json:"resourceId"`
	ResourceType string          `json:"resourceType"`
	Changes      json.RawMessage `json:"changes"`
}

type CommentCreate struct {
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	Content      string `json:"content"`
	ParentID     string `json:"parentId,omitempty"`
}

type ReactionAdd struct {
	CommentID string `json:"commentId"`
	Emoji     string `json:"emoji"`
}

type TypingStart struct {
	ResourceID   string `json:"resourceId"`
	ResourceType string `json:"resourceType,omitempty"`
}

type TypingStop struct {
	ResourceID   string `json:"resourceId"`
	ResourceType string `json:"resourceType,omitempty"`
}

type Ping struct{}

func (JoinRoom) MessageType() string        { return TypeJoinRoom }
func (LeaveRoom) MessageType() string       { return TypeLeaveRoom }
func (CursorMove) MessageType() string      { return TypeCursorMove }
func (SelectionChange) MessageType() string { return TypeSelectionChange }
func (UserStatus) MessageType() string      { return TypeUserStatus }
func (LockAcquire) MessageType() string     { return TypeLockAcquire }
func (LockRelease) MessageType() string     { return TypeLockRelease }
func (ResourceUpdate) MessageType() string  { return TypeResourceUpdate }
func (CommentCreate) MessageType() string   { return TypeCommentCreate }
func (ReactionAdd) MessageType() string     { return TypeReactionAdd }
func (TypingStart) MessageType() string     { return TypeTypingStart }
func (TypingStop) MessageType() string      { return TypeTypingStop }
func (Ping) MessageType() string            { return TypePing }

// Decode parses one text frame into its typed message and validates it.
// Malformed frames, unknown types and invalid payloads all return a
// validation error.
func Decode(frame []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, apperr.Validation("decode", "malformed frame")
	}
	if env.Type == "" {
		return nil, apperr.Validation("decode", "message type is required")
	}

	decode, ok := decoders[env.Type]
	if !ok {
		return nil, apperr.Validation("decode", "unknown message type "+truncate(env.Type))
	}
	return decode(env.Data)
}

var decoders = map[string]func(json.RawMessage) (Message, error){
	TypeJoinRoom: func(data json.RawMessage) (Message, error) {
		var m JoinRoom
		if err := unmarshal(TypeJoinRoom, data, &m); err != nil {
			return nil, err
		}
		return m, requireID(TypeJoinRoom, "roomId", m.RoomID)
	},
	TypeLeaveRoom: func(data json.RawMessage) (Message, error) {
		var m LeaveRoom
		if err := unmarshal(TypeLeaveRoom, data, &m); err != nil {
			return nil, err
		}
		return m, requireID(TypeLeaveRoom, "roomId", m.RoomID)
	},
	TypeCursorMove: func(data json.RawMessage) (Message, error) {
		var raw struct {
			X         *float64 `json:"x"`
			Y         *float64 `json:"y"`
			ElementID string   `json:"elementId"`
		}
		if err := unmarshal(TypeCursorMove, data, &raw); err != nil {
			return nil, err
		}
		if raw.X == nil || raw.Y == nil || !finite(*raw.X) || !finite(*raw.Y) {
			return nil, apperr.Validation(TypeCursorMove, "x and y are required numbers")
		}
		if len(raw.ElementID) > MaxIDLength {
			return nil, apperr.Validation(TypeCursorMove, "elementId is too long")
		}
		return CursorMove{X: *raw.X, Y: *raw.Y, ElementID: raw.ElementID}, nil
	},
	TypeSelectionChange: func(data json.RawMessage) (Message, error) {
		var m SelectionChange
		if err := unmarshal(TypeSelectionChange, data, &m); err != nil {
			return nil, err
		}
		if len(m.Selection) == 0 {
			m.Selection = json.RawMessage("null")
		}
		return m, requireID(TypeSelectionChange, "resourceId", m.ResourceID)
	},
	TypeUserStatus: func(data json.RawMessage) (Message, error) {
		var m UserStatus
		if err := unmarshal(TypeUserStatus, data, &m); err != nil {
			return nil, err
		}
		if m.Status == "" {
			return nil, apperr.Validation(TypeUserStatus, "status is required")
		}
		return m, nil
	},
	TypeLockAcquire: func(data json.RawMessage) (Message, error) {
		var m LockAcquire
		if err := unmarshal(TypeLockAcquire, data, &m); err != nil {
			return nil, err
		}
		return m, requireID(TypeLockAcquire, "resourceId", m.ResourceID)
	},
	TypeLockRelease: func(data json.RawMessage) (Message, error) {
		var m LockRelease
		if err := unmarshal(TypeLockRelease, data, &m); err != nil {
			return nil, err
		}
		return m, requireID(TypeLockRelease, "resourceId", m.ResourceID)
	},
	TypeResourceUpdate: func(data json.RawMessage) (Message, error) {
		var m ResourceUpdate
		if err := unmarshal(TypeResourceUpdate, data, &m); err != nil {
			return nil, err
		}
		if err := requireID(TypeResourceUpdate, "resourceId", m.ResourceID); err != nil {
			return nil, err
		}
		if m.ResourceType == "" {
			m.ResourceType = ResourceComponent
		}
		if !editable(m.ResourceType) {
			return nil, apperr.Validation(TypeResourceUpdate, "resourceType must be component or token")
		}
		if len(bytes.TrimSpace(m.Changes)) == 0 || bytes.Equal(bytes.TrimSpace(m.Changes), []byte("null")) {
			return nil, apperr.Validation(TypeResourceUpdate, "changes are required")
		}
		return m, nil
	},
	TypeCommentCreate: func(data json.RawMessage) (Message, error) {
		var m CommentCreate
		if err := unmarshal(TypeCommentCreate, data, &m); err != nil {
			return nil, err
		}
		if err := requireID(TypeCommentCreate, "resourceId", m.ResourceID); err != nil {
			return nil, err
		}
		if m.ResourceType == "" {
			return nil, apperr.Validation(TypeCommentCreate, "resourceType is required")
		}
		if m.Content == "" {
			return nil, apperr.Validation(TypeCommentCreate, "content is required")
		}
		if utf8.RuneCountInString(m.Content) > MaxCommentLength {
			return nil, apperr.Validation(TypeCommentCreate, "content is too long")
		}
		if len(m.ParentID) > MaxIDLength {
			return nil, apperr.Validation(TypeCommentCreate, "parentId is too long")
		}
		return m, nil
	},
	TypeReactionAdd: func(data json.RawMessage) (Message, error) {
		var m ReactionAdd
		if err := unmarshal(TypeReactionAdd, data, &m); err != nil {
			return nil, err
		}
		if err := requireID(TypeReactionAdd, "commentId", m.CommentID); err != nil {
			return nil, err
		}
		if m.Emoji == "" || utf8.RuneCountInString(m.Emoji) > MaxEmojiLength {
			return nil, apperr.Validation(TypeReactionAdd, "emoji is required")
		}
		return m, nil
	},
	TypeTypingStart: func(data json.RawMessage) (Message, error) {
		var m TypingStart
		if err := unmarshal(TypeTypingStart, data, &m); err != nil {
			return nil, err
		}
		return m, requireID(TypeTypingStart, "resourceId", m.ResourceID)
	},
	TypeTypingStop: func(data json.RawMessage) (Message, error) {
		var m TypingStop
		if err := unmarshal(TypeTypingStop, data, &m); err != nil {
			return nil, err
		}
		return m, requireID(TypeTypingStop, "resourceId", m.ResourceID)
	},
	TypePing: func(json.RawMessage) (Message, error) {
		return Ping{}, nil
	},
}

func unmarshal(op string, data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperr.Validation(op, "data is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Validation(op, "malformed data")
	}
	return nil
}

func requireID(op, field, v string) error {
	if v == "" {
		return apperr.Validation(op, field+" is required")
	}
	if len(v) > MaxIDLength {
		return apperr.Validation(op, field+" is too long")
	}
	return nil
}

func editable(resourceType string) bool {
	return resourceType == ResourceComponent || resourceType == ResourceToken
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func truncate(s string) string {
	if len(s) > 32 {
		s = s[:32]
	}
	return "\"" + s + "\""
}
