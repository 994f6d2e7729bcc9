package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/designsync/internal/apperr"
	"github.com/dreamware/designsync/internal/presence"
)

func TestDecodeValid(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Message
	}{
		{"join", `{"type":"join-room","data":{"roomId":"R1"}}`, JoinRoom{RoomID: "R1"}},
		{"leave", `{"type":"leave-room","data":{"roomId":"R1"}}`, LeaveRoom{RoomID: "R1"}},
		{"cursor", `{"type":"cursor-move","data":{"x":1.5,"y":0,"elementId":"btn"}}`, CursorMove{X: 1.5, Y: 0, ElementID: "btn"}},
		{"status", `{"type":"user-status","data":{"status":"idle"}}`, UserStatus{Status: "idle"}},
		{"lock", `{"type":"lock-acquire","data":{"resourceId":"C1"}}`, LockAcquire{ResourceID: "C1"}},
		{"unlock", `{"type":"lock-release","data":{"resourceId":"C1"}}`, LockRelease{ResourceID: "C1"}},
		{"comment", `{"type":"comment-create","data":{"resourceType":"component","resourceId":"C1","content":"hi"}}`,
			CommentCreate{ResourceType: "component", ResourceID: "C1", Content: "hi"}},
		{"reaction", `{"type":"reaction-add","data":{"commentId":"m1","emoji":"👍"}}`, ReactionAdd{CommentID: "m1", Emoji: "👍"}},
		{"typing", `{"type":"typing-start","data":{"resourceId":"C1","resourceType":"comment"}}`, TypingStart{ResourceID: "C1", ResourceType: "comment"}},
		{"typing stop", `{"type":"typing-stop","data":{"resourceId":"C1"}}`, TypingStop{ResourceID: "C1"}},
		{"ping", `{"type":"ping"}`, Ping{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.MessageType(), got.MessageType())
		})
	}
}

func TestDecodeResourceUpdate(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"resource-update","data":{"resourceId":"C1","changes":{"color":"red"}}}`))
	require.NoError(t, err)
	u := msg.(ResourceUpdate)
	assert.Equal(t, ResourceComponent, u.ResourceType, "defaults to component")
	assert.JSONEq(t, `{"color":"red"}`, string(u.Changes))

	msg, err = Decode([]byte(`{"type":"resource-update","data":{"resourceId":"T1","resourceType":"token","changes":[1]}}`))
	require.NoError(t, err)
	assert.Equal(t, ResourceToken, msg.(ResourceUpdate).ResourceType)
}

func TestDecodeSelectionDefaultsToNull(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"selection-change","data":{"resourceId":"C1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "null", string(msg.(SelectionChange).Selection))
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{nope`},
		{"missing type", `{"data":{}}`},
		{"unknown type", `{"type":"drop-tables","data":{}}`},
		{"join without data", `{"type":"join-room"}`},
		{"join empty room", `{"type":"join-room","data":{"roomId":""}}`},
		{"join data wrong shape", `{"type":"join-room","data":[1]}`},
		{"cursor missing y", `{"type":"cursor-move","data":{"x":1}}`},
		{"cursor string x", `{"type":"cursor-move","data":{"x":"1","y":2}}`},
		{"status empty", `{"type":"user-status","data":{}}`},
		{"lock without resource", `{"type":"lock-acquire","data":{}}`},
		{"update bad type", `{"type":"resource-update","data":{"resourceId":"C1","resourceType":"page","changes":{}}}`},
		{"update null changes", `{"type":"resource-update","data":{"resourceId":"C1","changes":null}}`},
		{"update missing changes", `{"type":"resource-update","data":{"resourceId":"C1"}}`},
		{"comment empty", `{"type":"comment-create","data":{"resourceType":"component","resourceId":"C1","content":""}}`},
		{"comment no type", `{"type":"comment-create","data":{"resourceId":"C1","content":"x"}}`},
		{"reaction no emoji", `{"type":"reaction-add","data":{"commentId":"m1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
			assert.NotEmpty(t, apperr.Message(err))
		})
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"pong", Pong(), `{"type":"pong","data":{}}`},
		{"lock denied", LockDenied("C1", "alice"), `{"type":"lock-denied","data":{"resourceId":"C1","heldBy":"alice"}}`},
		{"user joined", UserJoined("bob", "R1"), `{"type":"user-joined","data":{"userId":"bob","roomId":"R1"}}`},
		{"empty roster", JoinedRoom("R1", nil), `{"type":"joined-room","data":{"roomId":"R1","roster":[]}}`},
		{"presence", PresenceUpdate("bob", presence.StatusAway), `{"type":"presence-update","data":{"userId":"bob","status":"away"}}`},
		{"cursor", CursorUpdate(Cursor{UserID: "bob", X: 1, Y: 2}), `{"type":"cursor-update","data":{"userId":"bob","x":1,"y":2}}`},
		{"error", Error("invalid", "roomId is required"), `{"type":"error","data":{"code":"invalid","message":"roomId is required"}}`},
		{"typing", TypingStatus("bob", "C1", "", true), `{"type":"typing-status","data":{"resourceId":"C1","userId":"bob","typing":true}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.ev)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(frame))

			var env Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			assert.Equal(t, tt.ev.Type, env.Type)
		})
	}
}
