package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/realtime"
)

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want models.ChatMessage
	}{
		{
			name: "legacy text from the customer",
			raw:  map[string]any{"messageText": "hi", "senderId": "c1"},
			want: models.ChatMessage{ID: "m1", SenderID: "c1", Message: "hi", SenderRole: models.SenderRoleCustomer},
		},
		{
			name: "current field wins over legacy",
			raw:  map[string]any{"message": "new", "messageText": "old", "senderId": "a1", "timestamp": int64(5)},
			want: models.ChatMessage{ID: "m1", SenderID: "a1", Message: "new", SenderRole: models.SenderRoleAdmin, Timestamp: 5},
		},
		{
			name: "no text at all",
			raw:  map[string]any{"senderId": "a1"},
			want: models.ChatMessage{ID: "m1", SenderID: "a1", SenderRole: models.SenderRoleAdmin},
		},
		{
			name: "stored role is kept",
			raw:  map[string]any{"senderId": "c1", "senderRole": "admin", "read": true},
			want: models.ChatMessage{ID: "m1", SenderID: "c1", SenderRole: models.SenderRoleAdmin, Read: true},
		},
		{
			name: "unknown stored role is inferred",
			raw:  map[string]any{"senderId": "c1", "senderRole": "bot"},
			want: models.ChatMessage{ID: "m1", SenderID: "c1", SenderRole: models.SenderRoleCustomer},
		},
		{
			name: "numeric string timestamp",
			raw:  map[string]any{"timestamp": "1700000000000", "senderName": "An"},
			want: models.ChatMessage{ID: "m1", SenderName: "An", SenderRole: models.SenderRoleAdmin, Timestamp: 1_700_000_000_000},
		},
		{
			name: "garbage timestamp",
			raw:  map[string]any{"timestamp": "yesterday"},
			want: models.ChatMessage{ID: "m1", SenderRole: models.SenderRoleAdmin},
		},
		{
			name: "not an object",
			raw:  "hello",
			want: models.ChatMessage{ID: "m1", SenderRole: models.SenderRoleAdmin},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMessage("m1", tt.raw, "c1"))
		})
	}
}

func TestInferRole(t *testing.T) {
	assert.Equal(t, models.SenderRoleCustomer, InferRole(map[string]any{"senderId": "c1"}, "c1"))
	assert.Equal(t, models.SenderRoleAdmin, InferRole(map[string]any{"senderId": "a1"}, "c1"))
	assert.Equal(t, models.SenderRoleAdmin, InferRole(nil, "c1"))
	assert.Equal(t, models.SenderRoleAdmin, InferRole(map[string]any{"senderId": ""}, ""))
}

func TestShapeBinding_Messages(t *testing.T) {
	snap := realtime.Snapshot{Path: "messages", Value: map[string]any{
		"k1": map[string]any{"senderId": "c1", "message": "late", "timestamp": int64(300)},
		"k2": map[string]any{"senderId": "a1", "receiverId": "c1", "message": "early", "timestamp": int64(100)},
		"k3": map[string]any{"senderId": "c2", "message": "other", "timestamp": int64(200)},
		"k4": map[string]any{"customerId": "c1", "senderId": "a2", "message": "mid", "timestamp": int64(200)},
		"c1": map[string]any{"m1": map[string]any{"message": "bucket"}},
	}}

	msgs := bindShape(ShapeFlatFiltered, "c1").Messages(snap)
	var texts []string
	for _, m := range msgs {
		texts = append(texts, m.Message)
	}
	assert.Equal(t, []string{"early", "mid", "late"}, texts)
	assert.Equal(t, models.SenderRoleCustomer, msgs[2].SenderRole)

	nested := realtime.Snapshot{Path: "messages/c1", Value: map[string]any{
		"b": map[string]any{"message": "two", "timestamp": int64(2)},
		"a": map[string]any{"message": "tie", "timestamp": int64(2)},
		"z": map[string]any{"message": "one", "timestamp": int64(1)},
		"x": "broken",
	}}
	msgs = bindShape(ShapeCustomerNested, "c1").Messages(nested)
	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"x", "z", "a", "b"}, ids, "malformed records are kept and sorted by timestamp then id")
}
