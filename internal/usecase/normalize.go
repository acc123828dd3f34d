package usecase

import (
	"sort"

	"github.com/cstockton/go-conv"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
)

// NormalizeMessage converts a stored record into a ChatMessage. It never
// fails: records that are not objects yield a message with empty fields.
func NormalizeMessage(id string, raw any, customerID string) models.ChatMessage {
	rec, _ := raw.(map[string]any)
	msg := models.ChatMessage{
		ID:         id,
		SenderID:   stringField(rec, models.FieldSenderID),
		SenderName: stringField(rec, models.FieldSenderName),
		Timestamp:  int64Field(rec, models.FieldTimestamp),
		Read:       boolField(rec, models.FieldRead),
	}

	msg.Message = stringField(rec, models.FieldMessage)
	if msg.Message == "" {
		msg.Message = stringField(rec, models.FieldMessageText)
	}

	if role, ok := models.ParseSenderRole(rec[models.FieldSenderRole]); ok {
		msg.SenderRole = role
	} else {
		msg.SenderRole = InferRole(rec, customerID)
	}
	return msg
}

// InferRole attributes a record without a valid stored role: the customer's
// own messages are customer authored, everything else came from an admin.
func InferRole(rec map[string]any, customerID string) models.SenderRole {
	if customerID != "" && stringField(rec, models.FieldSenderID) == customerID {
		return models.SenderRoleCustomer
	}
	return models.SenderRoleAdmin
}

func stringField(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case int64, int, float64:
		s, _ := conv.String(v)
		return s
	}
	return ""
}

func int64Field(rec map[string]any, key string) int64 {
	return toInt64(rec[key])
}

// toInt64 coerces numbers and numeric strings; anything else is 0.
func toInt64(v any) int64 {
	switch v.(type) {
	case nil, bool, map[string]any, []any:
		return 0
	}
	n, err := conv.Int64(v)
	if err != nil {
		return 0
	}
	return n
}

func boolField(rec map[string]any, key string) bool {
	switch v := rec[key].(type) {
	case bool:
		return v
	case string:
		b, err := conv.Bool(v)
		return err == nil && b
	}
	return false
}

func sortMessages(msgs []models.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})
}
