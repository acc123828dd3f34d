package usecase

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/realtime"
)

// Shape is the storage layout a customer's messages were found in.
type Shape int

const (
	// ShapeRoomNested keeps messages under chatRooms/{customerId}/messages.
	ShapeRoomNested Shape = iota + 1
	// ShapeCustomerNested keeps messages under messages/{customerId}.
	ShapeCustomerNested
	// ShapeFlatFiltered keeps every message directly under messages.
	ShapeFlatFiltered
)

func (s Shape) String() string {
	switch s {
	case ShapeRoomNested:
		return "room_nested"
	case ShapeCustomerNested:
		return "customer_nested"
	case ShapeFlatFiltered:
		return "flat_filtered"
	}
	return "unknown"
}

// ShapeBinding is a detected shape bound to one customer.
type ShapeBinding struct {
	Shape      Shape
	CustomerID string
	Path       string
}

func bindShape(shape Shape, customerID string) ShapeBinding {
	b := ShapeBinding{Shape: shape, CustomerID: customerID}
	switch shape {
	case ShapeRoomNested:
		b.Path = roomMessagesPath(customerID)
	case ShapeCustomerNested:
		b.Path = customerMessagesPath(customerID)
	default:
		b.Path = rootMessages
	}
	return b
}

// Matches reports whether a flat record belongs to the bound customer.
func (b ShapeBinding) Matches(raw any) bool {
	rec, ok := raw.(map[string]any)
	if !ok {
		return false
	}
	for _, f := range []string{models.FieldSenderID, models.FieldReceiverID, models.FieldCustomerID} {
		if v := stringField(rec, f); v != "" && v == b.CustomerID {
			return true
		}
	}
	return false
}

// Messages extracts the customer's normalized messages from a snapshot of
// b.Path, sorted oldest first.
func (b ShapeBinding) Messages(snap realtime.Snapshot) []models.ChatMessage {
	children := snap.Children()
	msgs := make([]models.ChatMessage, 0, len(children))
	for _, child := range children {
		if b.Shape == ShapeFlatFiltered && !b.Matches(child.Value) {
			continue
		}
		msgs = append(msgs, NormalizeMessage(child.Key(), child.Value, b.CustomerID))
	}
	sortMessages(msgs)
	return msgs
}

// DetectShape probes the nested locations once. RoomNested wins over
// CustomerNested; when neither holds data the flat layout is used. Probe
// failures are logged and count as absent.
func (uc *ChatUseCase) DetectShape(ctx context.Context, customerID string) (ShapeBinding, error) {
	return uc.detectShape(ctx, customerID, func(err error) {
		uc.log.Warnw("shape probe failed", "customer_id", customerID, "error", err)
	})
}

func (uc *ChatUseCase) detectShape(ctx context.Context, customerID string, report func(error)) (ShapeBinding, error) {
	if err := realtime.ValidateKey(customerID); err != nil {
		return ShapeBinding{}, fmt.Errorf("%w: customer id: %v", models.ErrInvalidArgument, err)
	}

	var roomNested, customerNested bool
	probe := func(path string, found *bool) func() error {
		return func() error {
			snap, err := uc.channel.Get(ctx, path)
			if err != nil {
				// a canceled detection is reported once by the caller
				if ctx.Err() == nil {
					report(fmt.Errorf("probe %s: %w", path, err))
				}
				return nil
			}
			*found = snap.Exists()
			return nil
		}
	}

	var g errgroup.Group
	g.Go(probe(roomMessagesPath(customerID), &roomNested))
	g.Go(probe(customerMessagesPath(customerID), &customerNested))
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return ShapeBinding{}, fmt.Errorf("detect shape: %w", err)
	}

	shape := ShapeFlatFiltered
	switch {
	case roomNested:
		shape = ShapeRoomNested
	case customerNested:
		shape = ShapeCustomerNested
	}
	uc.metrics.shapes.WithLabelValues(shape.String()).Inc()
	return bindShape(shape, customerID), nil
}
