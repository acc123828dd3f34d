package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
)

func TestPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, newSaramaConfig(Config{}))
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event models.ChatEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.Type != models.EventMessageSent || event.CustomerID != "c1" {
			return errors.New("unexpected event")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p, err := newPublisher(producer, "chat-events")
	require.NoError(t, err)

	err = p.Publish(context.Background(), models.ChatEvent{Type: models.EventMessageSent, CustomerID: "c1", MessageID: "m1"})
	require.NoError(t, err)

	err = p.Publish(context.Background(), models.ChatEvent{Type: models.EventAgentStatus, AgentID: "a1"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.NoError(t, p.Close())
}

func TestNewPublisher_Disabled(t *testing.T) {
	p, err := NewPublisher(Config{})
	require.NoError(t, err)
	assert.NoError(t, p.Publish(context.Background(), models.ChatEvent{Type: models.EventAgentStatus}))
	assert.NoError(t, p.Close())

	_, err = NewPublisher(Config{Enabled: true})
	assert.Error(t, err)
}

func TestChatEvent_Key(t *testing.T) {
	assert.Equal(t, "c1", models.ChatEvent{CustomerID: "c1", AgentID: "a1"}.Key())
	assert.Equal(t, "a1", models.ChatEvent{AgentID: "a1"}.Key())
}
