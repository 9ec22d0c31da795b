package sendmessage

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/crmflow/pkg/mocks"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSendMessageAction_Execute(t *testing.T) {
	tests := []struct {
		name          string
		params        map[string]any
		data          map[string]any
		wantRecipient string
		wantContent   string
	}{
		{
			name:          "explicit recipient",
			params:        map[string]any{"recipient": "+5511999", "message": "Welcome!"},
			data:          map[string]any{"phone": "+5500000"},
			wantRecipient: "+5511999",
			wantContent:   "Welcome!",
		},
		{
			name:          "phone from data",
			params:        map[string]any{"message": "Hi {{ .name }}"},
			data:          map[string]any{"phone": "+5511888", "contactId": "c-1", "name": "Ana"},
			wantRecipient: "+5511888",
			wantContent:   "Hi Ana",
		},
		{
			name:          "contact id as last resort",
			params:        map[string]any{"content": "Hello"},
			data:          map[string]any{"contactId": "c-7"},
			wantRecipient: "c-7",
			wantContent:   "Hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &mocks.MockMessageGateway{}
			gateway.On("SendMessage", mock.Anything, tt.wantRecipient, tt.wantContent).
				Return(protocol.DeliveryResult{MessageID: "m-1", Status: "queued"}, nil)

			result, err := NewSendMessageAction(gateway).Execute(context.Background(), tt.params,
				&models.ExecutionContext{Data: tt.data}, slog.Default())
			require.NoError(t, err)

			assert.True(t, result.Success)
			assert.True(t, result.ShouldContinue)
			assert.Equal(t, "m-1", result.Data["messageId"])
			assert.Equal(t, tt.wantRecipient, result.Data["recipient"])
			gateway.AssertExpectations(t)
		})
	}
}

func TestSendMessageAction_NoRecipient(t *testing.T) {
	gateway := &mocks.MockMessageGateway{}

	result, err := NewSendMessageAction(gateway).Execute(context.Background(),
		map[string]any{"message": "hi"}, &models.ExecutionContext{Data: map[string]any{}}, slog.Default())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "no recipient", result.Error)
	gateway.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageAction_GatewayError(t *testing.T) {
	gateway := &mocks.MockMessageGateway{}
	gateway.On("SendMessage", mock.Anything, "+55", "hi").Return(protocol.DeliveryResult{}, errors.New("rate limited"))

	_, err := NewSendMessageAction(gateway).Execute(context.Background(),
		map[string]any{"recipient": "+55", "message": "hi"}, &models.ExecutionContext{}, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
