package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingSink struct{}

func (failingSink) Send(context.Context, *Event) error { return fmt.Errorf("broker down") }

func TestPublishFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	p := NewPublisher(zap.NewNop(), a, failingSink{}, b)

	userID := uuid.New()
	require.NoError(t, p.Publish(context.Background(), &Event{Type: OrderCompleted, UserID: &userID, Reference: "TXN1"}))

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
	e := a.Events()[0]
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, userID.String(), e.Key())
}

func TestPublishFailsWhenAllSinksFail(t *testing.T) {
	p := NewPublisher(zap.NewNop(), failingSink{}, failingSink{})
	assert.Error(t, p.Publish(context.Background(), &Event{Type: PricePublished}))
	assert.Error(t, p.Publish(context.Background(), nil))
}

func TestEmitOnNilPublisher(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() {
		p.Emit(context.Background(), PricePublished, nil, "ref", nil)
	})
	assert.NoError(t, p.Close())
}

func TestEventKeyFallsBackToReference(t *testing.T) {
	e := &Event{Type: PricePublished, Reference: "price-1"}
	assert.Equal(t, "price-1", e.Key())
}
