package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/mooveit-dispatch/internal/events"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func TestKafkaSinkKeysByTrip(t *testing.T) {
	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		return len(msgs) == 1 &&
			string(msgs[0].Key) == "t1" &&
			string(msgs[0].Headers[0].Value) == "trip.started"
	})).Return(nil).Once()
	w.On("Close").Return(nil)

	sink := &KafkaSink{writer: w}
	require.NoError(t, sink.Handle(context.Background(), events.TripStarted{TripEvent: trip("t1")}))
	require.NoError(t, sink.Close())
	w.AssertExpectations(t)
}

func TestKafkaSinkFailureFailsDelivery(t *testing.T) {
	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("leader not available"))

	sink := &KafkaSink{writer: w}
	err := sink.Handle(context.Background(), events.TripStarted{TripEvent: trip("t1")})
	assert.ErrorContains(t, err, "leader not available")
}
