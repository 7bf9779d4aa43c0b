package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	ev := domain.Event{Type: domain.EventBookingCreated, BookingID: uuid.New()}

	failing := new(mockPublisher)
	boom := errors.New("broker down")
	failing.On("Publish", mock.Anything, []domain.Event{ev}).Return(boom)

	rec := &Recorder{}

	err := Multi{failing, rec}.Publish(context.Background(), ev)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, rec.Count(domain.EventBookingCreated))
	failing.AssertExpectations(t)
}

func TestEmitter_SwallowsPublishErrors(t *testing.T) {
	ev := domain.Event{Type: domain.EventBookingPaid, BookingID: uuid.New()}

	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, []domain.Event{ev}).Return(errors.New("timeout"))

	em := NewEmitter(pub, discardLogger(), time.Second)

	assert.NotPanics(t, func() { em.Emit(context.Background(), ev) })
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestEmitter_SurvivesCancelledRequestContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pub := new(mockPublisher)
	pub.On("Publish", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(nil)

	NewEmitter(pub, discardLogger(), time.Second).Emit(ctx, domain.Event{Type: domain.EventBookingCancelled})

	pub.AssertExpectations(t)
}

func TestEmitter_SkipsEmptyBatch(t *testing.T) {
	pub := new(mockPublisher)

	NewEmitter(pub, discardLogger(), 0).Emit(context.Background())

	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}
