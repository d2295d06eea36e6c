package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-reminders/internal/config"
	"ms-reminders/internal/models"
	"ms-reminders/internal/plan"
)

type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) SyncReminders(ctx context.Context, appt *models.Appointment, previous plan.Plan) error {
	return m.Called(appt, previous).Error(0)
}

func (m *MockScheduler) CancelReminders(ctx context.Context, appointmentID string, scheduleLen int) {
	m.Called(appointmentID, scheduleLen)
}

const updateEvent = `{
  "payload": {
    "before": {"id": "appt-1", "status": "scheduled", "starts_at": 1780149600000000,
               "reminder_plan": "{\"channels\":[\"email\"],\"schedule\":[{\"type\":\"days\",\"value\":1,\"sent\":false},{\"type\":\"hours\",\"value\":2,\"sent\":false}]}"},
    "after":  {"id": "appt-1", "status": "confirmed", "starts_at": 1780149600000000,
               "reminder_plan": "{\"channels\":[\"email\",\"sms\"],\"schedule\":[{\"type\":\"days\",\"value\":1,\"sent\":false}]}"},
    "op": "u",
    "ts_ms": 1780000000000
  }
}`

func TestProcessAppointmentChange_UpdateSyncsWithPreviousPlan(t *testing.T) {
	scheduler := new(MockScheduler)
	c := &AppointmentConsumer{Scheduler: scheduler}

	scheduler.On("SyncReminders", mock.MatchedBy(func(a *models.Appointment) bool {
		return a.ID == "appt-1" &&
			a.Status == models.AppointmentStatusConfirmed &&
			a.StartsAt.Equal(time.UnixMicro(1780149600000000)) &&
			len(a.ReminderPlan.Schedule) == 1 &&
			a.ReminderPlan.HasChannel(plan.ChannelSMS)
	}), mock.MatchedBy(func(p plan.Plan) bool {
		return len(p.Schedule) == 2
	})).Return(nil)

	require.NoError(t, c.processAppointmentChange(context.Background(), []byte(updateEvent)))
	scheduler.AssertExpectations(t)
}

func TestProcessAppointmentChange_DeleteCancelsPreviousSchedules(t *testing.T) {
	scheduler := new(MockScheduler)
	c := &AppointmentConsumer{Scheduler: scheduler}

	scheduler.On("CancelReminders", "appt-1", 2).Return()

	event := `{"payload":{"before":{"id":"appt-1","status":"scheduled","reminder_plan":"{\"channels\":[],\"schedule\":[{\"type\":\"days\",\"value\":1},{\"type\":\"hours\",\"value\":2}]}"},"after":null,"op":"d"}}`
	require.NoError(t, c.processAppointmentChange(context.Background(), []byte(event)))
	scheduler.AssertExpectations(t)
}

func TestProcessAppointmentChange_RejectsBadInput(t *testing.T) {
	scheduler := new(MockScheduler)
	c := &AppointmentConsumer{Scheduler: scheduler}

	assert.Error(t, c.processAppointmentChange(context.Background(), []byte(`{`)))
	assert.Error(t, c.processAppointmentChange(context.Background(),
		[]byte(`{"payload":{"after":{"id":"appt-1","status":"archived"},"op":"c"}}`)))
	assert.NoError(t, c.processAppointmentChange(context.Background(), []byte(`{"payload":{"op":"c"}}`)))

	scheduler.AssertNotCalled(t, "SyncReminders", mock.Anything, mock.Anything)
}

type MockReader struct {
	mock.Mock
}

func (m *MockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	args := m.Called()
	return args.Get(0).(kafka.Message), args.Error(1)
}

func (m *MockReader) Close() error {
	return m.Called().Error(0)
}

func TestConsumeMessages_HandsValuesToHandlerUntilCancelled(t *testing.T) {
	reader := new(MockReader)
	c := &BaseConsumer{Reader: reader, Topic: "appointments"}
	ctx, cancel := context.WithCancel(context.Background())

	reader.On("ReadMessage").Return(kafka.Message{Topic: "appointments", Value: []byte("one")}, nil).Once()
	reader.On("ReadMessage").Return(kafka.Message{Topic: "appointments", Value: []byte("two")}, nil).Once()

	var got []string
	c.ConsumeMessages(ctx, func(_ context.Context, v []byte) error {
		got = append(got, string(v))
		if len(got) == 2 {
			cancel()
		}
		return nil
	})

	assert.Equal(t, []string{"one", "two"}, got)
}

func TestNewBaseConsumerWithoutTopicIsDisabled(t *testing.T) {
	c := NewAppointmentConsumer(config.Config{}, new(MockScheduler))
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Close())
}
