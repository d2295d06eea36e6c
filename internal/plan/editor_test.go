package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditorEmitsFullPlanOnEveryChange(t *testing.T) {
	var emitted []Plan
	e := NewEditor(samplePlan(), func(p Plan) { emitted = append(emitted, p) })

	e.ToggleChannel(ChannelWhatsApp, true)
	e.AddOffset(UnitHours, 2)
	e.RemoveOffset(0)

	require.Len(t, emitted, 3)
	assert.Equal(t, []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp}, emitted[0].Channels)
	assert.Len(t, emitted[1].Schedule, 2)
	assert.Equal(t, []Offset{{Unit: UnitHours, Amount: 2}}, emitted[2].Schedule)
	assert.Equal(t, emitted[2], e.Plan())
}

func TestEditorCallbackOwnsItsCopy(t *testing.T) {
	var got Plan
	e := NewEditor(samplePlan(), func(p Plan) { got = p })

	e.AddOffset(UnitMinutes, 10)
	got.Schedule[0].Amount = 99
	got.Channels[0] = ChannelPush

	assert.Equal(t, 1, e.Plan().Schedule[0].Amount)
	assert.Equal(t, ChannelEmail, e.Plan().Channels[0])
}

func TestEditorRemoveOutOfRangePanics(t *testing.T) {
	e := NewEditor(Plan{}, nil)
	assert.Panics(t, func() { e.RemoveOffset(0) })
}

func TestEditorSubmit(t *testing.T) {
	e := NewEditor(Default(), nil)
	e.ToggleChannel(ChannelPush, true)

	var submitted Plan
	err := e.Submit(context.Background(), SubmitterFunc(func(_ context.Context, p Plan) error {
		submitted = p
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, e.Plan(), submitted)

	boom := errors.New("store unavailable")
	err = e.Submit(context.Background(), SubmitterFunc(func(context.Context, Plan) error { return boom }))
	assert.ErrorIs(t, err, boom)
}
