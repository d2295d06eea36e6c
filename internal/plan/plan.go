package plan

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Channel is a reminder delivery medium.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelPush     Channel = "push"
)

// Channels lists every channel in display order.
var Channels = []Channel{ChannelSMS, ChannelWhatsApp, ChannelEmail, ChannelPush}

// ParseChannel converts raw input into a Channel
func ParseChannel(s string) (Channel, error) {
	for _, c := range Channels {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown reminder channel %q", s)
}

// Label returns the human readable name shown next to the channel checkbox
func (c Channel) Label() string {
	switch c {
	case ChannelSMS:
		return "SMS"
	case ChannelWhatsApp:
		return "WhatsApp"
	case ChannelEmail:
		return "Email"
	case ChannelPush:
		return "Push Notification"
	}
	return string(c)
}

// Unit is the unit of a reminder offset.
type Unit string

const (
	UnitDays    Unit = "days"
	UnitHours   Unit = "hours"
	UnitMinutes Unit = "minutes"
)

// Units lists every offset unit.
var Units = []Unit{UnitDays, UnitHours, UnitMinutes}

// ParseUnit converts raw input into a Unit
func ParseUnit(s string) (Unit, error) {
	for _, u := range Units {
		if string(u) == s {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown offset unit %q", s)
}

// Duration returns the length of amount units.
func (u Unit) Duration(amount int) time.Duration {
	n := time.Duration(amount)
	switch u {
	case UnitDays:
		return n * 24 * time.Hour
	case UnitHours:
		return n * time.Hour
	case UnitMinutes:
		return n * time.Minute
	}
	return 0
}

// Offset is one schedule entry: how long before the appointment start a
// reminder fires. Sent and SentAt are written by the delivery side only.
type Offset struct {
	Unit   Unit       `json:"type"`
	Amount int        `json:"value"`
	Sent   bool       `json:"sent"`
	SentAt *time.Time `json:"sentAt,omitempty"`
}

// Before returns the offset as a duration.
func (o Offset) Before() time.Duration {
	return o.Unit.Duration(o.Amount)
}

// FireAt returns the instant the reminder should fire for an appointment starting at start.
func (o Offset) FireAt(start time.Time) time.Time {
	return start.Add(-o.Before())
}

// Label renders the offset the way the schedule list shows it.
// Units are not pluralized, so an amount of 1 reads "1 days".
func (o Offset) Label() string {
	return fmt.Sprintf("%d %s before appointment", o.Amount, o.Unit)
}

// Plan is the channel selection and reminder schedule attached to one appointment.
type Plan struct {
	Channels []Channel `json:"channels"`
	Schedule []Offset  `json:"schedule"`
}

// Default returns the plan an appointment starts with when authoring begins.
func Default() Plan {
	return Plan{
		Channels: []Channel{ChannelEmail, ChannelSMS},
		Schedule: []Offset{
			{Unit: UnitDays, Amount: 1},
			{Unit: UnitHours, Amount: 2},
		},
	}
}

// Clone returns a deep copy. Both slices are always non-nil.
func (p Plan) Clone() Plan {
	out := Plan{
		Channels: make([]Channel, len(p.Channels)),
		Schedule: make([]Offset, len(p.Schedule)),
	}
	copy(out.Channels, p.Channels)
	for i, o := range p.Schedule {
		if o.SentAt != nil {
			at := *o.SentAt
			o.SentAt = &at
		}
		out.Schedule[i] = o
	}
	return out
}

// HasChannel reports whether c is selected.
func (p Plan) HasChannel(c Channel) bool {
	for _, existing := range p.Channels {
		if existing == c {
			return true
		}
	}
	return false
}

var (
	ErrDuplicateChannel = errors.New("duplicate reminder channel")
	ErrInvalidAmount    = errors.New("offset amount must be at least 1")
)

// Validate checks a plan received from outside the editor.
func (p Plan) Validate() error {
	seen := make(map[Channel]struct{}, len(p.Channels))
	for _, c := range p.Channels {
		if _, err := ParseChannel(string(c)); err != nil {
			return err
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateChannel, c)
		}
		seen[c] = struct{}{}
	}
	for i, o := range p.Schedule {
		if _, err := ParseUnit(string(o.Unit)); err != nil {
			return fmt.Errorf("schedule[%d]: %w", i, err)
		}
		if o.Amount < 1 {
			return fmt.Errorf("schedule[%d]: %w", i, ErrInvalidAmount)
		}
	}
	return nil
}

// ToggleChannel selects or deselects a channel. Selecting a channel that is
// already present leaves the selection unchanged. The schedule is untouched.
func ToggleChannel(p Plan, c Channel, included bool) Plan {
	next := p.Clone()
	if included {
		if !next.HasChannel(c) {
			next.Channels = append(next.Channels, c)
		}
		return next
	}

	kept := next.Channels[:0]
	for _, existing := range next.Channels {
		if existing != c {
			kept = append(kept, existing)
		}
	}
	next.Channels = kept
	return next
}

// AddOffset appends an unsent offset. amount must already be validated as a
// positive integer; the result for amount < 1 is undefined.
func AddOffset(p Plan, unit Unit, amount int) Plan {
	next := p.Clone()
	next.Schedule = append(next.Schedule, Offset{Unit: unit, Amount: amount})
	return next
}

// RemoveOffset deletes the offset at index. index always comes from
// enumerating the current schedule, so an out-of-range value panics.
func RemoveOffset(p Plan, index int) Plan {
	if index < 0 || index >= len(p.Schedule) {
		panic(fmt.Sprintf("plan: offset index %d out of range [0, %d)", index, len(p.Schedule)))
	}
	next := p.Clone()
	next.Schedule = append(next.Schedule[:index], next.Schedule[index+1:]...)
	return next
}

// MarkSent records delivery of the offset at index.
func MarkSent(p Plan, index int, at time.Time) Plan {
	if index < 0 || index >= len(p.Schedule) {
		panic(fmt.Sprintf("plan: offset index %d out of range [0, %d)", index, len(p.Schedule)))
	}
	next := p.Clone()
	at = at.UTC()
	next.Schedule[index].Sent = true
	next.Schedule[index].SentAt = &at
	return next
}

// CarryDelivery returns next with delivery state taken from stored. An offset
// keeps Sent and SentAt only when stored holds the same unit and amount at the
// same position; every other offset comes back unsent. Any delivery state
// already on next is discarded.
func CarryDelivery(stored, next Plan) Plan {
	out := next.Clone()
	for i := range out.Schedule {
		o := &out.Schedule[i]
		o.Sent, o.SentAt = false, nil
		if i >= len(stored.Schedule) {
			continue
		}
		prev := stored.Schedule[i]
		if prev.Unit == o.Unit && prev.Amount == o.Amount && prev.Sent {
			o.Sent = true
			if prev.SentAt != nil {
				at := *prev.SentAt
				o.SentAt = &at
			}
		}
	}
	return out
}

// NoRemindersLabel is shown for an empty schedule.
const NoRemindersLabel = "No reminders scheduled"

// ScheduleLabels returns one label per offset, or NoRemindersLabel alone
// when nothing is scheduled.
func ScheduleLabels(p Plan) []string {
	if len(p.Schedule) == 0 {
		return []string{NoRemindersLabel}
	}
	labels := make([]string, 0, len(p.Schedule))
	for _, o := range p.Schedule {
		labels = append(labels, o.Label())
	}
	return labels
}

// ChannelsLabel joins the selected channels in display order.
func ChannelsLabel(channels []Channel) string {
	selected := make(map[Channel]bool, len(channels))
	for _, c := range channels {
		selected[c] = true
	}
	parts := make([]string, 0, len(channels))
	for _, c := range Channels {
		if selected[c] {
			parts = append(parts, string(c))
		}
	}
	return strings.Join(parts, ", ")
}
