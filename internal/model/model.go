// Package model defines domain entities used by services and repositories.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ReminderMethod is the channel a reminder override asks for.
type ReminderMethod string

const (
	MethodEmail ReminderMethod = "email"
	MethodPopup ReminderMethod = "popup"
)

// ReminderOverride is a single "N minutes before start" reminder.
type ReminderOverride struct {
	Method  ReminderMethod `json:"method"`
	Minutes int            `json:"minutes"`
}

// ReminderConfig is the per-event reminder setup stored as JSON.
type ReminderConfig struct {
	UseDefault bool               `json:"useDefault"`
	Overrides  []ReminderOverride `json:"overrides"`
}

// Validate rejects unknown methods and negative offsets.
func (c *ReminderConfig) Validate() error {
	if c == nil {
		return nil
	}
	for i, o := range c.Overrides {
		switch o.Method {
		case MethodEmail, MethodPopup:
		default:
			return fmt.Errorf("override[%d]: unknown method %q", i, o.Method)
		}
		if o.Minutes < 0 {
			return fmt.Errorf("override[%d]: negative minutes", i)
		}
	}
	return nil
}

// Effective returns the overrides to evaluate. Defaults apply only when the
// event asks for them and carries no explicit overrides.
func (c *ReminderConfig) Effective(defaults []ReminderOverride) []ReminderOverride {
	if c == nil {
		return nil
	}
	if c.UseDefault && len(c.Overrides) == 0 {
		return defaults
	}
	return c.Overrides
}

// ExpiryKind is a tracked expiry field of a vehicle.
type ExpiryKind string

const (
	ExpiryMOT ExpiryKind = "mot"
	ExpiryTax ExpiryKind = "tax"
)

// ExpiryKinds lists every tracked kind.
var ExpiryKinds = []ExpiryKind{ExpiryMOT, ExpiryTax}

// Label is the human prefix used in derived event names.
func (k ExpiryKind) Label() string {
	switch k {
	case ExpiryMOT:
		return "MOT Due"
	case ExpiryTax:
		return "Tax Due"
	default:
		return strings.ToUpper(string(k)) + " Due"
	}
}

// Color is the display colour of derived events of this kind.
func (k ExpiryKind) Color() string {
	switch k {
	case ExpiryMOT:
		return "#ef4444"
	case ExpiryTax:
		return "#f59e0b"
	default:
		return "#6b7280"
	}
}

// Origin tells user-managed events apart from system-managed ones.
type Origin string

// OriginUser marks events entered directly by a user.
const OriginUser Origin = "user"

const derivedPrefix = "derived:"

// DerivedOrigin returns the origin tag for events derived from kind.
func DerivedOrigin(kind ExpiryKind) Origin { return Origin(derivedPrefix + string(kind)) }

// IsDerived reports whether the event is managed by the synchronizer.
func (o Origin) IsDerived() bool { return strings.HasPrefix(string(o), derivedPrefix) }

// Kind returns the expiry kind of a derived origin, or "" for user events.
func (o Origin) Kind() ExpiryKind {
	if !o.IsDerived() {
		return ""
	}
	return ExpiryKind(strings.TrimPrefix(string(o), derivedPrefix))
}

// CalendarEvent is a persisted calendar entry.
type CalendarEvent struct {
	ID          int64
	UserID      uuid.UUID
	AssetID     *int64 // owning vehicle, nil for free-standing events
	Name        string
	Description string
	Location    string
	Color       string
	Start       time.Time
	End         time.Time
	Reminders   *ReminderConfig // nil: no reminders
	Origin      Origin
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// ReminderErr is set when the stored reminder blob could not be decoded.
	ReminderErr error
}

// NewEvent is a creation intent for a calendar event.
type NewEvent struct {
	UserID      uuid.UUID
	AssetID     *int64
	Name        string
	Description string
	Location    string
	Color       string
	Start       time.Time
	End         time.Time
	Reminders   *ReminderConfig
	Origin      Origin
}

// EventPatch holds optional user edits; nil fields are left untouched.
type EventPatch struct {
	Name        *string
	Description *string
	Location    *string
	Color       *string
	Start       *time.Time
	End         *time.Time
	Reminders   *ReminderConfig
	// ClearReminders drops the reminder config entirely.
	ClearReminders bool
}

// NotificationTypeEventReminder tags records produced by the reminder sweep.
const NotificationTypeEventReminder = "event_reminder"

// ReminderMetadata is the metadata blob of an event reminder notification.
type ReminderMetadata struct {
	EventID         int64          `json:"eventId"`
	ReminderMinutes int            `json:"reminderMinutes"`
	Method          ReminderMethod `json:"method,omitempty"`
	EventStart      time.Time      `json:"eventStart"`
}

// Notification is an in-app notification record.
type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      string
	Title     string
	Message   string
	Metadata  ReminderMetadata
	Read      bool
	CreatedAt time.Time
}

// FeatureCalendar is the vehicle feature switched on by derived events.
const FeatureCalendar = "calendar"

// Vehicle is the source entity whose expiry dates drive derived events.
type Vehicle struct {
	ID           int64
	UserID       uuid.UUID
	Registration string
	Make         string
	Model        string
	Colour       string
	MOTExpiry    *time.Time
	TaxDueDate   *time.Time
	Features     []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expiries returns the tracked expiry fields keyed by kind, formatted as dates.
func (v *Vehicle) Expiries() map[ExpiryKind]string {
	out := make(map[ExpiryKind]string, len(ExpiryKinds))
	if v.MOTExpiry != nil {
		out[ExpiryMOT] = v.MOTExpiry.Format(time.DateOnly)
	}
	if v.TaxDueDate != nil {
		out[ExpiryTax] = v.TaxDueDate.Format(time.DateOnly)
	}
	return out
}

// VehicleLookup is what the external data source knows about a registration.
// Dates are raw strings and may be empty.
type VehicleLookup struct {
	Registration string
	Make         string
	Colour       string
	MOTExpiry    string
	TaxDueDate   string
}

// ExpirySource is the input of one reconciliation.
type ExpirySource struct {
	AssetID  int64
	UserID   uuid.UUID
	Label    string // e.g. the registration number
	Features []string
	Expiries map[ExpiryKind]string
}

// SweepResult reports what one sweep did.
type SweepResult struct {
	Candidates int
	Created    int
	Duplicates int // inserts rejected by the uniqueness constraint
	Failed     int
	Truncated  bool // stopped early on context deadline
}

// ReconcileResult reports what one reconciliation did.
type ReconcileResult struct {
	Created         int
	Updated         int
	Failed          int
	EnabledFeatures []string
}
