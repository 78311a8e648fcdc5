// Package convert maps domain types to and from the structpb messages of the
// gRPC API.
package convert

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/garage-keeper/internal/model"
)

// --- helpers ---

func ts(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func date(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}

func strs(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

// viaJSON converts between a domain value and its generic JSON form.
func viaJSON(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// --- field readers ---

// Has reports whether key is present, including an explicit null.
func Has(s *structpb.Struct, key string) bool {
	_, ok := s.GetFields()[key]
	return ok
}

// present reports whether key is set to a non-null value.
func present(s *structpb.Struct, key string) bool {
	v, ok := s.GetFields()[key]
	if !ok {
		return false
	}
	_, null := v.GetKind().(*structpb.Value_NullValue)
	return !null
}

// String returns a string field, "" when absent.
func String(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// Bool returns a bool field, false when absent.
func Bool(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

// Int64 reads an integral id, accepting a JSON number or a decimal string.
func Int64(s *structpb.Struct, key string) (int64, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return 0, fmt.Errorf("%s: not an integer", key)
		}
		return int64(f), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(k.StringValue, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s: not a number", key)
	}
}

// Time reads an RFC 3339 timestamp. The bool is false when the key is absent.
func Time(s *structpb.Struct, key string) (time.Time, bool, error) {
	raw := String(s, key)
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, true, fmt.Errorf("%s: %w", key, err)
	}
	return t, true, nil
}

func reminders(s *structpb.Struct) (*model.ReminderConfig, error) {
	if !present(s, "reminders") {
		return nil, nil
	}
	v := s.GetFields()["reminders"]
	var rc model.ReminderConfig
	if err := viaJSON(v.AsInterface(), &rc); err != nil {
		return nil, fmt.Errorf("reminders: %w", err)
	}
	return &rc, nil
}

// --- events ---

func eventMap(ev model.CalendarEvent) (map[string]any, error) {
	m := map[string]any{
		"id":          ev.ID,
		"name":        ev.Name,
		"description": ev.Description,
		"location":    ev.Location,
		"color":       ev.Color,
		"start":       ts(ev.Start),
		"end":         ts(ev.End),
		"origin":      string(ev.Origin),
		"derived":     ev.Origin.IsDerived(),
		"updatedAt":   ts(ev.UpdatedAt),
		"assetId":     nil,
		"reminders":   nil,
	}
	if ev.AssetID != nil {
		m["assetId"] = *ev.AssetID
	}
	if ev.Reminders != nil {
		var rc map[string]any
		if err := viaJSON(ev.Reminders, &rc); err != nil {
			return nil, err
		}
		m["reminders"] = rc
	}
	return m, nil
}

// ToStructEvent converts an event to its wire form.
func ToStructEvent(ev model.CalendarEvent) (*structpb.Struct, error) {
	m, err := eventMap(ev)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// ToStructEvents wraps events as {"events": [...]}.
func ToStructEvents(evs []model.CalendarEvent) (*structpb.Struct, error) {
	list := make([]any, 0, len(evs))
	for _, ev := range evs {
		m, err := eventMap(ev)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.ID, err)
		}
		list = append(list, m)
	}
	return structpb.NewStruct(map[string]any{"events": list})
}

// FromStructNewEvent reads a creation request.
func FromStructNewEvent(s *structpb.Struct) (model.NewEvent, error) {
	var out model.NewEvent
	var err error
	out.Name = String(s, "name")
	out.Description = String(s, "description")
	out.Location = String(s, "location")
	out.Color = String(s, "color")
	if out.Start, _, err = Time(s, "start"); err != nil {
		return out, err
	}
	if out.End, _, err = Time(s, "end"); err != nil {
		return out, err
	}
	if present(s, "assetId") {
		id, err := Int64(s, "assetId")
		if err != nil {
			return out, err
		}
		out.AssetID = &id
	}
	if out.Reminders, err = reminders(s); err != nil {
		return out, err
	}
	return out, nil
}

// FromStructEventPatch reads an update request: the event id plus the fields to change.
// An explicit "reminders": null clears the reminder config.
func FromStructEventPatch(s *structpb.Struct) (int64, model.EventPatch, error) {
	var p model.EventPatch
	id, err := Int64(s, "id")
	if err != nil {
		return 0, p, err
	}
	for key, dst := range map[string]**string{
		"name":        &p.Name,
		"description": &p.Description,
		"location":    &p.Location,
		"color":       &p.Color,
	} {
		if Has(s, key) {
			v := String(s, key)
			*dst = &v
		}
	}
	for key, dst := range map[string]**time.Time{"start": &p.Start, "end": &p.End} {
		t, ok, err := Time(s, key)
		if err != nil {
			return 0, p, err
		}
		if ok {
			*dst = &t
		}
	}
	if Has(s, "reminders") {
		rc, err := reminders(s)
		if err != nil {
			return 0, p, err
		}
		if rc == nil {
			p.ClearReminders = true
		} else {
			p.Reminders = rc
		}
	}
	return id, p, nil
}

// --- vehicles ---

func vehicleMap(v model.Vehicle) map[string]any {
	return map[string]any{
		"id":           v.ID,
		"registration": v.Registration,
		"make":         v.Make,
		"model":        v.Model,
		"colour":       v.Colour,
		"motExpiry":    date(v.MOTExpiry),
		"taxDueDate":   date(v.TaxDueDate),
		"features":     strs(v.Features),
		"updatedAt":    ts(v.UpdatedAt),
	}
}

// ToStructVehicle converts a vehicle to its wire form.
func ToStructVehicle(v model.Vehicle) (*structpb.Struct, error) {
	return structpb.NewStruct(vehicleMap(v))
}

// ToStructVehicles wraps vehicles as {"vehicles": [...]}.
func ToStructVehicles(vs []model.Vehicle) (*structpb.Struct, error) {
	list := make([]any, 0, len(vs))
	for _, v := range vs {
		list = append(list, vehicleMap(v))
	}
	return structpb.NewStruct(map[string]any{"vehicles": list})
}

// FromStructVehicle reads a vehicle creation request. Expiry dates are
// optional and use the accepted expiry layouts of parse.
func FromStructVehicle(s *structpb.Struct, parse func(string) (time.Time, bool)) (model.Vehicle, error) {
	v := model.Vehicle{
		Registration: String(s, "registration"),
		Make:         String(s, "make"),
		Model:        String(s, "model"),
		Colour:       String(s, "colour"),
	}
	for key, dst := range map[string]**time.Time{"motExpiry": &v.MOTExpiry, "taxDueDate": &v.TaxDueDate} {
		raw := String(s, key)
		if raw == "" {
			continue
		}
		d, ok := parse(raw)
		if !ok {
			return v, fmt.Errorf("%s: unrecognised date %q", key, raw)
		}
		y, m, day := d.Date()
		t := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
		*dst = &t
	}
	return v, nil
}

// --- notifications ---

// ToStructNotifications wraps notifications as {"notifications": [...]}.
func ToStructNotifications(ns []model.Notification) (*structpb.Struct, error) {
	list := make([]any, 0, len(ns))
	for _, n := range ns {
		m := map[string]any{
			"id":        n.ID.String(),
			"type":      n.Type,
			"title":     n.Title,
			"message":   n.Message,
			"read":      n.Read,
			"createdAt": ts(n.CreatedAt),
		}
		if n.Type == model.NotificationTypeEventReminder {
			m["eventId"] = n.Metadata.EventID
			m["reminderMinutes"] = n.Metadata.ReminderMinutes
			m["eventStart"] = ts(n.Metadata.EventStart)
			if n.Metadata.Method != "" {
				m["method"] = string(n.Metadata.Method)
			}
		}
		list = append(list, m)
	}
	return structpb.NewStruct(map[string]any{"notifications": list})
}

// --- results ---

// ToStructSweep converts a sweep result into the trigger response
// {ok, created, ...}.
func ToStructSweep(res model.SweepResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"ok":         true,
		"created":    res.Created,
		"candidates": res.Candidates,
		"duplicates": res.Duplicates,
		"failed":     res.Failed,
		"truncated":  res.Truncated,
	})
}

// ToStructReconcile converts a reconcile result into {created, updated, enabledFeatures}.
func ToStructReconcile(res model.ReconcileResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"created":         res.Created,
		"updated":         res.Updated,
		"failed":          res.Failed,
		"enabledFeatures": strs(res.EnabledFeatures),
	})
}

// FromStructSweep reads a sweep response.
func FromStructSweep(s *structpb.Struct) model.SweepResult {
	num := func(k string) int { return int(s.GetFields()[k].GetNumberValue()) }
	return model.SweepResult{
		Candidates: num("candidates"),
		Created:    num("created"),
		Duplicates: num("duplicates"),
		Failed:     num("failed"),
		Truncated:  Bool(s, "truncated"),
	}
}
