package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/model"
	"github.com/and161185/garage-keeper/internal/repository"
)

/************ events ************/

type memEvents struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]model.CalendarEvent

	listErr      error
	createErrFor map[model.Origin]error
	updateErr    error

	listCalls int
	creates   int
	updates   int
}

var _ repository.EventRepository = (*memEvents)(nil)

func newMemEvents() *memEvents {
	return &memEvents{rows: map[int64]model.CalendarEvent{}, createErrFor: map[model.Origin]error{}}
}

func (m *memEvents) put(ev model.CalendarEvent) model.CalendarEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == 0 {
		m.nextID++
		ev.ID = m.nextID
	} else if ev.ID > m.nextID {
		m.nextID = ev.ID
	}
	if ev.Origin == "" {
		ev.Origin = model.OriginUser
	}
	m.rows[ev.ID] = ev
	return ev
}

func (m *memEvents) sorted(keep func(model.CalendarEvent) bool) []model.CalendarEvent {
	var out []model.CalendarEvent
	for _, ev := range m.rows {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memEvents) ListWithReminders(_ context.Context, startAfter time.Time) ([]model.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sorted(func(ev model.CalendarEvent) bool {
		return (ev.Reminders != nil || ev.ReminderErr != nil) && !ev.Start.Before(startAfter)
	}), nil
}

func (m *memEvents) ListForAsset(_ context.Context, userID uuid.UUID, assetID int64) ([]model.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sorted(func(ev model.CalendarEvent) bool {
		return ev.UserID == userID && ev.AssetID != nil && *ev.AssetID == assetID
	}), nil
}

func (m *memEvents) ListRange(_ context.Context, userID uuid.UUID, from, to time.Time) ([]model.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(ev model.CalendarEvent) bool {
		return ev.UserID == userID && !ev.End.Before(from) && ev.Start.Before(to)
	}), nil
}

func (m *memEvents) Get(_ context.Context, userID uuid.UUID, id int64) (*model.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.rows[id]
	if !ok || ev.UserID != userID {
		return nil, errs.ErrNotFound
	}
	return &ev, nil
}

func (m *memEvents) Create(_ context.Context, in model.NewEvent) (*model.CalendarEvent, error) {
	m.mu.Lock()
	if err := m.createErrFor[in.Origin]; err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if in.Origin.IsDerived() && in.AssetID != nil {
		for _, ev := range m.rows {
			if ev.AssetID != nil && *ev.AssetID == *in.AssetID && ev.Origin == in.Origin {
				m.mu.Unlock()
				return nil, errs.ErrAlreadyExists
			}
		}
	}
	m.creates++
	m.mu.Unlock()

	ev := m.put(model.CalendarEvent{
		UserID: in.UserID, AssetID: in.AssetID, Name: in.Name, Description: in.Description,
		Location: in.Location, Color: in.Color, Start: in.Start, End: in.End,
		Reminders: in.Reminders, Origin: in.Origin,
	})
	return &ev, nil
}

func (m *memEvents) Update(_ context.Context, in *model.CalendarEvent) (*model.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	cur, ok := m.rows[in.ID]
	if !ok || cur.UserID != in.UserID {
		return nil, errs.ErrNotFound
	}
	m.updates++
	m.rows[in.ID] = *in
	out := *in
	return &out, nil
}

func (m *memEvents) UpdateWindow(_ context.Context, userID uuid.UUID, id int64, start, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	ev, ok := m.rows[id]
	if !ok || ev.UserID != userID {
		return errs.ErrNotFound
	}
	m.updates++
	ev.Start, ev.End = start, end
	m.rows[id] = ev
	return nil
}

func (m *memEvents) Delete(_ context.Context, userID uuid.UUID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.rows[id]
	if !ok || ev.UserID != userID {
		return errs.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memEvents) byOrigin(o model.Origin) []model.CalendarEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(ev model.CalendarEvent) bool { return ev.Origin == o })
}

/************ notifications ************/

type reminderKey struct {
	user    uuid.UUID
	event   int64
	minutes int
}

type memNotifications struct {
	mu   sync.Mutex
	rows map[reminderKey]model.Notification

	// blindExists makes ExistsReminder always answer false, opening the
	// check-then-insert window that the unique constraint must close.
	blindExists  bool
	existsErr    error
	createErr    error
	createErrFor map[int64]error
	lastLimit    int
	// onExists runs at the start of every ExistsReminder call.
	onExists     func()
}

var _ repository.NotificationRepository = (*memNotifications)(nil)

func newMemNotifications() *memNotifications {
	return &memNotifications{rows: map[reminderKey]model.Notification{}, createErrFor: map[int64]error{}}
}

func (m *memNotifications) ExistsReminder(ctx context.Context, userID uuid.UUID, eventID int64, minutes int) (bool, error) {
	if m.onExists != nil {
		m.onExists()
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	if m.blindExists {
		return false, nil
	}
	_, ok := m.rows[reminderKey{userID, eventID, minutes}]
	return ok, nil
}

func (m *memNotifications) CreateReminder(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if err := m.createErrFor[n.Metadata.EventID]; err != nil {
		return err
	}
	k := reminderKey{n.UserID, n.Metadata.EventID, n.Metadata.ReminderMinutes}
	if _, ok := m.rows[k]; ok {
		return errs.ErrAlreadyExists
	}
	n.ID = uuid.Must(uuid.NewV4())
	n.CreatedAt = time.Now()
	m.rows[k] = *n
	return nil
}

func (m *memNotifications) ListForUser(_ context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	var out []model.Notification
	for k, n := range m.rows {
		if k.user == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memNotifications) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

/************ vehicles ************/

type memVehicles struct {
	mu        sync.Mutex
	nextID    int64
	rows      map[int64]model.Vehicle
	enableErr error
	enabled   int
	updErr    error
	updates   int
}

var _ repository.VehicleRepository = (*memVehicles)(nil)

func newMemVehicles() *memVehicles { return &memVehicles{rows: map[int64]model.Vehicle{}} }

func (m *memVehicles) Create(_ context.Context, v *model.Vehicle) (*model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.rows {
		if cur.UserID == v.UserID && cur.Registration == v.Registration {
			return nil, errs.ErrAlreadyExists
		}
	}
	m.nextID++
	out := *v
	out.ID = m.nextID
	m.rows[out.ID] = out
	return &out, nil
}

func (m *memVehicles) Get(_ context.Context, userID uuid.UUID, id int64) (*model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[id]
	if !ok || v.UserID != userID {
		return nil, errs.ErrNotFound
	}
	v.Features = append([]string(nil), v.Features...)
	return &v, nil
}

func (m *memVehicles) List(_ context.Context, userID uuid.UUID) ([]model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Vehicle
	for _, v := range m.rows {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Registration < out[j].Registration })
	return out, nil
}

func (m *memVehicles) UpdateExpiries(_ context.Context, userID uuid.UUID, id int64, mot, tax *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updErr != nil {
		return m.updErr
	}
	v, ok := m.rows[id]
	if !ok || v.UserID != userID {
		return errs.ErrNotFound
	}
	m.updates++
	v.MOTExpiry, v.TaxDueDate = mot, tax
	m.rows[id] = v
	return nil
}

func (m *memVehicles) EnableFeature(_ context.Context, userID uuid.UUID, id int64, feature string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enableErr != nil {
		return false, m.enableErr
	}
	v, ok := m.rows[id]
	if !ok || v.UserID != userID {
		return false, nil
	}
	for _, f := range v.Features {
		if f == feature {
			return false, nil
		}
	}
	m.enabled++
	v.Features = append(v.Features, feature)
	m.rows[id] = v
	return true, nil
}

func (m *memVehicles) Delete(_ context.Context, userID uuid.UUID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[id]
	if !ok || v.UserID != userID {
		return errs.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}
