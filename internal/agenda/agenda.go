// Package agenda drives the appointment scheduling grid: navigation between
// days, weeks and months, the booking form, and the appointment detail view.
package agenda

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/observability/metrics"
	"github.com/wolfman30/dental-agenda/internal/schedule"
	"github.com/wolfman30/dental-agenda/internal/session"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

// API is the subset of the clinic API the agenda calls.
type API interface {
	ListAppointments(ctx context.Context, filter appointments.ListFilter) ([]appointments.Appointment, error)
	CreateAppointment(ctx context.Context, req appointments.CreateRequest) (*appointments.Appointment, error)
	UpdateStatus(ctx context.Context, id int64, status appointments.Status) (*appointments.Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) error
	ListPatients(ctx context.Context) ([]appointments.Patient, error)
}

// Notifier surfaces outcomes to the user.
type Notifier interface {
	Success(msg string)
	Failure(msg string)
}

type logNotifier struct {
	logger *logging.Logger
}

func (n logNotifier) Success(msg string) { n.logger.Info("agenda notice", "kind", "success", "message", msg) }
func (n logNotifier) Failure(msg string) { n.logger.Warn("agenda notice", "kind", "failure", "message", msg) }

// Option customizes an Agenda.
type Option func(*Agenda)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Agenda) {
		if now != nil {
			a.now = now
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(a *Agenda) {
		if n != nil {
			a.notifier = n
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(a *Agenda) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithMetrics(m *metrics.AgendaMetrics) Option {
	return func(a *Agenda) { a.metrics = m }
}

func WithSlots(cfg schedule.SlotConfig) Option {
	return func(a *Agenda) { a.slots = cfg }
}

// WithView sets the initial view; the default is weekly.
func WithView(v schedule.View) Option {
	return func(a *Agenda) { a.view = v }
}

// WithAnchor sets the initial anchor date; the default is today.
func WithAnchor(d appointments.Date) Option {
	return func(a *Agenda) { a.anchor = d }
}

// Agenda is the view state of one scheduling screen. It is safe for
// concurrent use; responses that arrive after the view moved on or after
// Close are dropped.
type Agenda struct {
	api      API
	sess     session.Context
	notifier Notifier
	logger   *logging.Logger
	metrics  *metrics.AgendaMetrics
	slots    schedule.SlotConfig
	now      func() time.Time

	mu       sync.Mutex
	view     schedule.View
	anchor   appointments.Date
	appts    []appointments.Appointment
	idx      *schedule.Index
	patients map[int64]appointments.Patient
	form     *Form
	detail   *Detail
	gen      uint64
	closed   bool
}

// New constructs an Agenda. Call Load to fetch the first page of data.
func New(api API, sess session.Context, opts ...Option) *Agenda {
	a := &Agenda{
		api:      api,
		sess:     sess,
		logger:   logging.Default(),
		slots:    schedule.DefaultSlotConfig(),
		now:      time.Now,
		view:     schedule.Weekly,
		patients: make(map[int64]appointments.Patient),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.notifier == nil {
		a.notifier = logNotifier{logger: a.logger}
	}
	if a.anchor.IsZero() {
		a.anchor = a.today()
	}
	a.idx = schedule.NewIndex(nil, a.slots)
	return a
}

func (a *Agenda) today() appointments.Date {
	return appointments.DateOf(a.now())
}

// Load fetches the appointment collection and the patient list.
func (a *Agenda) Load(ctx context.Context) error {
	if err := a.refetch(ctx); err != nil {
		return err
	}
	if err := a.loadPatients(ctx); err != nil {
		a.logger.Warn("failed to load patients", "error", err)
	}
	return nil
}

// Close discards the view state. Responses still in flight are ignored.
func (a *Agenda) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.form = nil
	a.detail = nil
}

// View returns the current view mode and anchor.
func (a *Agenda) View() (schedule.View, appointments.Date) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view, a.anchor
}

// SetView switches the view mode and refetches.
func (a *Agenda) SetView(ctx context.Context, v schedule.View) error {
	if err := a.move(func() { a.view = v }); err != nil {
		return err
	}
	return a.refetch(ctx)
}

// GoTo moves the anchor to d and refetches.
func (a *Agenda) GoTo(ctx context.Context, d appointments.Date) error {
	if err := a.move(func() { a.anchor = d }); err != nil {
		return err
	}
	return a.refetch(ctx)
}

// Today moves the anchor back to today.
func (a *Agenda) Today(ctx context.Context) error {
	return a.GoTo(ctx, a.today())
}

// Next advances the anchor by one view unit.
func (a *Agenda) Next(ctx context.Context) error {
	if err := a.move(func() { a.anchor = schedule.Step(a.view, a.anchor, 1) }); err != nil {
		return err
	}
	return a.refetch(ctx)
}

// Prev moves the anchor back one view unit unless that would land before
// today.
func (a *Agenda) Prev(ctx context.Context) error {
	today := a.today()
	var disabled bool
	err := a.move(func() {
		if schedule.PrevDisabled(a.view, a.anchor, today) {
			disabled = true
			return
		}
		a.anchor = schedule.Step(a.view, a.anchor, -1)
	})
	if err != nil {
		return err
	}
	if disabled {
		return ErrPrevDisabled
	}
	return a.refetch(ctx)
}

// PrevDisabled reports whether Prev would be rejected.
func (a *Agenda) PrevDisabled() bool {
	today := a.today()
	a.mu.Lock()
	defer a.mu.Unlock()
	return schedule.PrevDisabled(a.view, a.anchor, today)
}

func (a *Agenda) move(fn func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	fn()
	return nil
}

// refetch replaces the whole collection. Every call takes a new generation;
// only the latest generation may apply its result.
func (a *Agenda) refetch(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.gen++
	ticket := a.gen
	a.mu.Unlock()

	a.metrics.ObserveRefetch()
	appts, err := a.api.ListAppointments(ctx, appointments.ListFilter{})

	a.mu.Lock()
	if a.closed || ticket != a.gen {
		a.mu.Unlock()
		a.metrics.ObserveStaleResponse()
		a.logger.Debug("dropping stale appointment response", "generation", ticket)
		return nil
	}
	if err != nil {
		a.mu.Unlock()
		a.notifier.Failure("Could not load appointments: " + appointments.MessageFor(err))
		return fmt.Errorf("load appointments: %w", err)
	}
	a.setAppointmentsLocked(appts)
	a.mu.Unlock()
	return nil
}

func (a *Agenda) setAppointmentsLocked(appts []appointments.Appointment) {
	a.appts = appts
	a.idx = schedule.NewIndex(appts, a.slots)
	if conflicts := a.idx.Conflicts(); len(conflicts) > 0 {
		a.metrics.ObserveConflicts(len(conflicts))
		for _, c := range conflicts {
			a.logger.Warn("appointment hidden by slot conflict", "id", c.ID, "date", c.Date.String(), "time", c.Time.String())
		}
	}
}

func (a *Agenda) loadPatients(ctx context.Context) error {
	patients, err := a.api.ListPatients(ctx)
	if err != nil {
		return err
	}
	byID := make(map[int64]appointments.Patient, len(patients))
	for _, p := range patients {
		byID[p.ID] = p
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.patients = byID
	}
	return nil
}

// Appointments returns the loaded collection ordered by id.
func (a *Agenda) Appointments() []appointments.Appointment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idx.Appointments()
}

// Patients returns the loaded patient list ordered by name.
func (a *Agenda) Patients() []appointments.Patient {
	a.mu.Lock()
	defer a.mu.Unlock()
	return sortedPatients(a.patients)
}

// PatientName resolves the label shown for appt.
func (a *Agenda) PatientName(appt appointments.Appointment) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.patientNameLocked(appt)
}

func (a *Agenda) patientNameLocked(appt appointments.Appointment) string {
	if appt.PatientName != "" {
		return appt.PatientName
	}
	switch appt.Patient.Kind {
	case appointments.PatientRegistered:
		if p, ok := a.patients[appt.Patient.ID]; ok && p.Name != "" {
			return p.Name
		}
	case appointments.PatientAdHoc:
		if appt.Patient.Name != "" {
			return appt.Patient.Name + " (not registered)"
		}
	}
	return "Unknown patient"
}

// CellView is a classified cell plus its display label.
type CellView struct {
	schedule.Cell
	Patient   string `json:"patient,omitempty"`
	Clickable bool   `json:"clickable"`
}

// Grid is the render state of the current view at one instant.
type Grid struct {
	View         schedule.View            `json:"view"`
	Anchor       appointments.Date        `json:"anchor"`
	Today        appointments.Date        `json:"today"`
	Header       string                   `json:"header"`
	PrevDisabled bool                     `json:"prev_disabled"`
	Dates        []appointments.Date      `json:"dates,omitempty"`
	Slots        []appointments.TimeOfDay `json:"slots,omitempty"`
	Rows         [][]CellView             `json:"rows,omitempty"`
	Month        []schedule.MonthDay      `json:"month,omitempty"`
	Conflicts    []int64                  `json:"conflicts,omitempty"`
}

// Grid classifies the visible range against the current time. It is
// recomputed on every call.
func (a *Agenda) Grid() Grid {
	now := a.now()
	today := appointments.DateOf(now)

	a.mu.Lock()
	defer a.mu.Unlock()

	g := Grid{
		View:         a.view,
		Anchor:       a.anchor,
		Today:        today,
		Header:       schedule.HeaderLabel(a.view, a.anchor),
		PrevDisabled: schedule.PrevDisabled(a.view, a.anchor, today),
	}
	for _, c := range a.idx.Conflicts() {
		g.Conflicts = append(g.Conflicts, c.ID)
	}

	if a.view == schedule.Monthly {
		g.Month = schedule.BuildMonth(a.anchor, today, a.idx)
		return g
	}

	g.Dates = schedule.VisibleDates(a.anchor, a.view)
	g.Slots = a.slots.Slots()
	rows := schedule.ClassifyRows(g.Dates, g.Slots, now, a.idx)
	g.Rows = make([][]CellView, len(rows))
	for r, row := range rows {
		views := make([]CellView, len(row))
		for c, cell := range row {
			views[c] = CellView{Cell: cell, Clickable: cell.Clickable()}
			if cell.Appointment != nil {
				views[c].Patient = a.patientNameLocked(*cell.Appointment)
			}
		}
		g.Rows[r] = views
	}
	return g
}

// ClickCell reacts to a click on (date, slot): an open cell opens the
// booking form pre-filled with it, a booked cell opens its appointment.
// Closed and past cells return ErrCellInert.
func (a *Agenda) ClickCell(ctx context.Context, date appointments.Date, slot appointments.TimeOfDay) (schedule.State, error) {
	now := a.now()
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return "", ErrClosed
	}
	cell := schedule.Classify(date, slot, now, a.idx)
	a.mu.Unlock()

	switch cell.State {
	case schedule.Open:
		return cell.State, a.OpenForm(ctx, date, slot)
	case schedule.Booked:
		return cell.State, a.OpenDetail(cell.Appointment.ID)
	default:
		return cell.State, ErrCellInert
	}
}

// ClickMonthDay opens the daily view of a clickable day of the month grid.
func (a *Agenda) ClickMonthDay(ctx context.Context, date appointments.Date) error {
	today := a.today()
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	var target *schedule.MonthDay
	for _, d := range schedule.BuildMonth(a.anchor, today, a.idx) {
		if d.Date == date {
			d := d
			target = &d
			break
		}
	}
	if target == nil || !target.Clickable {
		a.mu.Unlock()
		return ErrCellInert
	}
	a.view = schedule.Daily
	a.anchor = date
	a.mu.Unlock()
	return a.refetch(ctx)
}
