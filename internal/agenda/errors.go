package agenda

import "errors"

var (
	// ErrPrevDisabled is returned when navigating back would leave the
	// bookable range.
	ErrPrevDisabled = errors.New("agenda: previous period is before today")
	// ErrCellInert is returned when a closed or past cell is clicked.
	ErrCellInert = errors.New("agenda: cell is not clickable")
	// ErrConfirmationRequired is returned when a delete skips the confirmation step.
	ErrConfirmationRequired = errors.New("agenda: delete requires confirmation")
	// ErrNoSelection is returned when no appointment is open.
	ErrNoSelection = errors.New("agenda: no appointment selected")
	// ErrUnknownAppointment is returned when the id is not in the loaded collection.
	ErrUnknownAppointment = errors.New("agenda: appointment not loaded")
	// ErrBusy is returned while a mutation for the same view is in flight.
	ErrBusy = errors.New("agenda: request already in flight")
	// ErrFormClosed is returned when editing or submitting without an open form.
	ErrFormClosed = errors.New("agenda: appointment form is not open")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("agenda: closed")
)

// ValidationError is a local rejection raised before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
