// Package fakeapi is an in-memory stand-in for the clinic REST API, used for
// local development and integration tests.
package fakeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

// Options configures the fake.
type Options struct {
	// Secret, when set, requires HS256 bearer tokens signed with it. When
	// empty any non-empty bearer token is accepted.
	Secret string
	// Paginate wraps list responses in {"count", "results"}.
	Paginate bool
	// EmbedPatients inlines {id_paciente, nome} instead of the bare id.
	EmbedPatients bool
}

// Server holds the fake's state.
type Server struct {
	mu       sync.Mutex
	opts     Options
	nextID   int64
	appts    map[int64]appointments.Appointment
	patients map[int64]appointments.Patient
	logger   *logging.Logger
}

// New constructs an empty fake.
func New(opts Options, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{
		opts:     opts,
		nextID:   1,
		appts:    make(map[int64]appointments.Appointment),
		patients: make(map[int64]appointments.Patient),
		logger:   logger,
	}
}

// AddPatient seeds a patient record.
func (s *Server) AddPatient(p appointments.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p
}

// AddAppointment seeds an appointment, assigning an id when it has none.
// Seeding skips validation so tests can plant overlapping records.
func (s *Server) AddAppointment(a appointments.Appointment) appointments.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.nextID
	}
	if a.ID >= s.nextID {
		s.nextID = a.ID + 1
	}
	if a.Status == "" {
		a.Status = appointments.StatusPending
	}
	s.appts[a.ID] = a
	return a
}

// Appointments returns a snapshot ordered by id.
func (s *Server) Appointments() []appointments.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Routes mounts the API under /api.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.authenticate)
	r.Route("/api", func(r chi.Router) {
		r.Get("/agendamentos/", s.handleList)
		r.Post("/agendamentos/", s.handleCreate)
		r.Patch("/agendamentos/{id}/", s.handlePatch)
		r.Delete("/agendamentos/{id}/", s.handleDelete)
		r.Get("/pacientes/", s.handlePatients)
	})
	return r
}

// IssueToken mints an HS256 token carrying the user_id claim.
func IssueToken(secret string, userID int64, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("fakeapi: secret required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if tokenString == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		if s.opts.Secret != "" {
			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(s.opts.Secret), nil
			})
			if err != nil || !token.Valid {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var filter *appointments.Date
	if raw := r.URL.Query().Get("data_consulta"); raw != "" {
		d, err := appointments.ParseDate(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"data_consulta": {"Enter a valid date."}})
			return
		}
		filter = &d
	}

	s.mu.Lock()
	all := s.sortedLocked()
	out := make([]appointments.Appointment, 0, len(all))
	for _, a := range all {
		if filter != nil && a.Date != *filter {
			continue
		}
		out = append(out, s.presentLocked(a))
	}
	s.mu.Unlock()

	s.writeList(w, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req appointments.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, appointments.ErrAmbiguousPatient) {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Informe o paciente ou o nome temporário, não ambos."}})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": fmt.Sprintf("JSON parse error - %s", err)})
		return
	}
	if req.Patient.Kind == appointments.PatientUnknown {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Informe o paciente ou o nome temporário."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Patient.Kind == appointments.PatientRegistered {
		if _, ok := s.patients[req.Patient.ID]; !ok {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"paciente": {fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", req.Patient.ID)}})
			return
		}
	}
	for _, existing := range s.appts {
		if existing.Date == req.Date && existing.Time == req.Time && existing.Status != appointments.StatusCancelled {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Já existe uma consulta neste horário."}})
			return
		}
	}

	appt := appointments.Appointment{
		ID:      s.nextID,
		Patient: req.Patient,
		Date:    req.Date,
		Time:    req.Time,
		Status:  appointments.StatusPending,
		Notes:   req.Notes,
		UserID:  req.UserID,
	}
	s.nextID++
	s.appts[appt.ID] = appt
	s.logger.Debug("fake api created appointment", "id", appt.ID, "date", appt.Date.String(), "time", appt.Time.String())
	writeJSON(w, http.StatusCreated, s.presentLocked(appt))
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error"})
		return
	}
	status, err := appointments.ParseStatus(body.Status)
	if err != nil || strings.TrimSpace(body.Status) == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"status": {fmt.Sprintf("\"%s\" is not a valid choice.", body.Status)}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	appt, found := s.appts[id]
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	appt.Status = status
	s.appts[id] = appt
	writeJSON(w, http.StatusOK, s.presentLocked(appt))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.appts[id]; !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	delete(s.appts, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePatients(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]appointments.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		out = append(out, p)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	s.writeList(w, out)
}

func (s *Server) sortedLocked() []appointments.Appointment {
	out := make([]appointments.Appointment, 0, len(s.appts))
	for _, a := range s.appts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) presentLocked(a appointments.Appointment) appointments.Appointment {
	if s.opts.EmbedPatients && a.Patient.Kind == appointments.PatientRegistered {
		if p, ok := s.patients[a.Patient.ID]; ok {
			a.PatientName = p.Name
		}
	}
	return a
}

func (s *Server) writeList(w http.ResponseWriter, items any) {
	if !s.opts.Paginate {
		writeJSON(w, http.StatusOK, items)
		return
	}
	count := 0
	switch v := items.(type) {
	case []appointments.Appointment:
		count = len(v)
	case []appointments.Patient:
		count = len(v)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    count,
		"next":     nil,
		"previous": nil,
		"results":  items,
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
