package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nabil-hisham/medibook/services/booking-service/internal/availability"
	"github.com/nabil-hisham/medibook/services/booking-service/internal/model"
)

// AppointmentStore is the persistence boundary for appointments.
//
// Insert must be conditional: it succeeds only if no overlapping interval
// exists for the same doctor at write time, and returns ErrConflict otherwise.
// The Postgres implementation enforces this with an exclusion constraint; any
// other implementation must provide an equivalent guarantee, because Book is
// expressed as read-then-write and relies on it to stay double-booking free
// under concurrency.
type AppointmentStore interface {
	Insert(ctx context.Context, appt *model.Appointment) (*model.Appointment, error)
	ListForDoctorOnDay(ctx context.Context, doctorID string, day time.Time) ([]model.Appointment, error)
	ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error)
	Delete(ctx context.Context, id string) error
}

// Service coordinates booking and cancellation. It holds no ambient state;
// the store is injected.
type Service struct {
	store  AppointmentStore
	logger *slog.Logger
}

func NewService(store AppointmentStore, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

type BookRequest struct {
	DoctorID     string
	PatientID    string
	PatientName  string
	PatientEmail string
	Day          time.Time
	Type         model.AppointmentType
}

// Insert conflicts mean another caller booked concurrently; each retry re-reads
// the day and searches again, so a retry lands on the next free slot rather
// than the contested one.
const maxBookAttempts = 3

// Book finds the earliest free slot for the requested day and persists the
// appointment. Returns ErrNoAvailability when the day is full, a
// *ValidationError for malformed input, and a *StoreError for persistence
// failures.
func (s *Service) Book(ctx context.Context, req BookRequest) (*model.Appointment, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxBookAttempts; attempt++ {
		existing, err := s.store.ListForDoctorOnDay(ctx, req.DoctorID, req.Day)
		if err != nil {
			return nil, &StoreError{Op: "list", Err: err}
		}

		busy := make([]availability.Interval, 0, len(existing))
		for _, a := range existing {
			busy = append(busy, availability.Interval{Start: a.Start, End: a.End()})
		}

		start, ok := availability.FindStart(busy, req.Day, req.Type.Duration())
		if !ok {
			return nil, ErrNoAvailability
		}

		created, err := s.store.Insert(ctx, &model.Appointment{
			DoctorID:     req.DoctorID,
			PatientID:    req.PatientID,
			PatientName:  strings.TrimSpace(req.PatientName),
			PatientEmail: strings.TrimSpace(req.PatientEmail),
			Type:         req.Type,
			Start:        start,
		})
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, &StoreError{Op: "insert", Err: err}
		}

		lastErr = err
		s.logger.Info("booking raced a concurrent write, retrying",
			"doctor_id", req.DoctorID,
			"start", start.Format(time.RFC3339),
			"attempt", attempt+1,
		)
	}
	return nil, &StoreError{Op: "insert", Err: lastErr}
}

// Cancel deletes the appointment outright; rescheduling is cancel + rebook.
// Cancelling an id that does not exist (including one already cancelled)
// returns ErrNotFound, never a silent success.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "appointment_id", Reason: "must not be empty"}
	}
	err := s.store.Delete(ctx, id)
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StoreError{Op: "delete", Err: err}
}

func (s *Service) ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, &ValidationError{Field: "patient_id", Reason: "must not be empty"}
	}
	appts, err := s.store.ListForPatient(ctx, patientID)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	return appts, nil
}

func (s *Service) DoctorDay(ctx context.Context, doctorID string, day time.Time) ([]model.Appointment, error) {
	if strings.TrimSpace(doctorID) == "" {
		return nil, &ValidationError{Field: "doctor_id", Reason: "must not be empty"}
	}
	if day.IsZero() {
		return nil, &ValidationError{Field: "date", Reason: "must be set"}
	}
	appts, err := s.store.ListForDoctorOnDay(ctx, doctorID, day)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	return appts, nil
}

// Slots reports every open start time for the doctor, day, and type. Purely a
// read; the authoritative no-overlap check still happens at insert.
func (s *Service) Slots(ctx context.Context, doctorID string, day time.Time, typ model.AppointmentType) ([]time.Time, error) {
	if strings.TrimSpace(doctorID) == "" {
		return nil, &ValidationError{Field: "doctor_id", Reason: "must not be empty"}
	}
	if day.IsZero() {
		return nil, &ValidationError{Field: "date", Reason: "must be set"}
	}
	if !typ.Valid() {
		return nil, &ValidationError{Field: "type", Reason: "unknown appointment type"}
	}

	existing, err := s.store.ListForDoctorOnDay(ctx, doctorID, day)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	busy := make([]availability.Interval, 0, len(existing))
	for _, a := range existing {
		busy = append(busy, availability.Interval{Start: a.Start, End: a.End()})
	}
	return availability.Openings(busy, day, typ.Duration()), nil
}

func validate(req BookRequest) error {
	if strings.TrimSpace(req.DoctorID) == "" {
		return &ValidationError{Field: "doctor_id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.PatientID) == "" {
		return &ValidationError{Field: "patient_id", Reason: "must not be empty"}
	}
	if req.Day.IsZero() {
		return &ValidationError{Field: "date", Reason: "must be set"}
	}
	if !req.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "unknown appointment type"}
	}
	return nil
}
