package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nabil-hisham/medibook/libs/db"
	"github.com/nabil-hisham/medibook/services/booking-service/internal/booking"
	"github.com/nabil-hisham/medibook/services/booking-service/internal/model"
	"github.com/nabil-hisham/medibook/services/booking-service/internal/outbox"
)

// Persisted date string, kept alongside the timestamp for compatibility with
// the existing backing store's field set.
const dateLayout = "2006-01-02"

// AppointmentRepository implements booking.AppointmentStore on Postgres.
//
// The appointments table carries an exclusion constraint on
// (doctor_id WITH =, tstzrange(appointment_time, end_time) WITH &&) where
// end_time is a stored generated column derived from appointment_type. That
// constraint is the conditional-write guarantee: an insert that would overlap
// an existing booking for the same doctor fails with SQLSTATE 23P01 no matter
// how the race between read and write interleaves.
type AppointmentRepository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outboxRepo: outboxRepo}
}

func (r *AppointmentRepository) Insert(ctx context.Context, appt *model.Appointment) (*model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stored := *appt
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(doctor_id, patient_id, patient_name, patient_email, appointment_type, appointment_date, appointment_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, appt.DoctorID, appt.PatientID, appt.PatientName, appt.PatientEmail,
		string(appt.Type), appt.Start.UTC().Format(dateLayout), appt.Start).Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return nil, fmt.Errorf("doctor %s at %s: %w",
				appt.DoctorID, appt.Start.Format(time.RFC3339), booking.ErrConflict)
		}
		return nil, err
	}

	doctorName, err := doctorNameInTx(ctx, tx, stored.DoctorID)
	if err != nil {
		return nil, err
	}
	payload, err := bookedEventPayload(&stored, doctorName)
	if err != nil {
		return nil, err
	}
	if err := r.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   stored.ID,
		EventType:     "booking.appointment.booked.v1",
		Payload:       payload,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var appt model.Appointment
	var typ string
	err = tx.QueryRow(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		RETURNING id, doctor_id, patient_id, patient_name, patient_email, appointment_type, appointment_time
	`, id).Scan(&appt.ID, &appt.DoctorID, &appt.PatientID, &appt.PatientName, &appt.PatientEmail, &typ, &appt.Start)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.ErrNotFound
		}
		return err
	}
	appt.Type = model.AppointmentType(typ)

	doctorName, err := doctorNameInTx(ctx, tx, appt.DoctorID)
	if err != nil {
		return err
	}
	payload, err := cancelledEventPayload(&appt, doctorName)
	if err != nil {
		return err
	}
	if err := r.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     "booking.appointment.cancelled.v1",
		Payload:       payload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *AppointmentRepository) ListForDoctorOnDay(ctx context.Context, doctorID string, day time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, patient_id, patient_name, patient_email, appointment_type, appointment_time, created_at
		FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2
		ORDER BY appointment_time ASC
	`, doctorID, day.UTC().Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (r *AppointmentRepository) ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, patient_id, patient_name, patient_email, appointment_type, appointment_time, created_at
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_time DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		var typ string
		if err := rows.Scan(
			&appt.ID,
			&appt.DoctorID,
			&appt.PatientID,
			&appt.PatientName,
			&appt.PatientEmail,
			&typ,
			&appt.Start,
			&appt.CreatedAt,
		); err != nil {
			return nil, err
		}
		appt.Type = model.AppointmentType(typ)
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

// doctorNameInTx resolves the display name for event payloads so downstream
// consumers never have to reach back into this service's tables.
func doctorNameInTx(ctx context.Context, tx pgx.Tx, doctorID string) (string, error) {
	var name string
	err := tx.QueryRow(ctx, `SELECT full_name FROM doctors WHERE id = $1`, doctorID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return doctorID, nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

func bookedEventPayload(appt *model.Appointment, doctorName string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"doctor_id":      appt.DoctorID,
		"doctor_name":    doctorName,
		"patient_id":     appt.PatientID,
		"patient_name":   appt.PatientName,
		"patient_email":  appt.PatientEmail,
		"type":           string(appt.Type),
		"start_time":     appt.Start.UTC().Format(time.RFC3339),
		"end_time":       appt.End().UTC().Format(time.RFC3339),
	})
}

func cancelledEventPayload(appt *model.Appointment, doctorName string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"doctor_id":      appt.DoctorID,
		"doctor_name":    doctorName,
		"patient_id":     appt.PatientID,
		"patient_name":   appt.PatientName,
		"patient_email":  appt.PatientEmail,
		"type":           string(appt.Type),
		"start_time":     appt.Start.UTC().Format(time.RFC3339),
		"cancelled_at":   time.Now().UTC().Format(time.RFC3339),
	})
}
