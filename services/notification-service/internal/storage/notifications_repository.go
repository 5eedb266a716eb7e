package storage

import (
	"context"

	"github.com/nabil-hisham/medibook/libs/db"
)

// Notification is the audit record of one delivery attempt. Kind is
// "booking_confirmation" or "booking_cancellation".
type Notification struct {
	AppointmentID string
	DoctorID      string
	PatientID     string
	Recipient     string
	Kind          string
	Subject       string
	Status        string
	FailureReason string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, doctor_id, patient_id, recipient, kind, subject, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, n.AppointmentID, n.DoctorID, n.PatientID, n.Recipient, n.Kind, n.Subject, n.Status, n.FailureReason)
	return err
}
