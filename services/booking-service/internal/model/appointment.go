package model

import (
	"fmt"
	"time"
)

// AppointmentType is the closed set of bookable visit types. Each type has a
// fixed whole-hour duration; there are no custom durations.
type AppointmentType string

const (
	TypeConsultation   AppointmentType = "Consultation"
	TypeCheckup        AppointmentType = "Checkup"
	TypeSpecialization AppointmentType = "Specialization"
)

var typeDurations = map[AppointmentType]time.Duration{
	TypeConsultation:   1 * time.Hour,
	TypeCheckup:        2 * time.Hour,
	TypeSpecialization: 3 * time.Hour,
}

func ParseAppointmentType(raw string) (AppointmentType, error) {
	t := AppointmentType(raw)
	if _, ok := typeDurations[t]; !ok {
		return "", fmt.Errorf("unknown appointment type %q", raw)
	}
	return t, nil
}

func (t AppointmentType) Valid() bool {
	_, ok := typeDurations[t]
	return ok
}

func (t AppointmentType) Duration() time.Duration {
	return typeDurations[t]
}

type Appointment struct {
	ID           string
	DoctorID     string
	PatientID    string
	PatientName  string
	PatientEmail string
	Type         AppointmentType
	Start        time.Time
	CreatedAt    time.Time
}

// End is always derived from Start and Type so the two can never drift apart.
func (a Appointment) End() time.Time {
	return a.Start.Add(a.Type.Duration())
}
