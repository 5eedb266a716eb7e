package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nabil-hisham/medibook/services/booking-service/internal/booking"
	"github.com/nabil-hisham/medibook/services/booking-service/internal/model"
	"github.com/nabil-hisham/medibook/services/booking-service/internal/storage"
)

type memStore struct {
	mu    sync.Mutex
	next  int
	appts map[string]model.Appointment
}

func newMemStore() *memStore {
	return &memStore{appts: make(map[string]model.Appointment)}
}

func (s *memStore) Insert(ctx context.Context, appt *model.Appointment) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := appt.Start.Add(appt.Type.Duration())
	for _, existing := range s.appts {
		if existing.DoctorID != appt.DoctorID {
			continue
		}
		if appt.Start.Before(existing.End()) && existing.Start.Before(end) {
			return nil, booking.ErrConflict
		}
	}
	s.next++
	saved := *appt
	saved.ID = fmt.Sprintf("appt-%d", s.next)
	saved.CreatedAt = time.Now().UTC()
	s.appts[saved.ID] = saved
	return &saved, nil
}

func (s *memStore) ListForDoctorOnDay(ctx context.Context, doctorID string, day time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.DoctorID == doctorID && a.Start.Year() == day.Year() && a.Start.YearDay() == day.YearDay() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appts[id]; !ok {
		return booking.ErrNotFound
	}
	delete(s.appts, id)
	return nil
}

type memDirectory struct {
	doctors []storage.Doctor
}

func (d *memDirectory) List(ctx context.Context) ([]storage.Doctor, error) {
	return d.doctors, nil
}

func (d *memDirectory) Exists(ctx context.Context, id string) (bool, error) {
	for _, doc := range d.doctors {
		if doc.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func newTestHandler() (*BookingHandler, *memStore) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemStore()
	svc := booking.NewService(store, logger)
	dir := &memDirectory{doctors: []storage.Doctor{
		{ID: "doc-1", FullName: "Dr. Amina Rahman", Specialty: "Cardiology"},
		{ID: "doc-2", FullName: "Dr. Tom Okafor", Specialty: "Dermatology"},
	}}
	return NewBookingHandler(svc, dir, logger), store
}

func TestCreate_BooksEarliestSlot(t *testing.T) {
	h, _ := newTestHandler()

	body := `{"doctor_id":"doc-1","date":"2026-09-14","type":"Consultation"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
	req.Header.Set("X-User-Id", "patient-1")
	req.Header.Set("X-User-Name", "Sam Lee")
	req.Header.Set("X-User-Email", "sam@example.com")
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp appointmentItem
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.StartTime != "2026-09-14T09:00:00Z" {
		t.Fatalf("expected first slot at 09:00, got %s", resp.StartTime)
	}
	if resp.EndTime != "2026-09-14T10:00:00Z" {
		t.Fatalf("expected 1h consultation, got end %s", resp.EndTime)
	}
	if resp.AppointmentID == "" {
		t.Fatal("expected an appointment id")
	}
}

func TestCreate_SecondBookingGetsNextSlot(t *testing.T) {
	h, _ := newTestHandler()

	for i, want := range []string{"2026-09-14T09:00:00Z", "2026-09-14T11:00:00Z"} {
		body := `{"doctor_id":"doc-1","date":"2026-09-14","type":"Checkup"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
		req.Header.Set("X-User-Id", "patient-1")
		rec := httptest.NewRecorder()
		h.Create(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("booking %d: expected 201, got %d: %s", i, rec.Code, rec.Body.String())
		}
		var resp appointmentItem
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.StartTime != want {
			t.Fatalf("booking %d: expected start %s, got %s", i, want, resp.StartTime)
		}
	}
}

func TestCreate_RejectsBadInput(t *testing.T) {
	h, _ := newTestHandler()

	cases := []struct {
		name   string
		body   string
		userID string
		want   int
	}{
		{"missing identity", `{"doctor_id":"doc-1","date":"2026-09-14","type":"Consultation"}`, "", http.StatusUnauthorized},
		{"bad json", `{`, "patient-1", http.StatusBadRequest},
		{"bad date", `{"doctor_id":"doc-1","date":"14/09/2026","type":"Consultation"}`, "patient-1", http.StatusBadRequest},
		{"bad type", `{"doctor_id":"doc-1","date":"2026-09-14","type":"Surgery"}`, "patient-1", http.StatusBadRequest},
		{"empty doctor", `{"doctor_id":"","date":"2026-09-14","type":"Consultation"}`, "patient-1", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(tc.body))
			if tc.userID != "" {
				req.Header.Set("X-User-Id", tc.userID)
			}
			rec := httptest.NewRecorder()
			h.Create(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreate_FullDayReturns422(t *testing.T) {
	h, store := newTestHandler()

	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	for hour := 9; hour < 17; hour++ {
		_, err := store.Insert(context.Background(), &model.Appointment{
			DoctorID:  "doc-1",
			PatientID: "someone",
			Type:      model.TypeConsultation,
			Start:     day.Add(time.Duration(hour) * time.Hour),
		})
		if err != nil {
			t.Fatalf("seed hour %d: %v", hour, err)
		}
	}

	body := `{"doctor_id":"doc-1","date":"2026-09-14","type":"Consultation"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
	req.Header.Set("X-User-Id", "patient-1")
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a full day, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCancel_RoundTrip(t *testing.T) {
	h, store := newTestHandler()

	created, err := store.Insert(context.Background(), &model.Appointment{
		DoctorID:  "doc-1",
		PatientID: "patient-1",
		Type:      model.TypeConsultation,
		Start:     time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	body := `{"appointment_id":"` + created.ID + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Cancelling again must report not found, not succeed silently.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel", strings.NewReader(body))
	rec = httptest.NewRecorder()
	h.Cancel(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second cancel, got %d", rec.Code)
	}
}

func TestCancel_RequiresID(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel", strings.NewReader(`{"appointment_id":" "}`))
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestList_ReturnsOnlyCallersAppointments(t *testing.T) {
	h, store := newTestHandler()

	seed := []struct {
		patient string
		hour    int
	}{
		{"patient-1", 9},
		{"patient-2", 10},
		{"patient-1", 11},
	}
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	for _, s := range seed {
		if _, err := store.Insert(context.Background(), &model.Appointment{
			DoctorID:  "doc-1",
			PatientID: s.patient,
			Type:      model.TypeConsultation,
			Start:     day.Add(time.Duration(s.hour) * time.Hour),
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("X-User-Id", "patient-1")
	rec := httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var items []appointmentItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 appointments for patient-1, got %d", len(items))
	}
	for _, item := range items {
		if item.PatientID != "patient-1" {
			t.Fatalf("leaked appointment for %s", item.PatientID)
		}
	}
}

func TestDoctorDay_RejectsUnknownDoctor(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctor/appointments?date=2026-09-14", nil)
	req.Header.Set("X-User-Id", "patient-1")
	rec := httptest.NewRecorder()
	h.DoctorDay(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-doctor caller, got %d", rec.Code)
	}
}

func TestDoctorDay_ListsSchedule(t *testing.T) {
	h, store := newTestHandler()

	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	if _, err := store.Insert(context.Background(), &model.Appointment{
		DoctorID:  "doc-1",
		PatientID: "patient-1",
		Type:      model.TypeCheckup,
		Start:     day.Add(9 * time.Hour),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctor/appointments?date=2026-09-14", nil)
	req.Header.Set("X-User-Id", "doc-1")
	rec := httptest.NewRecorder()
	h.DoctorDay(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var items []appointmentItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Type != "Checkup" {
		t.Fatalf("unexpected schedule: %+v", items)
	}
}

func TestSlots_SkipsBusyHours(t *testing.T) {
	h, store := newTestHandler()

	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	if _, err := store.Insert(context.Background(), &model.Appointment{
		DoctorID:  "doc-1",
		PatientID: "patient-1",
		Type:      model.TypeConsultation,
		Start:     day.Add(9 * time.Hour),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?doctor_id=doc-1&date=2026-09-14&type=Specialization", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var items []slotItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("expected open slots")
	}
	if items[0].StartTime != "2026-09-14T10:00:00Z" {
		t.Fatalf("expected first 3h opening at 10:00, got %s", items[0].StartTime)
	}
	last := items[len(items)-1]
	if last.StartTime != "2026-09-14T14:00:00Z" {
		t.Fatalf("expected last 3h opening at 14:00, got %s", last.StartTime)
	}
}

func TestSlots_RequiresParams(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?doctor_id=doc-1", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDoctors_ListsRoster(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/doctors", nil)
	rec := httptest.NewRecorder()
	h.Doctors(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []doctorItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 doctors, got %d", len(items))
	}
}

func TestMethodChecks(t *testing.T) {
	h, _ := newTestHandler()

	checks := []struct {
		name string
		fn   http.HandlerFunc
	}{
		{"create", h.Create},
		{"cancel", h.Cancel},
	}
	for _, c := range checks {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c.fn(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405 for GET, got %d", c.name, rec.Code)
		}
	}
}
