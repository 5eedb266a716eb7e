package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nabil-hisham/medibook/services/booking-service/internal/booking"
	"github.com/nabil-hisham/medibook/services/booking-service/internal/model"
	"github.com/nabil-hisham/medibook/services/booking-service/internal/storage"
)

const dateLayout = "2006-01-02"

// Identity headers are set by the gateway after token verification; this
// service never parses credentials itself.
const (
	headerUserID    = "X-User-Id"
	headerUserName  = "X-User-Name"
	headerUserEmail = "X-User-Email"
)

// DoctorDirectory is the read side of the doctor roster.
type DoctorDirectory interface {
	List(ctx context.Context) ([]storage.Doctor, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type BookingHandler struct {
	svc     *booking.Service
	doctors DoctorDirectory
	logger  *slog.Logger
}

func NewBookingHandler(svc *booking.Service, doctors DoctorDirectory, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, doctors: doctors, logger: logger}
}

type bookRequest struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	Type     string `json:"type"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	DoctorID      string `json:"doctor_id"`
	PatientID     string `json:"patient_id"`
	PatientName   string `json:"patient_name"`
	Type          string `json:"type"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	CreatedAt     string `json:"created_at"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type doctorItem struct {
	DoctorID  string `json:"doctor_id"`
	FullName  string `json:"full_name"`
	Specialty string `json:"specialty"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	patientID := strings.TrimSpace(r.Header.Get(headerUserID))
	if patientID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		http.Error(w, "invalid date (want yyyy-MM-dd)", http.StatusBadRequest)
		return
	}
	typ, err := model.ParseAppointmentType(strings.TrimSpace(req.Type))
	if err != nil {
		http.Error(w, "invalid appointment type", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Book(r.Context(), booking.BookRequest{
		DoctorID:     strings.TrimSpace(req.DoctorID),
		PatientID:    patientID,
		PatientName:  strings.TrimSpace(r.Header.Get(headerUserName)),
		PatientEmail: strings.TrimSpace(r.Header.Get(headerUserEmail)),
		Day:          day,
		Type:         typ,
	})
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentItem(*appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	if err := h.svc.Cancel(r.Context(), strings.TrimSpace(req.AppointmentID)); err != nil {
		h.writeBookingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"appointment_id": strings.TrimSpace(req.AppointmentID),
		"status":         "cancelled",
	})
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	patientID := strings.TrimSpace(r.Header.Get(headerUserID))
	if patientID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	appts, err := h.svc.ListForPatient(r.Context(), patientID)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItems(appts))
}

// DoctorDay lists a doctor's own schedule for one calendar day. The gateway
// has already required the doctor role; we additionally require the caller to
// be present in the directory.
func (h *BookingHandler) DoctorDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doctorID := strings.TrimSpace(r.Header.Get(headerUserID))
	if doctorID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	isDoctor, err := h.doctors.Exists(r.Context(), doctorID)
	if err != nil {
		h.logger.Error("doctor lookup failed", "err", err, "doctor_id", doctorID)
		http.Error(w, "failed to verify doctor", http.StatusInternalServerError)
		return
	}
	if !isDoctor {
		http.Error(w, "not a registered doctor", http.StatusForbidden)
		return
	}

	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(r.URL.Query().Get("date")), time.UTC)
	if err != nil {
		http.Error(w, "invalid date (want yyyy-MM-dd)", http.StatusBadRequest)
		return
	}

	appts, err := h.svc.DoctorDay(r.Context(), doctorID, day)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItems(appts))
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doctorID := strings.TrimSpace(r.URL.Query().Get("doctor_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	typeStr := strings.TrimSpace(r.URL.Query().Get("type"))
	if doctorID == "" || dateStr == "" || typeStr == "" {
		http.Error(w, "doctor_id, date, and type are required", http.StatusBadRequest)
		return
	}

	day, err := time.ParseInLocation(dateLayout, dateStr, time.UTC)
	if err != nil {
		http.Error(w, "invalid date (want yyyy-MM-dd)", http.StatusBadRequest)
		return
	}
	typ, err := model.ParseAppointmentType(typeStr)
	if err != nil {
		http.Error(w, "invalid appointment type", http.StatusBadRequest)
		return
	}

	starts, err := h.svc.Slots(r.Context(), doctorID, day, typ)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	items := make([]slotItem, 0, len(starts))
	for _, s := range starts {
		items = append(items, slotItem{
			StartTime: s.UTC().Format(time.RFC3339),
			EndTime:   s.Add(typ.Duration()).UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Doctors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doctors, err := h.doctors.List(r.Context())
	if err != nil {
		h.logger.Error("doctor roster load failed", "err", err)
		http.Error(w, "failed to load doctors", http.StatusInternalServerError)
		return
	}

	items := make([]doctorItem, 0, len(doctors))
	for _, d := range doctors {
		items = append(items, doctorItem{DoctorID: d.ID, FullName: d.FullName, Specialty: d.Specialty})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) writeBookingError(w http.ResponseWriter, err error) {
	var valErr *booking.ValidationError
	switch {
	case errors.As(err, &valErr):
		http.Error(w, valErr.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrNoAvailability):
		http.Error(w, "no slots available on this day", http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrConflict):
		http.Error(w, "time slot already booked", http.StatusConflict)
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	default:
		h.logger.Error("booking operation failed", "err", err)
		http.Error(w, "appointment store unavailable", http.StatusInternalServerError)
	}
}

func toAppointmentItem(appt model.Appointment) appointmentItem {
	return appointmentItem{
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		PatientName:   appt.PatientName,
		Type:          string(appt.Type),
		StartTime:     appt.Start.UTC().Format(time.RFC3339),
		EndTime:       appt.End().UTC().Format(time.RFC3339),
		CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toAppointmentItems(appts []model.Appointment) []appointmentItem {
	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toAppointmentItem(appt))
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
