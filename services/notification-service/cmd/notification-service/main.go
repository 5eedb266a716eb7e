package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nabil-hisham/medibook/libs/config"
	"github.com/nabil-hisham/medibook/libs/db"
	"github.com/nabil-hisham/medibook/libs/httpx"
	"github.com/nabil-hisham/medibook/libs/kafkax"
	otelx "github.com/nabil-hisham/medibook/libs/otel"
	"github.com/nabil-hisham/medibook/libs/runtime"
	"github.com/nabil-hisham/medibook/services/notification-service/internal/consumer"
	"github.com/nabil-hisham/medibook/services/notification-service/internal/email"
	"github.com/nabil-hisham/medibook/services/notification-service/internal/inbox"
	"github.com/nabil-hisham/medibook/services/notification-service/internal/storage"
)

type appointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	DoctorID      string `json:"doctor_id"`
	DoctorName    string `json:"doctor_name"`
	PatientID     string `json:"patient_id"`
	PatientName   string `json:"patient_name"`
	PatientEmail  string `json:"patient_email"`
	Type          string `json:"type"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

func handleEvent(ctx context.Context, logger *slog.Logger, repo *storage.Repository, sender email.Sender, msg kafka.Message) error {
	var evt appointmentEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if evt.AppointmentID == "" || evt.PatientEmail == "" || evt.StartTime == "" {
		logger.Error("missing event fields", "topic", msg.Topic, "appointment_id", evt.AppointmentID)
		return nil
	}
	start, err := time.Parse(time.RFC3339, evt.StartTime)
	if err != nil {
		logger.Error("invalid start_time", "err", err, "appointment_id", evt.AppointmentID)
		return nil
	}

	var kind, subject, body string
	switch msg.Topic {
	case "booking.appointment.booked.v1":
		kind = "booking_confirmation"
		end := start.Add(time.Hour)
		if parsed, err := time.Parse(time.RFC3339, evt.EndTime); err == nil {
			end = parsed
		}
		subject, body = email.Confirmation(evt.PatientName, evt.DoctorName, evt.Type, start, end)
	case "booking.appointment.cancelled.v1":
		kind = "booking_cancellation"
		subject, body = email.Cancellation(evt.PatientName, evt.DoctorName, evt.Type, start)
	default:
		logger.Error("unexpected topic", "topic", msg.Topic)
		return nil
	}

	status := "sent"
	failureReason := ""
	if err := sender.Send(evt.PatientEmail, subject, body); err != nil {
		status = "failed"
		failureReason = err.Error()
		logger.Error("email send failed", "err", err, "recipient", evt.PatientEmail)
	}

	if err := repo.Insert(ctx, storage.Notification{
		AppointmentID: evt.AppointmentID,
		DoctorID:      evt.DoctorID,
		PatientID:     evt.PatientID,
		Recipient:     evt.PatientEmail,
		Kind:          kind,
		Subject:       subject,
		Status:        status,
		FailureReason: failureReason,
	}); err != nil {
		logger.Error("failed to persist notification", "err", err)
		return err
	}

	logger.Info("notification processed", "appointment_id", evt.AppointmentID, "kind", kind, "status", status)
	return nil
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@medibook.local")
	sender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	for _, topic := range []string{
		config.String("KAFKA_BOOKED_TOPIC", "booking.appointment.booked.v1"),
		config.String("KAFKA_CANCELLED_TOPIC", "booking.appointment.cancelled.v1"),
	} {
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, func(ctx context.Context, msg kafka.Message) error {
			return handleEvent(ctx, logger, notificationsRepo, sender, msg)
		})
		go eventConsumer.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
