package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"go.opentelemetry.io/otel/metric"
)

// FeedbackService stores contact form submissions
type FeedbackService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

func NewFeedbackService(db *db.DB, metrics *metrics.AppMetrics) *FeedbackService {
	return &FeedbackService{
		db:      db,
		metrics: metrics,
	}
}

// Submit records one feedback message. Senders need not be logged in.
func (s *FeedbackService) Submit(ctx context.Context, name, email, message string) (*models.Feedback, error) {
	fb := models.Feedback{
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		Message:   strings.TrimSpace(message),
		CreatedAt: time.Now().UTC(),
	}
	switch {
	case fb.Name == "":
		return nil, validationError("name is required")
	case fb.Email == "":
		return nil, validationError("email is required")
	case fb.Message == "":
		return nil, validationError("message is required")
	}

	start := time.Now()
	query := "INSERT INTO feedback (name, email, message, created_at) VALUES (?, ?, ?, ?)"
	result, err := s.db.ExecContext(ctx, query, fb.Name, fb.Email, fb.Message, fb.CreatedAt)
	s.metrics.RecordDBQuery(ctx, "INSERT", "feedback", query, start, err == nil)
	if err != nil {
		return nil, storageError("save feedback", err)
	}
	fb.ID, err = result.LastInsertId()
	if err != nil {
		return nil, storageError("get feedback ID", err)
	}

	s.metrics.FeedbackSubmitted.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName(nil)...))
	log.Printf("[FEEDBACK] Feedback received: feedback_id=%d", fb.ID)
	return &fb, nil
}
