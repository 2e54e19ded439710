package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything past 72 bytes
const maxPasswordBytes = 72

// AuthService registers accounts and verifies credentials
type AuthService struct {
	db       *db.DB
	metrics  *metrics.AppMetrics
	hashCost int
	// compared against when the username is unknown so both paths cost one bcrypt run
	dummyHash []byte
}

// NewAuthService creates a new auth service hashing with the given bcrypt cost
func NewAuthService(db *db.DB, metrics *metrics.AppMetrics, hashCost int) *AuthService {
	if hashCost < bcrypt.MinCost || hashCost > bcrypt.MaxCost {
		hashCost = bcrypt.DefaultCost
	}
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("storefront-unknown-user"), hashCost)
	if err != nil {
		log.Printf("[AUTH] Warning: could not prepare dummy hash: %v", err)
	}
	return &AuthService{
		db:        db,
		metrics:   metrics,
		hashCost:  hashCost,
		dummyHash: dummyHash,
	}
}

// Register creates a new account. Username and email must both be unused.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	switch {
	case username == "":
		return nil, validationError("username is required")
	case len(username) > 80:
		return nil, validationError("username must be at most 80 characters")
	case email == "":
		return nil, validationError("email is required")
	case len(email) > 120:
		return nil, validationError("email must be at most 120 characters")
	case password == "":
		return nil, validationError("password is required")
	case len(password) > maxPasswordBytes:
		return nil, validationError("password must be at most %d bytes", maxPasswordBytes)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, validationError("email address is invalid")
	}

	taken, err := s.exists(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)", username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("username already exists: %w", ErrConflict)
	}

	taken, err = s.exists(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)", email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("email already registered: %w", ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	start := time.Now()
	createdAt := time.Now().UTC()
	query := "INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)"
	result, err := s.db.ExecContext(ctx, query, username, email, string(hash), createdAt)
	s.metrics.RecordDBQuery(ctx, "INSERT", "users", query, start, err == nil)
	if err != nil {
		// lost a race with a concurrent registration
		if s.db.Dialect.IsUniqueViolation(err) {
			return nil, fmt.Errorf("username or email already exists: %w", ErrConflict)
		}
		return nil, storageError("create user", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, storageError("get user ID", err)
	}

	s.metrics.UsersRegistered.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName(nil)...))
	log.Printf("[AUTH] User registered: user_id=%d", id)

	return &models.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    createdAt,
	}, nil
}

// Authenticate checks a username/password pair and returns the account
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.getUser(ctx, "SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?",
		strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.recordLogin(ctx, "failure")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordLogin(ctx, "failure")
		return nil, ErrInvalidCredentials
	}

	s.recordLogin(ctx, "success")
	s.metrics.ActiveUsersCount.Record(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("session_type", "authenticated"),
		attribute.Int64("user_id", user.ID),
	})...))

	return user, nil
}

// GetUser returns a user by ID
func (s *AuthService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, "SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?", id)
}

func (s *AuthService) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	start := time.Now()

	var user models.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	s.metrics.RecordDBQuery(ctx, "SELECT", "users", query, start, err == nil || errors.Is(err, sql.ErrNoRows))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user")
	}
	if err != nil {
		return nil, storageError("get user", err)
	}
	return &user, nil
}

func (s *AuthService) exists(ctx context.Context, query string, arg any) (bool, error) {
	start := time.Now()
	var exists bool
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&exists)
	s.metrics.RecordDBQuery(ctx, "SELECT", "users", query, start, err == nil)
	if err != nil {
		return false, storageError("check user", err)
	}
	return exists, nil
}

func (s *AuthService) recordLogin(ctx context.Context, result string) {
	s.metrics.LoginAttempts.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("result", result),
	})...))
}
