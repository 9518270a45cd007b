package repositories

import (
	"context"
	"errors"

	"bookero/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OTPRepository interface {
	Create(ctx context.Context, otp *models.EmailOTP) error
	GetActive(ctx context.Context, email, purpose string) (*models.EmailOTP, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) error
	MarkConsumed(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type otpRepo struct {
	db Database
}

func NewOTPRepo(db Database) OTPRepository {
	return &otpRepo{db: db}
}

func (r *otpRepo) Create(ctx context.Context, otp *models.EmailOTP) error {
	query := `
		INSERT INTO email_otps (id, email, code_hash, purpose, attempts, expires_at, created_at)
		VALUES ($1, $2, $3, $4, 0, $5, NOW())
	`
	_, err := r.db.Exec(ctx, query, otp.ID, otp.Email, otp.CodeHash, otp.Purpose, otp.ExpiresAt)
	return err
}

// GetActive returns the most recent unconsumed code for the email and
// purpose. Expiry is the service's call, so expired rows still come back.
func (r *otpRepo) GetActive(ctx context.Context, email, purpose string) (*models.EmailOTP, error) {
	otp := &models.EmailOTP{}
	query := `
		SELECT id, email, code_hash, purpose, attempts, expires_at, consumed_at, created_at
		FROM email_otps
		WHERE email = $1 AND purpose = $2 AND consumed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, email, purpose).Scan(
		&otp.ID, &otp.Email, &otp.CodeHash, &otp.Purpose, &otp.Attempts,
		&otp.ExpiresAt, &otp.ConsumedAt, &otp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return otp, nil
}

func (r *otpRepo) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE email_otps SET attempts = attempts + 1 WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

func (r *otpRepo) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE email_otps SET consumed_at = NOW() WHERE id = $1 AND consumed_at IS NULL`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

func (r *otpRepo) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM email_otps WHERE expires_at < NOW() OR consumed_at IS NOT NULL`
	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
