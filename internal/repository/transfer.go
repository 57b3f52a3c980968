package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/songforge/creditd/internal/domain"
)

// TransferRepository handles database operations for credit transfers.
type TransferRepository struct {
	db *pgxpool.Pool
}

// NewTransferRepository creates a new TransferRepository.
func NewTransferRepository(db *pgxpool.Pool) *TransferRepository {
	return &TransferRepository{db: db}
}

const transferColumns = `id, sender_id, recipient_email, recipient_id, source_package_id, code, message, status, created_at, expires_at, accepted_at`

func scanTransfer(row pgx.Row) (*domain.CreditTransfer, error) {
	var t domain.CreditTransfer
	var email, recipient, message *string
	err := row.Scan(
		&t.ID, &t.SenderID, &email, &recipient, &t.SourcePackageID, &t.Code,
		&message, &t.Status, &t.CreatedAt, &t.ExpiresAt, &t.AcceptedAt,
	)
	if err != nil {
		return nil, err
	}
	if email != nil {
		t.RecipientEmail = *email
	}
	if recipient != nil {
		t.RecipientID = *recipient
	}
	if message != nil {
		t.Message = *message
	}
	return &t, nil
}

// Create inserts a new pending transfer.
func (r *TransferRepository) Create(ctx context.Context, t *domain.CreditTransfer) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO credit_transfers (`+transferColumns+`)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $9, $10, $11)
	`,
		t.ID, t.SenderID, t.RecipientEmail, t.RecipientID, t.SourcePackageID, t.Code,
		t.Message, t.Status, t.CreatedAt, t.ExpiresAt, t.AcceptedAt,
	)
	if err != nil {
		return fmt.Errorf("create transfer: %w", err)
	}
	return nil
}

// FindByCode returns the transfer for a one-time code.
func (r *TransferRepository) FindByCode(ctx context.Context, code string) (*domain.CreditTransfer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transferColumns+` FROM credit_transfers WHERE code = $1`, code)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find transfer: %w", err)
	}
	return t, nil
}

// LatestBySender returns the sender's most recent transfer, used to
// enforce the creation cooldown without a separate counter table.
func (r *TransferRepository) LatestBySender(ctx context.Context, senderID string) (*domain.CreditTransfer, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+transferColumns+`
		FROM credit_transfers
		WHERE sender_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, senderID)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest transfer: %w", err)
	}
	return t, nil
}

// Accept transitions a pending, unexpired transfer to accepted with a
// single conditional update, so two concurrent accepts cannot both
// succeed. It returns the updated row, or nil when no transition
// happened (caller resolves why).
func (r *TransferRepository) Accept(ctx context.Context, code, recipientID string, now time.Time) (*domain.CreditTransfer, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE credit_transfers
		SET status = 'accepted', recipient_id = $2, accepted_at = $3
		WHERE code = $1 AND status = 'pending' AND expires_at > $3
		RETURNING `+transferColumns+`
	`, code, recipientID, now)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("accept transfer: %w", err)
	}
	return t, nil
}

// Reopen reverts an accepted transfer to pending after the recipient
// grant could not be completed, so the gifted unit stays claimable.
func (r *TransferRepository) Reopen(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE credit_transfers
		SET status = 'pending', accepted_at = NULL
		WHERE id = $1 AND status = 'accepted'
	`, id)
	if err != nil {
		return fmt.Errorf("reopen transfer: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrInternal("transfer reopen did not apply", nil)
	}
	return nil
}
