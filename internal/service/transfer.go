package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/songforge/creditd/internal/domain"
	"github.com/songforge/creditd/internal/notify"
)

// TransferStore is the workflow's view of transfer storage. Accept is
// an atomic conditional transition.
type TransferStore interface {
	Create(ctx context.Context, t *domain.CreditTransfer) error
	FindByCode(ctx context.Context, code string) (*domain.CreditTransfer, error)
	LatestBySender(ctx context.Context, senderID string) (*domain.CreditTransfer, error)
	Accept(ctx context.Context, code, recipientID string, now time.Time) (*domain.CreditTransfer, error)
	Reopen(ctx context.Context, id string) error
}

// IdentityResolver maps emails to existing account ids.
type IdentityResolver interface {
	ResolveEmail(ctx context.Context, email string) (string, error)
	EmailOf(ctx context.Context, userID string) (string, error)
}

// TransferService lets a user gift exactly one credit to another
// person, redeemed via a short-lived one-time code. The sender's unit
// is reserved pessimistically at creation, so acceptance only grants.
type TransferService struct {
	transfers TransferStore
	ledger    *LedgerService
	identity  IdentityResolver
	notifier  notify.Notifier
	cooldown  time.Duration
	ttl       time.Duration
	now       func() time.Time
}

// NewTransferService creates a new TransferService.
func NewTransferService(transfers TransferStore, ledger *LedgerService, identity IdentityResolver, notifier notify.Notifier, cooldown, ttl time.Duration) *TransferService {
	return &TransferService{
		transfers: transfers,
		ledger:    ledger,
		identity:  identity,
		notifier:  notifier,
		cooldown:  cooldown,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Create reserves one credit from the sender and issues a pending
// transfer code. The cooldown is enforced from the sender's most
// recent transfer row, not a counter.
func (s *TransferService) Create(ctx context.Context, senderID, recipientEmail, message string) (*domain.CreditTransfer, error) {
	recipientEmail = strings.ToLower(strings.TrimSpace(recipientEmail))

	if recipientEmail != "" {
		senderEmail, err := s.identity.EmailOf(ctx, senderID)
		if err != nil {
			return nil, err
		}
		if senderEmail != "" && strings.EqualFold(senderEmail, recipientEmail) {
			return nil, domain.ErrValidation("you cannot send a credit to yourself")
		}
	}

	now := s.now()
	latest, err := s.transfers.LatestBySender(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		nextAllowed := latest.CreatedAt.Add(s.cooldown)
		if now.Before(nextAllowed) {
			return nil, domain.ErrRateLimited("you can only gift one credit per 15 days", nextAllowed)
		}
	}

	// Resolving the recipient is a pure read, so it happens before the
	// reservation mutates anything.
	var recipientID string
	if recipientEmail != "" {
		recipientID, err = s.identity.ResolveEmail(ctx, recipientEmail)
		if err != nil {
			return nil, err
		}
	}

	packageIDs, err := s.ledger.Reserve(ctx, senderID, 1)
	if err != nil {
		return nil, err
	}

	code, err := generateTransferCode()
	if err != nil {
		// Hand the reserved unit back; the transfer never existed.
		if relErr := s.ledger.Release(ctx, packageIDs[0], 1); relErr != nil {
			return nil, domain.ErrInternal("generate transfer code", relErr)
		}
		return nil, domain.ErrInternal("generate transfer code", err)
	}

	transfer := &domain.CreditTransfer{
		SenderID:        senderID,
		RecipientEmail:  recipientEmail,
		RecipientID:     recipientID,
		SourcePackageID: packageIDs[0],
		Code:            code,
		Message:         message,
		Status:          domain.TransferPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
	}
	if err := s.transfers.Create(ctx, transfer); err != nil {
		if relErr := s.ledger.Release(ctx, packageIDs[0], 1); relErr != nil {
			return nil, domain.ErrInternal("persist transfer", relErr)
		}
		return nil, err
	}

	if recipientEmail != "" {
		s.notifier.Publish(ctx, notify.Event{
			Kind:           notify.EventTransferInvite,
			UserID:         recipientID,
			RecipientEmail: recipientEmail,
			TransferCode:   transfer.Code,
			Message:        message,
			Credits:        1,
		})
	}

	return transfer, nil
}

// Get returns a transfer by code with lazy expiry applied, so a
// recipient can preview the gift before accepting.
func (s *TransferService) Get(ctx context.Context, code string) (*domain.CreditTransfer, error) {
	transfer, err := s.transfers.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, domain.ErrNotFound("transfer not found")
	}
	transfer.Status = transfer.EffectiveStatus(s.now())
	return transfer, nil
}

// Accept redeems a pending transfer for the accepting user. The store
// transition is conditional on status = pending, so of N concurrent
// accepts exactly one succeeds; the losers are told why.
func (s *TransferService) Accept(ctx context.Context, code, userID string) (*domain.CreditTransfer, error) {
	now := s.now()

	transfer, err := s.transfers.Accept(ctx, code, userID, now)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		// The conditional update matched nothing; find out why.
		existing, err := s.transfers.FindByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		switch {
		case existing == nil:
			return nil, domain.ErrNotFound("transfer not found")
		case existing.Status == domain.TransferAccepted:
			return nil, domain.ErrAlreadyUsed("this transfer was already accepted")
		default:
			return nil, domain.ErrExpired("this transfer has expired")
		}
	}

	// The sender's unit was reserved at creation; only grant here.
	planID, err := s.ledger.PackagePlan(ctx, transfer.SourcePackageID)
	if err != nil {
		planID = "single"
	}
	if _, err := s.ledger.GrantTransfer(ctx, userID, planID, transfer.ID); err != nil {
		// Hand the transfer back to pending so the gifted unit is not
		// lost; the recipient can retry once the store recovers.
		if reopenErr := s.transfers.Reopen(ctx, transfer.ID); reopenErr != nil {
			slog.Error("reopen transfer after failed grant", "transfer", transfer.ID, "error", reopenErr)
		}
		return nil, err
	}

	s.notifier.Publish(ctx, notify.Event{
		Kind:         notify.EventTransferAccepted,
		UserID:       transfer.SenderID,
		TransferCode: transfer.Code,
		Credits:      1,
	})

	return transfer, nil
}

const (
	transferCodePrefix  = "GIFT-"
	transferCodeLength  = 12
	transferCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// generateTransferCode returns an unguessable fixed-length code with a
// recognizable prefix. The charset drops lookalike characters.
func generateTransferCode() (string, error) {
	var b strings.Builder
	b.WriteString(transferCodePrefix)
	max := big.NewInt(int64(len(transferCodeCharset)))
	for i := 0; i < transferCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("random index: %w", err)
		}
		b.WriteByte(transferCodeCharset[n.Int64()])
	}
	return b.String(), nil
}
