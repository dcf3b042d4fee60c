package sellers

import (
	"context"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	"github.com/ariefcatur/lightshow-market/internal/processor"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Processor is the part of the processor API onboarding needs.
type Processor interface {
	CreateAccount(ctx context.Context, sellerID string) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID string) (string, error)
	GetAccount(ctx context.Context, accountID string) (processor.Account, error)
}

type Manager struct {
	store    Store
	proc     Processor
	logger   *zap.Logger
	validate *validator.Validate
}

func NewManager(logger *zap.Logger, store Store, proc Processor) *Manager {
	return &Manager{store: store, proc: proc, logger: logger, validate: validator.New()}
}

func (m *Manager) validSeller(sellerID string) error {
	if err := m.validate.Var(sellerID, "required,max=128,printascii"); err != nil {
		return apperr.New(apperr.CodeInvalidSeller, "seller id is invalid", err)
	}
	return nil
}

// BeginOnboarding returns a hosted onboarding link for the seller, creating the
// processor account on first use. Repeated calls reuse the stored account.
func (m *Manager) BeginOnboarding(ctx context.Context, sellerID string) (Onboarding, error) {
	if err := m.validSeller(sellerID); err != nil {
		return Onboarding{}, err
	}

	acc, err := m.store.Get(ctx, sellerID)
	created := false
	switch {
	case err == nil:
	case apperr.Is(err, apperr.CodeNotOnboarded):
		acc, err = m.createAccount(ctx, sellerID)
		if err != nil {
			return Onboarding{}, err
		}
		created = true
	default:
		return Onboarding{}, err
	}

	url, err := m.proc.CreateOnboardingLink(ctx, acc.ExternalAccountID)
	if err != nil {
		m.logger.Error("onboarding link failed",
			zap.String("seller_id", sellerID), zap.String("external_account_id", acc.ExternalAccountID), zap.Error(err))
		return Onboarding{}, apperr.New(apperr.CodeOnboardingFailed, processor.ErrorMessage(err), err)
	}
	return Onboarding{URL: url, ExternalAccountID: acc.ExternalAccountID, Created: created}, nil
}

func (m *Manager) createAccount(ctx context.Context, sellerID string) (Account, error) {
	extID, err := m.proc.CreateAccount(ctx, sellerID)
	if err != nil {
		m.logger.Error("processor account creation failed", zap.String("seller_id", sellerID), zap.Error(err))
		return Account{}, apperr.New(apperr.CodeOnboardingFailed, processor.ErrorMessage(err), err)
	}

	stored, err := m.store.Insert(ctx, Account{SellerID: sellerID, ExternalAccountID: extID})
	if err != nil {
		// The processor account exists but is unrecorded; the next attempt
		// gets the same id back through the creation idempotency key.
		m.logger.Error("seller account not persisted",
			zap.String("seller_id", sellerID), zap.String("external_account_id", extID), zap.Error(err))
		return Account{}, apperr.New(apperr.CodePersistenceError, "", err)
	}
	if stored.ExternalAccountID != extID {
		m.logger.Warn("concurrent onboarding created a second processor account",
			zap.String("seller_id", sellerID),
			zap.String("kept", stored.ExternalAccountID),
			zap.String("orphaned", extID))
	}
	m.logger.Info("seller account created", zap.String("seller_id", sellerID), zap.String("external_account_id", stored.ExternalAccountID))
	return stored, nil
}

// GetAccountStatus merges the stored account with the processor's live
// capability flags. The stored row is not modified; only settlement events do that.
func (m *Manager) GetAccountStatus(ctx context.Context, sellerID string) (Status, error) {
	if err := m.validSeller(sellerID); err != nil {
		return Status{}, err
	}
	acc, err := m.store.Get(ctx, sellerID)
	if err != nil {
		return Status{}, err
	}

	live, err := m.proc.GetAccount(ctx, acc.ExternalAccountID)
	if err != nil {
		m.logger.Warn("live account lookup failed",
			zap.String("seller_id", sellerID), zap.String("external_account_id", acc.ExternalAccountID), zap.Error(err))
		return Status{}, apperr.New(apperr.CodePaymentProviderError, processor.ErrorMessage(err), err)
	}
	return Status{
		SellerID:          acc.SellerID,
		ExternalAccountID: acc.ExternalAccountID,
		ChargesEnabled:    live.ChargesEnabled,
		PayoutsEnabled:    live.PayoutsEnabled,
		Requirements:      live.Requirements,
		DisabledReason:    live.DisabledReason,
	}, nil
}
