package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIs_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("create order: %w", New(CodeSellerNotPayable, "", nil))

	assert.True(t, Is(err, CodeSellerNotPayable))
	assert.False(t, Is(err, CodeInvalidSeller))
	assert.False(t, Is(errors.New("plain"), CodeSellerNotPayable))
}

func TestNew_DefaultMessage(t *testing.T) {
	err := New(CodeNotOnboarded, "", nil)
	assert.Equal(t, "seller has not onboarded", err.Error())

	cause := errors.New("boom")
	err = New(CodePaymentProviderError, "card declined", cause)
	assert.Equal(t, "card declined: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestFromSQL(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"no rows", pgx.ErrNoRows, CodeOrderNotFound},
		{"unique", &pgconn.PgError{Code: "23505"}, CodeDuplicate},
		{"fk", &pgconn.PgError{Code: "23503"}, CodeConflict},
		{"check", &pgconn.PgError{Code: "23514", Message: "amount_positive"}, CodeInvalidInput},
		{"other pg", &pgconn.PgError{Code: "40001"}, CodePersistenceError},
		{"non pg", errors.New("conn reset"), CodePersistenceError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Is(FromSQL(tt.err, CodeOrderNotFound), tt.want))
		})
	}
	assert.NoError(t, FromSQL(nil, CodeOrderNotFound))
}
