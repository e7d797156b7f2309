package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{fmt.Errorf("%w: start must be before end", ErrInvalidInput), KindValidation},
		{fmt.Errorf("booking 7: %w", ErrNotFound), KindNotFound},
		{ErrForbidden, KindPermission},
		{ErrNoTableAvailable, KindConflict},
		{fmt.Errorf("ledger: %w", ErrConflict), KindConflict},
		{ErrConcurrentModification, KindConflict},
		{fmt.Errorf("%w: booking is completed", ErrInvalidState), KindState},
		{ErrRateNotConfigured, KindPrecondition},
		{ErrClubInactive, KindPrecondition},
		{errors.New("disk on fire"), KindInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}
