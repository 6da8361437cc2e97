package pkg

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	// Verify all sentinel errors are distinct
	errs := []error{
		ErrBadParam,
		ErrInvalidUnit,
		ErrNotConfigured,
		ErrNotSupported,
		ErrInvalidParameter,
		ErrBufferTooSmall,
		ErrTimeout,
		ErrCRC,
		ErrTransport,
		ErrNoCard,
		ErrWriteProtected,
		ErrOutOfRange,
		ErrCardState,
		ErrInvalidResponse,
		ErrUnusableCard,
		ErrNotInitialized,
	}

	for i, err1 := range errs {
		if err1 == nil {
			t.Errorf("error %d is nil", i)
			continue
		}
		for j, err2 := range errs {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("error %d and %d are equal", i, j)
			}
		}
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err     error
		wantMsg string
	}{
		{ErrBadParam, "bad parameter"},
		{ErrTimeout, "timeout"},
		{ErrCRC, "CRC error"},
		{ErrNoCard, "card not present"},
		{ErrWriteProtected, "card write protected"},
	}

	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("error.Error() = %v, want %v", got, tt.wantMsg)
			}
		})
	}
}
