package service

import (
	"errors"
	"testing"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", time.Hour, false},
		{"1", time.Hour, false},
		{"24", 24 * time.Hour, false},
		{"168", 168 * time.Hour, false},
		{"0", 0, true},
		{"169", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
		{"1.5", 0, true},
	}

	for _, tt := range tests {
		t.Run("hours="+tt.raw, func(t *testing.T) {
			window, err := parseWindow(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, int32(400), kerrors.FromError(err).Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, window)
		})
	}
}

func TestStoreError_ConnectionLossIsUnavailable(t *testing.T) {
	err := storeError(errors.New("dial tcp 127.0.0.1:3306: connect: connection refused"))
	assert.Equal(t, int32(503), kerrors.FromError(err).Code)
	assert.Equal(t, "LOG_STORE_UNAVAILABLE", kerrors.FromError(err).Reason)
}

func TestStoreError_OtherFailuresAreInternal(t *testing.T) {
	err := storeError(errors.New("Error 1146: Table 'opspulse.log_entries' doesn't exist"))
	assert.Equal(t, int32(500), kerrors.FromError(err).Code)
	assert.Equal(t, "LOG_STORE_QUERY_FAILED", kerrors.FromError(err).Reason)
}
