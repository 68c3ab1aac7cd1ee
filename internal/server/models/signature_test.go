package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		s        Status
		terminal bool
		valid    bool
	}{
		{StatusPending, false, true},
		{StatusSigned, true, true},
		{StatusExpired, true, true},
		{StatusCancelled, true, true},
		{Status("archived"), true, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.terminal, tt.s.Terminal(), string(tt.s))
		assert.Equal(t, tt.valid, tt.s.Valid(), string(tt.s))
	}
}

func TestSignatureRequest_ExpiredAt(t *testing.T) {
	exp := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	r := &SignatureRequest{Status: StatusPending, ExpiresAt: exp}

	assert.False(t, r.ExpiredAt(exp))
	assert.True(t, r.ExpiredAt(exp.Add(time.Nanosecond)))

	r.Status = StatusSigned
	assert.False(t, r.ExpiredAt(exp.Add(time.Hour)))
}
