package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgefit/coach-be/internal/jobstore"
)

func TestJobCursorRoundTrip(t *testing.T) {
	original := &jobstore.Cursor{
		CreatedAt: time.Date(2025, 6, 1, 12, 30, 0, 123456789, time.UTC),
		JobID:     "b4f1d2e3-0a9c-4d8e-b7f6-5a4c3d2e1f09",
	}

	token := EncodeJobCursor(original)
	require.NotEmpty(t, token)

	decoded, err := DecodeJobCursor(token)
	require.NoError(t, err)
	assert.True(t, original.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, original.JobID, decoded.JobID)
}

func TestDecodeJobCursor(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantNil bool
		wantErr bool
	}{
		{
			name:    "empty token is first page",
			token:   "",
			wantNil: true,
		},
		{
			name:    "not base64",
			token:   "!!!not-base64!!!",
			wantErr: true,
		},
		{
			name:    "missing separator",
			token:   base64.StdEncoding.EncodeToString([]byte("1717245000000000000")),
			wantErr: true,
		},
		{
			name:    "empty job id",
			token:   base64.StdEncoding.EncodeToString([]byte("1717245000000000000|")),
			wantErr: true,
		},
		{
			name:    "non-numeric timestamp",
			token:   base64.StdEncoding.EncodeToString([]byte("yesterday|some-job")),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor, err := DecodeJobCursor(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, cursor)
			}
		})
	}
}
