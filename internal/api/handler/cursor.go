package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forgefit/coach-be/internal/jobstore"
)

// EncodeJobCursor packs a pagination position into an opaque token. The
// token is "<created_at unix nanos>|<job_id>" base64-encoded.
func EncodeJobCursor(cursor *jobstore.Cursor) string {
	raw := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.JobID)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeJobCursor unpacks a token produced by EncodeJobCursor. An empty
// token means "first page" and decodes to nil.
func DecodeJobCursor(token string) (*jobstore.Cursor, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}

	return &jobstore.Cursor{
		CreatedAt: time.Unix(0, nanos).UTC(),
		JobID:     parts[1],
	}, nil
}
