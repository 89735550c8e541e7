package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const maxTokenLength = 1024

// EncodeToken serialises the cursor into an opaque URL-safe page token. An empty cursor yields "".
func EncodeToken(cursor Cursor) (string, error) {
	if len(cursor.StartAfter) == 0 && len(cursor.StartAt) == 0 {
		return "", nil
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a token produced by EncodeToken.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	if len(token) > maxTokenLength {
		return Cursor{}, fmt.Errorf("%w: token too long", ErrInvalidPageToken)
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return cursor, nil
}

// EncodeTimeCursor builds a token positioned after the (timestamp, id) keyset pair.
func EncodeTimeCursor(at time.Time, id string) (string, error) {
	return EncodeToken(Cursor{StartAfter: []any{at.UTC().Format(time.RFC3339Nano), id}})
}

// DecodeTimeCursor reverses EncodeTimeCursor.
func DecodeTimeCursor(token string) (time.Time, string, error) {
	cursor, err := DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", fmt.Errorf("%w: expected timestamp and id", ErrInvalidPageToken)
	}
	raw, _ := cursor.StartAfter[0].(string)
	id, _ := cursor.StartAfter[1].(string)
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil || id == "" {
		return time.Time{}, "", fmt.Errorf("%w: malformed keyset", ErrInvalidPageToken)
	}
	return at, id, nil
}
