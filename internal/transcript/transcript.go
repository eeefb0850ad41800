// Package transcript provides in-memory transcript helpers: large-body
// compression and archive folding for long conversations. Both are
// transparent to readers; the logical transcript is unchanged.
package transcript

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/chatframe-ai/chatframe/pkg/types"
)

// compressedPrefix marks a message body stored gzip-compressed and
// base64-encoded. The marker is part of the stored form, so transcripts
// survive being handed to clients that only understand plain text.
const compressedPrefix = "__COMPRESSED__"

const (
	// CompressThreshold is the body length above which Deflate compresses.
	CompressThreshold = 10000

	// ArchiveTrigger and ArchiveKeep control folding: when an active
	// transcript grows past ArchiveTrigger messages, all but the most
	// recent ArchiveKeep are folded into one compressed archive segment.
	ArchiveTrigger = 50
	ArchiveKeep    = 30
)

// Deflate returns the storage form of a message body. Bodies longer than
// CompressThreshold are gzip-compressed and base64-encoded behind the
// marker prefix; shorter bodies are returned unchanged.
func Deflate(content string) string {
	if len(content) <= CompressThreshold {
		return content
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(content)); err != nil {
		zw.Close()
		return content
	}
	if err := zw.Close(); err != nil {
		return content
	}
	return compressedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// Inflate reverses Deflate. Bodies without the marker prefix are returned
// unchanged with no error.
func Inflate(content string) (string, error) {
	if !strings.HasPrefix(content, compressedPrefix) {
		return content, nil
	}

	raw, err := base64.StdEncoding.DecodeString(content[len(compressedPrefix):])
	if err != nil {
		return "", fmt.Errorf("decode compressed body: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("open compressed body: %w", err)
	}
	defer zr.Close()

	plain, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("inflate body: %w", err)
	}
	return string(plain), nil
}

// IsCompressed reports whether a stored body carries the compression marker.
func IsCompressed(content string) bool {
	return strings.HasPrefix(content, compressedPrefix)
}

// Archive is a folded run of consecutive transcript messages held as one
// gzip-compressed JSON blob.
type Archive struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Count   int    `json:"count"`
	Blob    []byte `json:"blob"`
}

// Fold compresses messages into an Archive. The input order is preserved.
func Fold(messages []types.Message) (Archive, error) {
	payload, err := json.Marshal(messages)
	if err != nil {
		return Archive{}, fmt.Errorf("encode archive: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		zw.Close()
		return Archive{}, fmt.Errorf("compress archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return Archive{}, fmt.Errorf("compress archive: %w", err)
	}

	return Archive{
		ID:      uuid.NewString(),
		Created: time.Now().UnixMilli(),
		Count:   len(messages),
		Blob:    buf.Bytes(),
	}, nil
}

// Unfold decompresses an Archive back into its messages.
func (a Archive) Unfold() ([]types.Message, error) {
	zr, err := gzip.NewReader(bytes.NewReader(a.Blob))
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", a.ID, err)
	}
	defer zr.Close()

	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflate archive %s: %w", a.ID, err)
	}

	var messages []types.Message
	if err := json.Unmarshal(payload, &messages); err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", a.ID, err)
	}
	return messages, nil
}
