package document

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/anansi-ai/anansi/internal/types"
)

// Metadata keys consulted by Resolve, in precedence order.
const (
	// MetaID is an explicit caller-assigned identifier.
	MetaID = "id"
	// MetaSourceUUID is a platform-native UUID from the source system.
	// MetaUUID is accepted as a shorthand for the same signal.
	MetaSourceUUID = "source_uuid"
	MetaUUID       = "uuid"
	// MetaPath is the source path or URI; used only as a last-resort hash.
	MetaPath = "path"
)

// noteLinkPattern matches the [[id:...]] note-linking convention in the
// leading portion of a document body.
var noteLinkPattern = regexp.MustCompile(`\[\[id:([A-Za-z0-9._\-]+)\]\]`)

// noteLinkScanLimit bounds how far into the content the note-link marker is
// searched for; markers are a header convention, not body text.
const noteLinkScanLimit = 1024

// Resolve derives the stable document identity from source metadata and
// content. Priority order, first match wins:
//
//  1. explicit "id" metadata
//  2. platform-native "source_uuid" (or "uuid") metadata
//  3. a [[id:...]] note-link marker near the top of the content
//  4. hash of the content
//  5. hash of the "path" metadata
//
// The ordering is a deliberate, caller-visible trade-off: when neither an
// explicit nor a native ID is present, identity falls back to the content
// hash, so any byte-level edit produces a NEW document rather than an update.
// Callers that want edit-stable identity must supply an ID in metadata.
// Changing this precedence is a behavior change, not a bug fix.
//
// Resolve is total and deterministic: the same metadata and content always
// yield the same ID. The returned hash is the SHA-256 of content regardless
// of which rule matched, for storage alongside the document.
func Resolve(metadata map[string]string, content string) (types.ID, string) {
	contentHash := HashContent(content)

	if explicit := strings.TrimSpace(metadata[MetaID]); explicit != "" {
		return types.DeterministicID("doc:id:" + explicit), contentHash
	}
	native := strings.TrimSpace(metadata[MetaSourceUUID])
	if native == "" {
		native = strings.TrimSpace(metadata[MetaUUID])
	}
	if native != "" {
		return types.DeterministicID("doc:uuid:" + native), contentHash
	}
	if link := noteLink(content); link != "" {
		return types.DeterministicID("doc:link:" + link), contentHash
	}
	if content != "" {
		return types.DeterministicID("doc:hash:" + contentHash), contentHash
	}
	path := strings.TrimSpace(metadata[MetaPath])
	return types.DeterministicID("doc:path:" + path), contentHash
}

// HashContent returns the hex SHA-256 of the document body.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// noteLink extracts a [[id:...]] marker from the head of the content, if any.
func noteLink(content string) string {
	head := content
	if len(head) > noteLinkScanLimit {
		head = head[:noteLinkScanLimit]
	}
	m := noteLinkPattern.FindStringSubmatch(head)
	if len(m) == 2 {
		return m[1]
	}
	return ""
}
