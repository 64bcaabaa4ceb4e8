package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveExplicitIDWins(t *testing.T) {
	metadata := map[string]string{
		MetaID:         "report-2024",
		MetaSourceUUID: "123e4567-e89b-12d3-a456-426614174000",
		MetaPath:       "/srv/docs/report.txt",
	}

	id, hash := Resolve(metadata, "[[id:linked]] some content")
	sameID, _ := Resolve(map[string]string{MetaID: "report-2024"}, "entirely different content")

	assert.Equal(t, sameID, id, "explicit ID must override every other signal")
	assert.Equal(t, HashContent("[[id:linked]] some content"), hash)
}

func TestResolveSourceUUIDBeforeLink(t *testing.T) {
	metadata := map[string]string{MetaSourceUUID: "native-42"}

	id, _ := Resolve(metadata, "[[id:linked]] body")
	sameID, _ := Resolve(metadata, "other body")
	linkID, _ := Resolve(nil, "[[id:linked]] body")

	assert.Equal(t, sameID, id)
	assert.NotEqual(t, linkID, id)
}

func TestResolveUUIDAlias(t *testing.T) {
	byLong, _ := Resolve(map[string]string{MetaSourceUUID: "native-42"}, "body")
	byShort, _ := Resolve(map[string]string{MetaUUID: "native-42"}, "body")
	assert.Equal(t, byLong, byShort)
}

func TestResolveNoteLink(t *testing.T) {
	id1, _ := Resolve(nil, "[[id:note-7]] first version")
	id2, _ := Resolve(nil, "[[id:note-7]] second version, edited")
	assert.Equal(t, id1, id2, "note-link identity must survive edits")
}

func TestResolveNoteLinkOnlyNearTop(t *testing.T) {
	// A marker past the scan limit is body text, not identity.
	content := strings.Repeat("padding ", 200) + "[[id:buried]]"
	id, _ := Resolve(nil, content)
	hashID, _ := Resolve(nil, content)
	byLink, _ := Resolve(nil, "[[id:buried]] x")

	assert.Equal(t, hashID, id)
	assert.NotEqual(t, byLink, id)
}

func TestResolveContentHashFallback(t *testing.T) {
	id1, hash1 := Resolve(nil, "same bytes")
	id2, hash2 := Resolve(map[string]string{MetaPath: "/a/b.txt"}, "same bytes")
	id3, _ := Resolve(nil, "different bytes")

	// Content beats path, so identical content collapses to one identity.
	assert.Equal(t, id1, id2)
	assert.Equal(t, hash1, hash2)
	assert.NotEqual(t, id1, id3)
}

func TestResolvePathLastResort(t *testing.T) {
	id1, hash := Resolve(map[string]string{MetaPath: "/a/b.txt"}, "")
	id2, _ := Resolve(map[string]string{MetaPath: "/a/b.txt"}, "")
	id3, _ := Resolve(map[string]string{MetaPath: "/a/c.txt"}, "")

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
	assert.Equal(t, HashContent(""), hash)
}

func TestResolveDeterministic(t *testing.T) {
	metadata := map[string]string{MetaID: "x"}
	for i := 0; i < 5; i++ {
		id, hash := Resolve(metadata, "body")
		first, firstHash := Resolve(metadata, "body")
		require.Equal(t, first, id)
		require.Equal(t, firstHash, hash)
	}
}
