package store

import (
	"fmt"
	"testing"
	"time"
)

// SetupTestStore creates an in-memory SQLite store for testing.
func SetupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close test store: %v", err)
		}
	})

	return s
}

// CreateTestDocument creates a document with default values. The checksum is
// derived from the title so distinct titles never collide.
func CreateTestDocument(title, sender, text string) *Document {
	return &Document{
		Filename:   fmt.Sprintf("%s.eml", title),
		Checksum:   Checksum([]byte(title)),
		Title:      title,
		Sender:     sender,
		Recipients: "recipient@test.com",
		Created:    NullTime{Time: time.Now(), Valid: true},
		Text:       text,
		Size:       int64(len(text)),
	}
}

// InsertTestDocuments inserts the documents and fills in their ids.
func InsertTestDocuments(t *testing.T, s *Store, docs []*Document) []*Document {
	t.Helper()

	for i, doc := range docs {
		id, err := s.InsertDocument(doc)
		if err != nil {
			t.Fatalf("Failed to insert test document %d: %v", i, err)
		}
		docs[i].ID = id
	}
	return docs
}
