package store

import (
	"crypto/sha256"
	"database/sql"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"time"
)

// Checksum returns the hex sha256 digest used as document dedupe key.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NullTime handles both string and time.Time values coming back from SQLite.
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value interface{}) error {
	if value == nil {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case string:
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05.999999999 -0700 -0700",
			"2006-01-02 15:04:05 -0700 -0700",
			"2006-01-02 15:04:05.999999999 -0700",
			"2006-01-02 15:04:05 -0700",
			"2006-01-02 15:04:05.999999999",
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05Z",
		}

		var err error
		for _, format := range formats {
			var t time.Time
			t, err = time.Parse(format, v)
			if err == nil {
				nt.Time, nt.Valid = t, true
				return nil
			}
		}
		return fmt.Errorf("failed to parse time string %q: %w", v, err)
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time, nil
}

// Document is one consumed message: metadata, full extracted text and the
// locations of the archive PDF and thumbnail inside the data directory.
type Document struct {
	ID            int64
	Filename      string
	Checksum      string
	Title         string
	Sender        string
	Recipients    string
	Created       NullTime
	ConsumedAt    NullTime
	ArchivePath   string
	ThumbnailPath string
	Text          string
	Size          int64
	RuleID        int64
}

const documentColumns = `id, filename, checksum, title, sender, recipients,
       created, consumed_at, archive_path, thumbnail_path, text, size, rule_id`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	doc := &Document{}
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.Checksum, &doc.Title, &doc.Sender, &doc.Recipients,
		&doc.Created, &doc.ConsumedAt, &doc.ArchivePath, &doc.ThumbnailPath, &doc.Text,
		&doc.Size, &doc.RuleID,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// InsertDocument inserts a consumed document and returns its id.
func (s *Store) InsertDocument(doc *Document) (int64, error) {
	result, err := s.Exec(`
		INSERT INTO documents (
			filename, checksum, title, sender, recipients, created,
			archive_path, thumbnail_path, text, size, rule_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		doc.Filename, doc.Checksum, doc.Title, doc.Sender, doc.Recipients, doc.Created,
		doc.ArchivePath, doc.ThumbnailPath, doc.Text, doc.Size, doc.RuleID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}
	return result.LastInsertId()
}

// DocumentExists checks whether a document with the given checksum was
// already consumed.
func (s *Store) DocumentExists(checksum string) (bool, error) {
	var exists bool
	err := s.QueryRow("SELECT EXISTS(SELECT 1 FROM documents WHERE checksum = ?)", checksum).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check document existence: %w", err)
	}
	return exists, nil
}

// GetDocumentByID retrieves a document by id, or nil when it does not exist.
func (s *Store) GetDocumentByID(id int64) (*Document, error) {
	doc, err := scanDocument(s.QueryRow(
		"SELECT "+documentColumns+" FROM documents WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments retrieves the most recently consumed documents.
func (s *Store) ListDocuments(limit, offset int) ([]*Document, error) {
	rows, err := s.Query(
		"SELECT "+documentColumns+" FROM documents ORDER BY consumed_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// CountDocuments returns the total number of consumed documents.
func (s *Store) CountDocuments() (int, error) {
	var count int
	err := s.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// UpdateDocumentArtifacts records where the archive and thumbnail of a
// consumed document landed.
func (s *Store) UpdateDocumentArtifacts(id int64, archivePath, thumbnailPath string) error {
	result, err := s.Exec(
		"UPDATE documents SET archive_path = ?, thumbnail_path = ? WHERE id = ?",
		archivePath, thumbnailPath, id)
	if err != nil {
		return fmt.Errorf("failed to update document artifacts: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("document %d not found", id)
	}
	return nil
}

// DeleteDocument removes a document row. Artifacts on disk are the caller's
// concern.
func (s *Store) DeleteDocument(id int64) error {
	result, err := s.Exec("DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("document %d not found", id)
	}
	return nil
}
