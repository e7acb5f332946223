package store

import (
	"fmt"
	"strings"
)

// SearchResult is one full-text search hit with a highlighted snippet.
type SearchResult struct {
	Document
	Snippet string
}

// SearchDocuments performs a full-text search over titles, senders and
// extracted text. An empty query returns the most recently consumed
// documents instead.
func (s *Store) SearchDocuments(query string, limit int) ([]*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		docs, err := s.ListDocuments(limit, 0)
		if err != nil {
			return nil, err
		}

		results := make([]*SearchResult, len(docs))
		for i, doc := range docs {
			results[i] = &SearchResult{
				Document: *doc,
				Snippet:  truncateText(doc.Text, 200),
			}
		}
		return results, nil
	}

	// Prefix-match every term: "invoice march" -> "invoice* march*".
	// Quotes are doubled so user input cannot alter the MATCH expression.
	terms := strings.Fields(query)
	fuzzyTerms := make([]string, len(terms))
	for i, term := range terms {
		term = strings.ReplaceAll(term, `"`, `""`)
		fuzzyTerms[i] = `"` + term + `"*`
	}
	fuzzyQuery := strings.Join(fuzzyTerms, " ")

	rows, err := s.Query(`
		SELECT `+prefixedDocumentColumns+`,
		       snippet(documents_fts, 2, '<mark>', '</mark>', '...', 32) as snippet
		FROM documents d
		JOIN documents_fts ON d.id = documents_fts.rowid
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, fuzzyQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	var results []*SearchResult
	for rows.Next() {
		result := &SearchResult{}
		err := rows.Scan(
			&result.ID, &result.Filename, &result.Checksum, &result.Title, &result.Sender,
			&result.Recipients, &result.Created, &result.ConsumedAt, &result.ArchivePath,
			&result.ThumbnailPath, &result.Text, &result.Size, &result.RuleID,
			&result.Snippet,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, result)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}
	return results, nil
}

const prefixedDocumentColumns = `d.id, d.filename, d.checksum, d.title, d.sender, d.recipients,
       d.created, d.consumed_at, d.archive_path, d.thumbnail_path, d.text, d.size, d.rule_id`

// truncateText truncates text to maxLen characters
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
