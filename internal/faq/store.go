// Package faq provides read-only access to the frequently-asked-question
// reference data shown by the support widget. FAQs live in PostgreSQL; a
// fixed fallback set guarantees the widget never shows an empty list when
// the database is unreachable.
package faq

import (
	"context"
	"database/sql"
	"fmt"
)

// FAQ is a single question/answer entry.
type FAQ struct {
	ID       int64  `json:"id"`
	Category string `json:"category"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Store reads FAQ entries from PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates an FAQ store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// List returns all FAQ entries ordered by category then id.
func (s *Store) List(ctx context.Context) ([]FAQ, error) {
	const query = `
		SELECT id, category, question, answer
		FROM faqs
		ORDER BY category, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("faq: list: %w", err)
	}
	defer rows.Close()

	var faqs []FAQ
	for rows.Next() {
		var f FAQ
		if err := rows.Scan(&f.ID, &f.Category, &f.Question, &f.Answer); err != nil {
			return nil, fmt.Errorf("faq: scan: %w", err)
		}
		faqs = append(faqs, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("faq: list: %w", err)
	}
	return faqs, nil
}

// ListByCategory returns the entries for one category ordered by id.
func (s *Store) ListByCategory(ctx context.Context, category string) ([]FAQ, error) {
	const query = `
		SELECT id, category, question, answer
		FROM faqs
		WHERE category = $1
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("faq: list category %s: %w", category, err)
	}
	defer rows.Close()

	var faqs []FAQ
	for rows.Next() {
		var f FAQ
		if err := rows.Scan(&f.ID, &f.Category, &f.Question, &f.Answer); err != nil {
			return nil, fmt.Errorf("faq: scan: %w", err)
		}
		faqs = append(faqs, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("faq: list category %s: %w", category, err)
	}
	return faqs, nil
}
