package retrieval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// seedRecord is one line of the past-ticket corpus export. The shape
// matches the JSONL produced by the ticket-export tooling.
type seedRecord struct {
	Text     string `json:"text"`
	Metadata struct {
		TicketID            string   `json:"ticketId"`
		Subject             string   `json:"subject"`
		Language            string   `json:"language"`
		IsCancellation      bool     `json:"is_cancellation"`
		HasPaymentIssue     bool     `json:"has_payment_issue"`
		EdgeCase            string   `json:"edge_case"`
		CustomerConcerns    []string `json:"customer_concerns"`
		TopicKeywords       []string `json:"topic_keywords"`
		ConversationSummary string   `json:"conversation_summary"`
	} `json:"metadata"`
}

// LoadSeedFile parses a JSONL corpus export into documents ready for
// the vector store. Blank lines are skipped; a malformed line is an
// error, since a partially seeded corpus is worse than none.
func LoadSeedFile(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()

	var docs []Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var rec seedRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("seed file line %d: %w", line, err)
		}

		id := rec.Metadata.TicketID
		if id == "" {
			id = "seed-" + strconv.Itoa(line)
		}

		edge := rec.Metadata.EdgeCase
		if edge == "" {
			edge = "none"
		}

		docs = append(docs, Document{
			ID:   id,
			Text: rec.Text,
			Metadata: map[string]string{
				"ticket_id":         id,
				"subject":           rec.Metadata.Subject,
				"language":          rec.Metadata.Language,
				"is_cancellation":   strconv.FormatBool(rec.Metadata.IsCancellation),
				"has_payment_issue": strconv.FormatBool(rec.Metadata.HasPaymentIssue),
				"edge_case":         edge,
				"customer_concerns": strings.Join(rec.Metadata.CustomerConcerns, ","),
				"topic_keywords":    strings.Join(rec.Metadata.TopicKeywords, ","),
				"summary":           rec.Metadata.ConversationSummary,
			},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	return docs, nil
}

// Seed loads a JSONL corpus file into the store and returns the number
// of documents added.
func (s *Store) Seed(ctx context.Context, path string) (int, error) {
	docs, err := LoadSeedFile(path)
	if err != nil {
		return 0, err
	}
	if err := s.Add(ctx, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}
