package loader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"supportrag/internal/domain"
)

type productDoc struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	Version     string   `json:"version"`
	Tags        []string `json:"tags"`
	Content     string   `json:"content"`
	LastUpdated string   `json:"last_updated"`
}

type supportTicket struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	Category     string   `json:"category"`
	Priority     string   `json:"priority"`
	UserVersion  string   `json:"user_version"`
	CreatedDate  string   `json:"created_date"`
	ResolvedDate string   `json:"resolved_date"`
	Tags         []string `json:"tags"`
	Content      string   `json:"content"`
}

// LoadAll reads both corpus files, product docs first.
func LoadAll(productDocsPath, supportTicketsPath string) ([]domain.Document, error) {
	docs, err := LoadProductDocs(productDocsPath)
	if err != nil {
		return nil, err
	}
	tickets, err := LoadSupportTickets(supportTicketsPath)
	if err != nil {
		return nil, err
	}
	return append(docs, tickets...), nil
}

// LoadProductDocs reads a {"product_docs": [...]} file.
func LoadProductDocs(path string) ([]domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open product docs: %w", err)
	}
	defer f.Close()
	docs, err := DecodeProductDocs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

// LoadSupportTickets reads a {"support_tickets": [...]} file.
func LoadSupportTickets(path string) ([]domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open support tickets: %w", err)
	}
	defer f.Close()
	docs, err := DecodeSupportTickets(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

func DecodeProductDocs(r io.Reader) ([]domain.Document, error) {
	var payload struct {
		ProductDocs []productDoc `json:"product_docs"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode product docs: %w", err)
	}
	docs := make([]domain.Document, 0, len(payload.ProductDocs))
	for i, d := range payload.ProductDocs {
		if d.ID == "" {
			return nil, fmt.Errorf("product doc %d: missing id", i)
		}
		docs = append(docs, domain.Document{
			Text: d.Content,
			Metadata: domain.Metadata{
				Source: domain.KindProductDoc,
				ID:     d.ID,
				Title:  d.Title,
				Tags:   d.Tags,
				Product: &domain.ProductDocFields{
					Type:        d.Type,
					Version:     d.Version,
					LastUpdated: d.LastUpdated,
				},
			},
		})
	}
	return docs, nil
}

func DecodeSupportTickets(r io.Reader) ([]domain.Document, error) {
	var payload struct {
		SupportTickets []supportTicket `json:"support_tickets"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode support tickets: %w", err)
	}
	docs := make([]domain.Document, 0, len(payload.SupportTickets))
	for i, t := range payload.SupportTickets {
		if t.ID == "" {
			return nil, fmt.Errorf("support ticket %d: missing id", i)
		}
		docs = append(docs, domain.Document{
			Text: t.Content,
			Metadata: domain.Metadata{
				Source: domain.KindSupportTicket,
				ID:     t.ID,
				Title:  t.Title,
				Tags:   t.Tags,
				Ticket: &domain.TicketFields{
					Status:       t.Status,
					Category:     t.Category,
					Priority:     t.Priority,
					UserVersion:  t.UserVersion,
					CreatedDate:  t.CreatedDate,
					ResolvedDate: t.ResolvedDate,
				},
			},
		})
	}
	return docs, nil
}
