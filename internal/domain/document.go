package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind identifies where a document came from.
type Kind string

const (
	KindProductDoc    Kind = "product_doc"
	KindSupportTicket Kind = "support_ticket"
)

// EffectiveType is the priority class used by the ranking engine.
type EffectiveType string

const (
	TypeProductDoc     EffectiveType = "product_doc"
	TypeResolvedTicket EffectiveType = "resolved_ticket"
	TypePendingTicket  EffectiveType = "pending_ticket"
)

// ProductDocFields holds attributes only product documentation carries.
type ProductDocFields struct {
	Type        string `json:"type,omitempty"`
	Version     string `json:"version,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// TicketFields holds attributes only support tickets carry.
type TicketFields struct {
	Status       string `json:"status,omitempty"`
	Category     string `json:"category,omitempty"`
	Priority     string `json:"priority,omitempty"`
	UserVersion  string `json:"user_version,omitempty"`
	CreatedDate  string `json:"created_date,omitempty"`
	ResolvedDate string `json:"resolved_date,omitempty"`
}

// Metadata describes a document or one of its chunks. Exactly one of Product or
// Ticket is set, according to Source.
type Metadata struct {
	Source     Kind              `json:"source"`
	ID         string            `json:"id"`
	Title      string            `json:"title,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Product    *ProductDocFields `json:"product,omitempty"`
	Ticket     *TicketFields     `json:"ticket,omitempty"`
	ChunkIndex int               `json:"chunk_index"`
	ChunkCount int               `json:"chunk_count"`
}

// Document is a raw record supplied by the document source.
type Document struct {
	Text     string
	Metadata Metadata
}

// Chunk is an immutable piece of a document prepared for retrieval.
type Chunk struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

var chunkNamespace = uuid.MustParse("6f1c5e0a-3b7d-4c1e-9a55-2d8f0b7c4e11")

// ChunkID derives a stable identifier for the chunk at index of the document
// with documentID in source. Ids only need to be unique within a source.
func ChunkID(source Kind, documentID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(string(source)+":"+documentID+":"+strconv.Itoa(index))).String()
}

// EffectiveVersion returns the product version for docs and the reporter's
// version for tickets. It is the only place that fallback is encoded.
func EffectiveVersion(m Metadata) string {
	if m.Product != nil && m.Product.Version != "" {
		return m.Product.Version
	}
	if m.Ticket != nil && m.Ticket.UserVersion != "" {
		return m.Ticket.UserVersion
	}
	return ""
}

// EffectiveTypeOf classifies the document for priority scoring.
// Tickets count as resolved only when their status says so.
func EffectiveTypeOf(m Metadata) EffectiveType {
	if m.Source != KindSupportTicket {
		return TypeProductDoc
	}
	if m.Ticket != nil && strings.EqualFold(strings.TrimSpace(m.Ticket.Status), "resolved") {
		return TypeResolvedTicket
	}
	return TypePendingTicket
}

// RelevantDate returns the raw date string recency is measured from.
func RelevantDate(m Metadata) string {
	if m.Source == KindSupportTicket {
		if m.Ticket == nil {
			return ""
		}
		if m.Ticket.ResolvedDate != "" {
			return m.Ticket.ResolvedDate
		}
		return m.Ticket.CreatedDate
	}
	if m.Product == nil {
		return ""
	}
	return m.Product.LastUpdated
}

// TicketCategories splits a ticket's comma separated category list.
func TicketCategories(m Metadata) []string {
	if m.Source != KindSupportTicket || m.Ticket == nil {
		return nil
	}
	var out []string
	for _, c := range strings.Split(m.Ticket.Category, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// clone returns a deep copy so chunks never share mutable slices or pointers.
func (m Metadata) clone() Metadata {
	out := m
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.Product != nil {
		p := *m.Product
		out.Product = &p
	}
	if m.Ticket != nil {
		t := *m.Ticket
		out.Ticket = &t
	}
	return out
}

// NewChunks wraps the split texts of doc into chunks carrying the parent's
// metadata plus their position among siblings.
func NewChunks(doc Document, texts []string) []Chunk {
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		meta := doc.Metadata.clone()
		meta.ChunkIndex = i
		meta.ChunkCount = len(texts)
		chunks[i] = Chunk{
			ID:       ChunkID(doc.Metadata.Source, doc.Metadata.ID, i),
			Text:     text,
			Metadata: meta,
		}
	}
	return chunks
}
