// Package vectorstore keeps embedded chunks in namespaced vector collections.
// Two backends are provided: Qdrant over gRPC and an embedded chromem-go DB.
package vectorstore

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrInvalidNamespace = errors.New("invalid namespace")
	ErrInvalidEntry     = errors.New("invalid entry")
)

// Payload keys shared by both backends.
const (
	keyNamespace  = "namespace"
	keyText       = "text"
	keyPageNumber = "page_number"
	keyChunkIndex = "chunk_index"
	keyChatID     = "chat_id"
	keyFileName   = "file_name"
	keyDocumentID = "document_id"
	tagPrefix     = "tag_"
)

type Metadata struct {
	Text       string
	PageNumber int
	ChunkIndex int
	ChatID     string
	FileName   string
	DocumentID string
	Tags       map[string]string
}

type Entry struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Query selects at most TopK entries nearest to Vector. A positive
// PageNumber or a non-empty DocumentID narrows the candidates first.
type Query struct {
	Vector     []float32
	TopK       int
	PageNumber int
	DocumentID string
}

type Match struct {
	ID       string
	Score    float32
	Metadata Metadata
}

type Store interface {
	Upsert(ctx context.Context, namespace string, entries []Entry) error
	Query(ctx context.Context, namespace string, q Query) ([]Match, error)
}

func validateUpsert(namespace string, entries []Entry) error {
	if strings.TrimSpace(namespace) == "" {
		return ErrInvalidNamespace
	}
	for _, e := range entries {
		if e.ID == "" || len(e.Vector) == 0 {
			return ErrInvalidEntry
		}
	}
	return nil
}

// SortMatches orders by descending score, then ascending page and chunk.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Metadata.PageNumber != b.Metadata.PageNumber {
			return a.Metadata.PageNumber < b.Metadata.PageNumber
		}
		return a.Metadata.ChunkIndex < b.Metadata.ChunkIndex
	})
}

// flatten renders metadata as string pairs. Text is left out since both
// backends keep it in a dedicated field.
func (m Metadata) flatten() map[string]string {
	out := make(map[string]string, 5+len(m.Tags))
	for k, v := range m.Tags {
		out[tagPrefix+k] = v
	}
	out[keyPageNumber] = strconv.Itoa(m.PageNumber)
	out[keyChunkIndex] = strconv.Itoa(m.ChunkIndex)
	out[keyChatID] = m.ChatID
	out[keyFileName] = m.FileName
	out[keyDocumentID] = m.DocumentID
	return out
}

func unflatten(text string, fields map[string]string) Metadata {
	m := Metadata{
		Text:       text,
		ChatID:     fields[keyChatID],
		FileName:   fields[keyFileName],
		DocumentID: fields[keyDocumentID],
	}
	m.PageNumber, _ = strconv.Atoi(fields[keyPageNumber])
	m.ChunkIndex, _ = strconv.Atoi(fields[keyChunkIndex])
	for k, v := range fields {
		if tag, ok := strings.CutPrefix(k, tagPrefix); ok {
			if m.Tags == nil {
				m.Tags = map[string]string{}
			}
			m.Tags[tag] = v
		}
	}
	return m
}
