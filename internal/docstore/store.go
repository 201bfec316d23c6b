// Package docstore is a minimal document store abstraction. Every write is atomic for a single
// document only; nothing spans two documents.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrUnavailable wraps every transport or driver failure.
	ErrUnavailable = errors.New("document store unavailable")
	// ErrConflict is returned when an update lost too many optimistic races.
	ErrConflict = errors.New("document update conflict")
)

// Operator is a Find predicate operator.
type Operator string

const (
	OpEqual         Operator = "=="
	OpArrayContains Operator = "array-contains"
)

// Query selects documents whose Field matches Value under Op.
type Query struct {
	Field string
	Op    Operator
	Value string
}

// Where builds a Query.
func Where(field string, op Operator, value string) Query {
	return Query{Field: field, Op: op, Value: value}
}

// Document is a stored document and its id.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Encode replaces the document body with the JSON encoding of v.
func (d *Document) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	d.Data = data
	return nil
}

// UpdateFunc mutates a document in place. Returning an error aborts the update.
type UpdateFunc func(doc *Document) error

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	// Create writes data under a store-generated id.
	Create(ctx context.Context, collection string, data any) (string, error)
	// Set creates or replaces the document.
	Set(ctx context.Context, collection, id string, data any) error
	// Update applies fn to the current document atomically. ErrNotFound when absent.
	Update(ctx context.Context, collection, id string, fn UpdateFunc) error
	// Delete removes the document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Find returns the matching documents ordered by id.
	Find(ctx context.Context, collection string, q Query) ([]Document, error)
	Close() error
}

// GetAs loads a document and decodes it into a T.
func GetAs[T any](ctx context.Context, s Store, collection, id string) (T, error) {
	var out T
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return out, err
	}
	err = doc.Decode(&out)
	return out, err
}

// UpdateAs decodes the document into a T, lets fn mutate it and writes it back.
func UpdateAs[T any](ctx context.Context, s Store, collection, id string, fn func(v *T) error) error {
	return s.Update(ctx, collection, id, func(doc *Document) error {
		var v T
		if err := doc.Decode(&v); err != nil {
			return err
		}
		if err := fn(&v); err != nil {
			return err
		}
		return doc.Encode(&v)
	})
}

// storeError keeps both the kind sentinel and the driver error in the chain.
type storeError struct {
	op   string
	kind error
	err  error
}

func (e *storeError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *storeError) Unwrap() []error {
	return []error{e.kind, e.err}
}

func unavailable(op string, err error) error {
	return &storeError{op: op, kind: ErrUnavailable, err: err}
}

// matches evaluates q against a decoded document body.
func matches(body map[string]any, q Query) bool {
	v, ok := body[q.Field]
	if !ok {
		return false
	}
	switch q.Op {
	case OpEqual:
		s, ok := v.(string)
		return ok && s == q.Value
	case OpArrayContains:
		items, ok := v.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if s, ok := item.(string); ok && s == q.Value {
				return true
			}
		}
	}
	return false
}

func sortByID(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}

func checkQuery(q Query) error {
	if q.Field == "" {
		return errors.New("query field is empty")
	}
	switch q.Op {
	case OpEqual, OpArrayContains:
		return nil
	default:
		return fmt.Errorf("unsupported query operator %q", q.Op)
	}
}
