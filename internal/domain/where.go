package domain

import (
	"github.com/google/uuid"
)

// Where is a structured filter over documents. Top-level equality
// conditions are conjunctive (AND); Or unions in the matches of any
// nested branch; Own restricts to documents owned by the caller. There
// is no explicit AND operator; multiple Eq keys are the AND.
type Where struct {
	Eq  map[string]any `json:"-"`
	Or  []Where        `json:"or,omitempty"`
	Own bool           `json:"own,omitempty"`
}

// IsZero reports whether the filter imposes no conditions.
func (w *Where) IsZero() bool {
	return w == nil || (len(w.Eq) == 0 && len(w.Or) == 0 && !w.Own)
}

// Matches evaluates the filter as a predicate over a document. callerID
// resolves the Own condition; an unauthenticated caller (uuid.Nil) never
// owns anything.
func (w *Where) Matches(doc *Document, callerID uuid.UUID) bool {
	if w == nil {
		return true
	}
	for field, want := range w.Eq {
		if !looseEqual(doc.Fields[field], want) {
			return false
		}
	}
	if w.Own {
		if callerID == uuid.Nil || doc.UserID != callerID {
			return false
		}
	}
	if len(w.Or) > 0 {
		for i := range w.Or {
			if w.Or[i].Matches(doc, callerID) {
				return true
			}
		}
		return false
	}
	return true
}

// looseEqual compares a stored field value against a filter value.
// Numbers arrive as float64 from JSON regardless of how they were
// stored, so numeric kinds compare by value.
func looseEqual(have, want any) bool {
	if have == nil || want == nil {
		return have == want
	}
	hf, hok := asFloat(have)
	wf, wok := asFloat(want)
	if hok && wok {
		return hf == wf
	}
	return have == want
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
