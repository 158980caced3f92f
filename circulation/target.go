package circulation

import (
	"github.com/google/uuid"
)

// TargetKind tells whether a Target names one specific copy or any copy of a book.
type TargetKind int

const (
	// TargetCopy selects exactly one physical copy.
	TargetCopy TargetKind = iota + 1

	// TargetBook selects any free copy of a book.
	TargetBook
)

// Target is the borrow selector. Build it with CopyTarget or BookTarget.
type Target struct {
	kind TargetKind
	id   uuid.UUID
}

// CopyTarget selects the copy with the given id.
func CopyTarget(copyID CopyID) Target {
	return Target{kind: TargetCopy, id: copyID}
}

// BookTarget selects any free copy of the book with the given id.
// The copy is picked deterministically (lowest copy id among the free ones).
func BookTarget(bookID BookID) Target {
	return Target{kind: TargetBook, id: bookID}
}

// Kind returns the TargetKind.
func (t Target) Kind() TargetKind {
	return t.kind
}

// ID returns the copy or book id, depending on Kind.
func (t Target) ID() uuid.UUID {
	return t.id
}

// IsCopy reports whether the target names a specific copy.
func (t Target) IsCopy() bool {
	return t.kind == TargetCopy
}

// IsBook reports whether the target names a book.
func (t Target) IsBook() bool {
	return t.kind == TargetBook
}

// IsValid reports whether the target was built with one of the constructors and carries a non-nil id.
func (t Target) IsValid() bool {
	return (t.kind == TargetCopy || t.kind == TargetBook) && t.id != uuid.Nil
}

// String provides a string representation for logging and span attributes.
func (t Target) String() string {
	switch t.kind {
	case TargetCopy:
		return "copy:" + t.id.String()
	case TargetBook:
		return "book:" + t.id.String()
	default:
		return "invalid"
	}
}
