package circulation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var (
	ErrInvalidPayloadJSON         = errors.New("payload json is not valid")
	ErrInvalidMetadataJSON        = errors.New("metadata json is not valid")
	ErrEmptyEntryType             = errors.New("journal entry type must not be empty")
	ErrMappingJournalPayload      = errors.New("mapping journal payload failed")
	ErrBuildingJournalEntryFailed = errors.New("building journal entry failed")
)

// Journal entry types.
const (
	LoanOpenedEntryType  = "LoanOpened"
	LoanClosedEntryType  = "LoanClosed"
	CopiesAddedEntryType = "CopiesAdded"
)

// JournalEntries is an alias type for a slice of JournalEntry.
type JournalEntries = []JournalEntry

// JournalEntry is one record of the circulation journal. Every successful state transition
// appends one entry inside the same transaction that performs the transition.
//
// It should only be constructed with BuildJournalEntry.
type JournalEntry struct {
	SequenceNumber uint64
	EntryType      string
	OccurredAt     time.Time
	PayloadJSON    []byte
	MetadataJSON   []byte
}

// BuildJournalEntry validates the JSON parts and returns a JournalEntry.
func BuildJournalEntry(entryType string, occurredAt time.Time, payloadJSON []byte, metadataJSON []byte) (JournalEntry, error) {
	if entryType == "" {
		return JournalEntry{}, ErrEmptyEntryType
	}

	if !jsoniter.ConfigFastest.Valid(payloadJSON) {
		return JournalEntry{}, ErrInvalidPayloadJSON
	}

	if !jsoniter.ConfigFastest.Valid(metadataJSON) {
		return JournalEntry{}, ErrInvalidMetadataJSON
	}

	return JournalEntry{
		EntryType:    entryType,
		OccurredAt:   occurredAt,
		PayloadJSON:  payloadJSON,
		MetadataJSON: metadataJSON,
	}, nil
}

// LoanOpened is the payload of a LoanOpenedEntryType entry.
type LoanOpened struct {
	LoanID     string
	CopyID     string
	BookID     string
	MemberID   string
	BorrowDate time.Time
	DueDate    time.Time
}

// LoanClosed is the payload of a LoanClosedEntryType entry.
type LoanClosed struct {
	LoanID     string
	CopyID     string
	BookID     string
	MemberID   string
	ReturnDate time.Time
	WasOverdue bool
}

// CopiesAdded is the payload of a CopiesAddedEntryType entry.
type CopiesAdded struct {
	BookID   string
	CopyIDs  []string
	NewTotal int
}

// EntryMetadata carries tracking information of a journal entry.
type EntryMetadata struct {
	MessageID     string
	CorrelationID string
}

// BuildEntryMetadata creates EntryMetadata with a fresh message id.
func BuildEntryMetadata(correlationID uuid.UUID) EntryMetadata {
	return EntryMetadata{
		MessageID:     NewID().String(),
		CorrelationID: correlationID.String(),
	}
}

// LoanOpenedEntry builds the journal entry recording that loan was opened.
func LoanOpenedEntry(loan Loan, metadata EntryMetadata) (JournalEntry, error) {
	return buildEntry(
		LoanOpenedEntryType,
		loan.BorrowDate,
		LoanOpened{
			LoanID:     loan.LoanID.String(),
			CopyID:     loan.CopyID.String(),
			BookID:     loan.BookID.String(),
			MemberID:   loan.MemberID.String(),
			BorrowDate: loan.BorrowDate,
			DueDate:    loan.DueDate,
		},
		metadata,
	)
}

// LoanClosedEntry builds the journal entry recording that loan was returned.
func LoanClosedEntry(loan ClosedLoan, metadata EntryMetadata) (JournalEntry, error) {
	return buildEntry(
		LoanClosedEntryType,
		loan.ReturnDate,
		LoanClosed{
			LoanID:     loan.LoanID.String(),
			CopyID:     loan.CopyID.String(),
			BookID:     loan.BookID.String(),
			MemberID:   loan.MemberID.String(),
			ReturnDate: loan.ReturnDate,
			WasOverdue: loan.WasOverdue,
		},
		metadata,
	)
}

// CopiesAddedEntry builds the journal entry recording that copies were added to a book.
func CopiesAddedEntry(result AddCopiesResult, occurredAt time.Time, metadata EntryMetadata) (JournalEntry, error) {
	copyIDs := make([]string, 0, len(result.CopyIDs))
	for _, id := range result.CopyIDs {
		copyIDs = append(copyIDs, id.String())
	}

	return buildEntry(
		CopiesAddedEntryType,
		occurredAt,
		CopiesAdded{
			BookID:   result.BookID.String(),
			CopyIDs:  copyIDs,
			NewTotal: result.NewTotal,
		},
		metadata,
	)
}

func buildEntry(entryType string, occurredAt time.Time, payload any, metadata EntryMetadata) (JournalEntry, error) {
	payloadJSON, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(payload)
	if err != nil {
		return JournalEntry{}, errors.Join(ErrBuildingJournalEntryFailed, err)
	}

	metadataJSON, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(metadata)
	if err != nil {
		return JournalEntry{}, errors.Join(ErrBuildingJournalEntryFailed, err)
	}

	return BuildJournalEntry(entryType, occurredAt, payloadJSON, metadataJSON)
}

// DecodePayload unmarshals the entry's payload into target.
func (e JournalEntry) DecodePayload(target any) error {
	if err := jsoniter.ConfigFastest.Unmarshal(e.PayloadJSON, target); err != nil {
		return errors.Join(ErrMappingJournalPayload, err)
	}

	return nil
}

// DecodeMetadata unmarshals the entry's metadata.
func (e JournalEntry) DecodeMetadata() (EntryMetadata, error) {
	metadata := new(EntryMetadata)
	if err := jsoniter.ConfigFastest.Unmarshal(e.MetadataJSON, metadata); err != nil {
		return EntryMetadata{}, errors.Join(ErrMappingJournalPayload, err)
	}

	return *metadata, nil
}
