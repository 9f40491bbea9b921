package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SigningRecord is one audit entry per signing request. It holds hashes and
// identifiers only; request payloads and key material are never stored.
type SigningRecord struct {
	RecordID      string `json:"recordId"`
	RequestID     uint64 `json:"requestId"`
	JSONRPC       string `json:"jsonrpc"`
	Method        string `json:"method"`
	Backend       string `json:"backend"`
	Signer        string `json:"signer,omitempty"`
	RequestHash   string `json:"requestHash,omitempty"`
	TxKind        string `json:"txKind,omitempty"`
	TxHash        string `json:"txHash,omitempty"`
	SignatureHash string `json:"signatureHash,omitempty"`
	ErrorKind     string `json:"errorKind,omitempty"`
	Error         string `json:"error,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// NewSigningRecord returns a record with a fresh id stamped with the current time.
func NewSigningRecord() *SigningRecord {
	return &SigningRecord{
		RecordID:  uuid.NewString(),
		Timestamp: time.Now().UnixNano(),
	}
}

func (r *SigningRecord) Succeeded() bool {
	return r.ErrorKind == "" && r.Error == ""
}

// IJournal is an append-only store of signing records.
// All implementations must be safe for concurrent use.
type IJournal interface {
	// Append stores a record. Records with an existing RecordID are overwritten.
	Append(record *SigningRecord) error

	// Get returns the record with the given id, or nil if it does not exist.
	Get(recordID string) (*SigningRecord, error)

	// List returns up to limit records, newest first. limit <= 0 returns all records.
	List(limit int) ([]*SigningRecord, error)

	// Close is idempotent; every other call fails afterwards.
	Close() error

	HealthCheck() error
}

var ErrClosed = fmt.Errorf("journal is closed")

func MarshalSigningRecord(record *SigningRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil SigningRecord")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SigningRecord to JSON: %w", err)
	}
	return data, nil
}

func UnmarshalSigningRecord(data []byte) (*SigningRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}
	var record SigningRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to SigningRecord: %w", err)
	}
	return &record, nil
}

// ValidateRecord rejects records that cannot be indexed.
func ValidateRecord(record *SigningRecord) error {
	if record == nil {
		return fmt.Errorf("cannot append nil SigningRecord")
	}
	if record.RecordID == "" {
		return fmt.Errorf("signing record has no id")
	}
	return nil
}
