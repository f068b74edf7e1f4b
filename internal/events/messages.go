package events

import (
	"encoding/json"
	"time"
)

// Routing keys for ledger events.
const (
	KeyTransactionCreated = "transaction.created"
	KeyImportCompleted    = "import.completed"
)

// TransactionCreatedMessage announces a newly persisted ledger entry.
// Consumers fetch the full row by id; the message stays lightweight.
type TransactionCreatedMessage struct {
	UserID        int64     `json:"user_id"`
	TransactionID int64     `json:"transaction_id"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
}

// ImportCompletedMessage announces a finished bulk import.
type ImportCompletedMessage struct {
	UserID    int64     `json:"user_id"`
	Imported  int       `json:"imported"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionCreatedMessage(userID, transactionID int64, source string) *TransactionCreatedMessage {
	return &TransactionCreatedMessage{
		UserID:        userID,
		TransactionID: transactionID,
		Source:        source,
		Timestamp:     time.Now(),
	}
}

func NewImportCompletedMessage(userID int64, imported int) *ImportCompletedMessage {
	return &ImportCompletedMessage{
		UserID:    userID,
		Imported:  imported,
		Timestamp: time.Now(),
	}
}

func (m *TransactionCreatedMessage) ToJSON() ([]byte, error) { return json.Marshal(m) }

func (m *ImportCompletedMessage) ToJSON() ([]byte, error) { return json.Marshal(m) }

func TransactionCreatedMessageFromJSON(data []byte) (*TransactionCreatedMessage, error) {
	var msg TransactionCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func ImportCompletedMessageFromJSON(data []byte) (*ImportCompletedMessage, error) {
	var msg ImportCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
