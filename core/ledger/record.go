package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction records are immutable once written; only the reconciliation
// path may touch a gateway transaction's status/metadata afterwards. Every
// balance-affecting mutation commits exactly one record in the same atomic
// write as the ledger change it causes.

// NewID mints a collision-resistant record identifier.
func NewID() string {
	return uuid.New().String()
}

// shortRef returns a compact human-facing reference chunk from a fresh UUID.
func shortRef() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

// NewReceiptNumber mints a receipt code for cash payments, e.g. RCP-20260831-3F0A92C1.
func NewReceiptNumber(now time.Time) string {
	return fmt.Sprintf("RCP-%s-%s", now.Format("20060102"), shortRef())
}

// NewOrderReference mints the order reference sent to the payment gateway.
func NewOrderReference(now time.Time) string {
	return fmt.Sprintf("KARO-%s-%s", now.Format("20060102"), shortRef())
}

func NewCashTransaction(studentID, termKey, actorID string, amount decimal.Decimal, now time.Time) Transaction {
	return Transaction{
		ID:            NewID(),
		StudentID:     studentID,
		Amount:        amount,
		Type:          TxTypeCash,
		Status:        StatusCompleted,
		TermKey:       termKey,
		ReceiptNumber: NewReceiptNumber(now),
		ActorID:       actorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func NewAdjustmentTransaction(studentID, termKey, adjustmentType, reason, actorID string, amount decimal.Decimal, now time.Time) Transaction {
	return Transaction{
		ID:             NewID(),
		StudentID:      studentID,
		Amount:         amount,
		Type:           TxTypeAdjustment,
		AdjustmentType: adjustmentType,
		Status:         StatusCompleted,
		TermKey:        termKey,
		Note:           reason,
		ActorID:        actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func NewGatewayTransaction(studentID, termKey, actorID string, amount decimal.Decimal, now time.Time) Transaction {
	return Transaction{
		ID:             NewID(),
		StudentID:      studentID,
		Amount:         amount,
		Type:           TxTypeGateway,
		Status:         StatusPendingZbConfirmation,
		TermKey:        termKey,
		OrderReference: NewOrderReference(now),
		ActorID:        actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func NewNotification(userID, title, body string, now time.Time) Notification {
	return Notification{
		ID:        NewID(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		CreatedAt: now,
	}
}
