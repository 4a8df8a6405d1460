package ledger

import (
	"regexp"
	"testing"
	"time"
)

func TestReferenceFormats(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	receiptRe := regexp.MustCompile(`^RCP-20260831-[0-9A-F]{8}$`)
	if got := NewReceiptNumber(now); !receiptRe.MatchString(got) {
		t.Errorf("NewReceiptNumber() = %q", got)
	}

	orderRe := regexp.MustCompile(`^KARO-20260831-[0-9A-F]{8}$`)
	if got := NewOrderReference(now); !orderRe.MatchString(got) {
		t.Errorf("NewOrderReference() = %q", got)
	}

	if NewOrderReference(now) == NewOrderReference(now) {
		t.Error("NewOrderReference() must not repeat")
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{
		StatusCompleted, StatusInitiationFailed, StatusPaymentSuccessful,
		StatusPaymentFailed, StatusPaymentOrphaned,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("Terminal() = false for %s", s)
		}
	}
	for _, s := range []Status{StatusPendingZbConfirmation, StatusPendingPayment, Status("")} {
		if s.Terminal() {
			t.Errorf("Terminal() = true for %q", s)
		}
	}
}
