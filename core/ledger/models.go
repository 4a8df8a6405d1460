package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// Boarding types
const (
	BoardingBoarder = "boarder"
	BoardingDay     = "day"
)

// Grade categories
const (
	GradeCategoryOLevel = "o_level"
	GradeCategoryALevel = "a_level"
)

// A-Level tracks, in fee resolution priority order.
const (
	TrackSciences    = "Sciences"
	TrackCommercials = "Commercials"
	TrackArts        = "Arts"
)

// Portal roles
const (
	RoleAdmin   = "admin"
	RoleBursar  = "bursar"
	RoleStudent = "student"
)

// Transaction types
const (
	TxTypeCash       = "cash"
	TxTypeGateway    = "gateway"
	TxTypeAdjustment = "adjustment"
)

// Adjustment types. A debit raises the term's fee; a credit raises the
// term's paid figure (not a reduced fee) so the payment trail stays intact.
const (
	AdjustmentDebit  = "debit"
	AdjustmentCredit = "credit"
)

// Status is a transaction's lifecycle state.
type Status string

const (
	// cash payments and adjustments are born settled
	StatusCompleted Status = "completed"

	// gateway payment lifecycle
	StatusPendingZbConfirmation Status = "pending_zb_confirmation"
	StatusPendingPayment        Status = "pending_payment"
	StatusInitiationFailed      Status = "zb_initiation_failed"
	StatusPaymentSuccessful     Status = "zb_payment_successful"
	StatusPaymentFailed         Status = "zb_payment_failed"
	// the gateway settled but the student or term was gone; the money is
	// recorded here instead of being silently dropped
	StatusPaymentOrphaned Status = "zb_payment_orphaned"
)

// Terminal reports whether no further ledger effect may follow this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusInitiationFailed, StatusPaymentSuccessful,
		StatusPaymentFailed, StatusPaymentOrphaned:
		return true
	}
	return false
}

type (
	// Term holds one billing period's figures for a student.
	Term struct {
		Fee  decimal.Decimal `json:"fee"`
		Paid decimal.Decimal `json:"paid"`
	}

	// Terms maps term keys ("2026_T1") to their figures.
	Terms map[string]Term

	// Financials is a student's ledger. Balance is derived from Terms and is
	// only ever written together with them.
	Financials struct {
		Balance decimal.Decimal `json:"balance"`
		Terms   Terms           `json:"terms"`
	}

	Student struct {
		ID            string     `json:"id"`
		Name          string     `json:"name"`
		Surname       string     `json:"surname"`
		BoardingType  string     `json:"boardingType"`
		GradeCategory string     `json:"gradeCategory"`
		Grade         string     `json:"grade"` // label, e.g. "Upper 6 Sciences"
		GuardianEmail string     `json:"guardianEmail,omitempty"`
		Financials    Financials `json:"financials"`
		CreatedAt     time.Time  `json:"createdAt"` // UTC
		UpdatedAt     time.Time  `json:"updatedAt"` // UTC
	}

	// User is the portal credential record kept alongside a student (or staff
	// member). Authentication itself happens outside this service; the record
	// exists so student creation and cascading deletion own it.
	User struct {
		ID           string    `json:"id"`
		Username     string    `json:"username"`
		Email        string    `json:"email,omitempty"`
		Role         string    `json:"role"` // admin | bursar | student
		PasswordHash []byte    `json:"passwordHash,omitempty"`
		CreatedAt    time.Time `json:"createdAt"` // UTC
	}

	Transaction struct {
		ID             string          `json:"id"`
		StudentID      string          `json:"studentId"`
		Amount         decimal.Decimal `json:"amount"`
		Type           string          `json:"type"` // cash | gateway | adjustment
		AdjustmentType string          `json:"adjustmentType,omitempty"`
		Status         Status          `json:"status"`
		TermKey        string          `json:"termKey,omitempty"`
		ReceiptNumber  string          `json:"receiptNumber,omitempty"`
		OrderReference string          `json:"orderReference,omitempty"`
		GatewayRef     string          `json:"gatewayRef,omitempty"`
		PaymentURL     string          `json:"paymentUrl,omitempty"`
		Note           string          `json:"note,omitempty"`
		ActorID        string          `json:"actorId"`
		CreatedAt      time.Time       `json:"createdAt"` // UTC
		UpdatedAt      time.Time       `json:"updatedAt"` // UTC
	}

	// Notification is an in-app notification record; delivery is the
	// frontend's concern.
	Notification struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId"`
		Title     string    `json:"title"`
		Body      string    `json:"body"`
		Read      bool      `json:"read"`
		CreatedAt time.Time `json:"createdAt"` // UTC
	}
)

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (s *Student) FullName() string {
	return strings.TrimSpace(s.Name + " " + s.Surname)
}

// ComputeBalance derives the outstanding balance: Σ(fee - paid) over all
// terms. Zero for a nil or empty term map; missing figures count as zero.
func ComputeBalance(terms Terms) decimal.Decimal {
	balance := decimal.Zero
	for _, term := range terms {
		balance = balance.Add(term.Fee.Sub(term.Paid))
	}
	return balance
}

// WithTerms returns financials holding terms with the balance rederived.
// Balance is never patched on its own; it always travels with a terms change.
func WithTerms(terms Terms) Financials {
	return Financials{Balance: ComputeBalance(terms), Terms: terms}
}

func (f Financials) clone() Terms {
	terms := make(Terms, len(f.Terms))
	for key, term := range f.Terms {
		terms[key] = term
	}
	return terms
}

// PayTerm adds amount to the term's paid figure. ErrTermNotFound when the
// student does not carry the term. The receiver is not mutated.
func (f Financials) PayTerm(key string, amount decimal.Decimal) (Financials, error) {
	term, ok := f.Terms[key]
	if !ok {
		return Financials{}, ErrTermNotFound
	}
	terms := f.clone()
	term.Paid = term.Paid.Add(amount)
	terms[key] = term
	return WithTerms(terms), nil
}

// DebitTerm adds amount to the term's fee figure (a debit adjustment).
func (f Financials) DebitTerm(key string, amount decimal.Decimal) (Financials, error) {
	term, ok := f.Terms[key]
	if !ok {
		return Financials{}, ErrTermNotFound
	}
	terms := f.clone()
	term.Fee = term.Fee.Add(amount)
	terms[key] = term
	return WithTerms(terms), nil
}
