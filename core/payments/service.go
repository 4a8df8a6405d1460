package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/kudatec/karo/core"
	"github.com/kudatec/karo/core/ledger"
	"github.com/kudatec/karo/storage/docstore"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// Service drives gateway payments: initiation against ZbPay and the
// reconciliation state machine fed by the poll and webhook paths.
type Service struct {
	store   docstore.Store
	gateway Gateway
}

func NewService(store docstore.Store, gateway Gateway) *Service {
	return &Service{store: store, gateway: gateway}
}

type InitiatePayment struct {
	StudentID string          `json:"studentId" validate:"required,notblank"`
	TermKey   string          `json:"termKey" validate:"required,termkey"`
	Amount    decimal.Decimal `json:"amount" validate:"dgt0"`
	ActorID   string          `json:"-"`
}

func (ip *InitiatePayment) Validate() error {
	ip.StudentID = core.CleanString(ip.StudentID)
	ip.TermKey = core.CleanString(ip.TermKey)
	return core.Validate.Struct(ip)
}

// WebhookEvent is the gateway-initiated result notification.
type WebhookEvent struct {
	OrderReference string          `json:"orderReference" validate:"required,notblank"`
	Status         string          `json:"status" validate:"required,notblank"`
	Amount         decimal.Decimal `json:"amount"`
	TransactionID  string          `json:"transactionId"`
}

func (we *WebhookEvent) Validate() error {
	we.OrderReference = core.CleanString(we.OrderReference)
	we.Status = core.CleanString(we.Status)
	return core.Validate.Struct(we)
}

// Initiate creates a pending_zb_confirmation transaction, asks the gateway
// for a hosted-payment URL and advances the transaction to pending_payment.
// A rejected or malformed gateway response parks the transaction in
// zb_initiation_failed and surfaces the error.
//
// The post-gateway advance is conditional on the transaction still being in
// pending_zb_confirmation: the gateway can deliver the result webhook before
// our own initiate call returns, and a settled transaction must never be
// dragged back to a pending state.
func (svc *Service) Initiate(ctx context.Context, ip InitiatePayment) (ledger.Transaction, error) {
	student, err := svc.getStudent(ctx, ip.StudentID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if _, ok := student.Financials.Terms[ip.TermKey]; !ok {
		return ledger.Transaction{}, ledger.ErrTermNotFound
	}

	now := time.Now().UTC()
	tx := ledger.NewGatewayTransaction(ip.StudentID, ip.TermKey, ip.ActorID, ip.Amount, now)

	// record the intent (and its order-reference index entry) before
	// talking to the gateway, so a crash mid-call leaves an auditable trail
	updates := map[string]interface{}{
		ledger.TransactionPath(tx.ID):          tx,
		ledger.OrderRefPath(tx.OrderReference): tx.ID,
	}
	if err := svc.store.Update(ctx, updates); err != nil {
		return ledger.Transaction{}, errors.Wrap(err, "recording payment intent")
	}

	resp, gwErr := svc.gateway.InitiateTransaction(ctx, InitiateRequest{
		Amount:         ip.Amount,
		CurrencyCode:   core.Conf.CurrencyCode,
		ReturnURL:      core.Conf.ZbPay.ReturnURL,
		ResultURL:      core.Conf.ZbPay.ResultURL,
		OrderReference: tx.OrderReference,
		ItemName:       fmt.Sprintf("%s school fees (%s)", student.FullName(), ip.TermKey),
	})

	now = time.Now().UTC()
	if gwErr != nil {
		tx.Status = ledger.StatusInitiationFailed
		tx.Note = gwErr.Error()
		tx.UpdatedAt = now
		applied, sErr := svc.advanceFromConfirmation(ctx, tx)
		if sErr != nil {
			return ledger.Transaction{}, errors.Wrap(sErr, "recording initiation failure")
		}
		if !applied {
			return svc.getByOrderRef(ctx, tx.OrderReference)
		}
		return tx, errors.Wrap(gwErr, "initiating gateway payment")
	}

	tx.Status = ledger.StatusPendingPayment
	tx.PaymentURL = resp.PaymentURL
	tx.GatewayRef = resp.TransactionID
	tx.UpdatedAt = now
	applied, err := svc.advanceFromConfirmation(ctx, tx)
	if err != nil {
		return ledger.Transaction{}, errors.Wrap(err, "recording initiation")
	}
	if !applied {
		return svc.getByOrderRef(ctx, tx.OrderReference)
	}
	return tx, nil
}

// advanceFromConfirmation writes tx back only while it still awaits the
// gateway response. Losing the swap means a webhook settled the payment in
// the meantime; the stored record wins and is returned by the caller.
func (svc *Service) advanceFromConfirmation(ctx context.Context, tx ledger.Transaction) (bool, error) {
	return svc.store.UpdateIf(ctx,
		map[string]interface{}{ledger.TransactionStatusPath(tx.ID): ledger.StatusPendingZbConfirmation},
		map[string]interface{}{ledger.TransactionPath(tx.ID): tx})
}

// Reconcile is the poll path: look the transaction up by order reference,
// ask the gateway for its status and settle. A transaction already terminal
// is reported as-is without another gateway call.
func (svc *Service) Reconcile(ctx context.Context, orderReference string) (ledger.Transaction, error) {
	tx, err := svc.getByOrderRef(ctx, orderReference)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if tx.Status.Terminal() {
		return tx, nil
	}

	status, err := svc.gateway.CheckPayment(ctx, orderReference)
	if err != nil {
		// hard failure: do not advance state on an unreadable response
		return ledger.Transaction{}, errors.Wrap(err, "checking gateway payment")
	}
	return svc.settle(ctx, tx.ID, status.Status)
}

// HandleWebhook is the push path. It applies the identical transition rule
// as the poll path; the two race freely and the store's conditional update
// keeps the credit exactly-once.
func (svc *Service) HandleWebhook(ctx context.Context, ev WebhookEvent) (ledger.Transaction, error) {
	tx, err := svc.getByOrderRef(ctx, ev.OrderReference)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return svc.settle(ctx, tx.ID, ev.Status)
}

// settle advances a gateway transaction according to the reported status.
//
// The transition is guarded by a conditional update on the transaction's
// status: apply only if it still equals what we read. When two drivers race,
// exactly one wins the swap and applies the credit; the loser re-reads,
// finds a terminal status and reports it without touching the ledger.
func (svc *Service) settle(ctx context.Context, txID, gatewayStatus string) (ledger.Transaction, error) {
	for {
		var tx ledger.Transaction
		if err := svc.store.Get(ctx, ledger.TransactionPath(txID), &tx); err != nil {
			if errors.Cause(err) == docstore.ErrPathNotFound {
				return ledger.Transaction{}, ErrTransactionNotFound
			}
			return ledger.Transaction{}, errors.Wrap(err, "reading transaction")
		}

		// terminal transactions are never re-applied; report the stored status
		if tx.Status.Terminal() {
			return tx, nil
		}

		now := time.Now().UTC()
		var applied bool
		var err error

		switch outcomeFor(gatewayStatus) {
		case outcomePending:
			return tx, nil

		case outcomeFailure:
			next := tx
			next.Status = ledger.StatusPaymentFailed
			next.UpdatedAt = now
			applied, err = svc.store.UpdateIf(ctx,
				map[string]interface{}{ledger.TransactionStatusPath(tx.ID): tx.Status},
				map[string]interface{}{ledger.TransactionPath(tx.ID): next})
			if err != nil {
				return ledger.Transaction{}, errors.Wrap(err, "settling transaction")
			}
			if applied {
				return next, nil
			}

		case outcomeSuccess:
			next, conds, updates, sErr := svc.successUpdates(ctx, tx, now)
			if sErr != nil {
				return ledger.Transaction{}, sErr
			}
			applied, err = svc.store.UpdateIf(ctx, conds, updates)
			if err != nil {
				return ledger.Transaction{}, errors.Wrap(err, "settling transaction")
			}
			if applied {
				return next, nil
			}
		}
		// lost a condition; re-read and go again. Either another driver
		// settled first (now terminal) or the ledger moved under us and
		// the credit must be rebuilt on fresh figures.
	}
}

// successUpdates builds the multi-path write for a successful settlement:
// credit the term, rederive the balance, advance the transaction and notify
// the student. A student or term missing at settlement time parks the
// transaction in zb_payment_orphaned instead of crediting anything.
//
// Alongside the status condition, the write is conditional on the financials
// snapshot it was derived from: a cash payment or adjustment landing between
// the read and the swap would otherwise be overwritten by stale figures.
func (svc *Service) successUpdates(ctx context.Context, tx ledger.Transaction, now time.Time) (ledger.Transaction, map[string]interface{}, map[string]interface{}, error) {
	next := tx
	next.UpdatedAt = now
	conds := map[string]interface{}{ledger.TransactionStatusPath(tx.ID): tx.Status}

	student, err := svc.getStudent(ctx, tx.StudentID)
	if err == ledger.ErrStudentNotFound {
		next.Status = ledger.StatusPaymentOrphaned
		next.Note = "student no longer exists at settlement"
		return next, conds, map[string]interface{}{ledger.TransactionPath(tx.ID): next}, nil
	}
	if err != nil {
		return ledger.Transaction{}, nil, nil, err
	}

	fin, err := student.Financials.PayTerm(tx.TermKey, tx.Amount)
	if err == ledger.ErrTermNotFound {
		next.Status = ledger.StatusPaymentOrphaned
		next.Note = fmt.Sprintf("term %s no longer exists at settlement", tx.TermKey)
		return next, conds, map[string]interface{}{ledger.TransactionPath(tx.ID): next}, nil
	}
	if err != nil {
		return ledger.Transaction{}, nil, nil, err
	}

	next.Status = ledger.StatusPaymentSuccessful
	note := ledger.NewNotification(tx.StudentID, "Payment confirmed",
		fmt.Sprintf("Your ZbPay payment of %s %s for %s was confirmed (ref %s).",
			core.Conf.CurrencyCode, tx.Amount.StringFixed(2), tx.TermKey, tx.OrderReference), now)

	conds[ledger.StudentFinancialsPath(tx.StudentID)] = student.Financials
	return next, conds, map[string]interface{}{
		ledger.TransactionPath(tx.ID):                 next,
		ledger.StudentFinancialsPath(tx.StudentID):    fin,
		ledger.NotificationPath(note.UserID, note.ID): note,
	}, nil
}

func (svc *Service) getStudent(ctx context.Context, id string) (ledger.Student, error) {
	var student ledger.Student
	if err := svc.store.Get(ctx, ledger.StudentPath(id), &student); err != nil {
		if errors.Cause(err) == docstore.ErrPathNotFound {
			return ledger.Student{}, ledger.ErrStudentNotFound
		}
		return ledger.Student{}, errors.Wrap(err, "reading student")
	}
	return student, nil
}

func (svc *Service) getByOrderRef(ctx context.Context, orderReference string) (ledger.Transaction, error) {
	var txID string
	if err := svc.store.Get(ctx, ledger.OrderRefPath(orderReference), &txID); err != nil {
		if errors.Cause(err) == docstore.ErrPathNotFound {
			return ledger.Transaction{}, ErrTransactionNotFound
		}
		return ledger.Transaction{}, errors.Wrap(err, "resolving order reference")
	}
	var tx ledger.Transaction
	if err := svc.store.Get(ctx, ledger.TransactionPath(txID), &tx); err != nil {
		if errors.Cause(err) == docstore.ErrPathNotFound {
			return ledger.Transaction{}, ErrTransactionNotFound
		}
		return ledger.Transaction{}, errors.Wrap(err, "reading transaction")
	}
	return tx, nil
}
