package ledger

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/kudatec/karo/core"
	"github.com/kudatec/karo/storage/docstore"
)

var (
	// errors
	ErrStudentNotFound   = errors.New("student not found")
	ErrTermNotFound      = errors.New("student does not carry this term")
	ErrTermActive        = errors.New("term is already active")
	ErrLastActiveTerm    = errors.New("cannot remove the last active term")
	ErrTermNotActive     = errors.New("term is not active")
	ErrFeeScheduleNotSet = errors.New("fee schedule has not been configured")
	ErrUsernameExists    = errors.New("a user with this username already exists")
)

// Service owns every ledger mutation. Each operation is a bounded sequence of
// reads, one local computation and one atomic multi-path write; derived
// fields (balance) are only ever written here or by the reconciliation path,
// always together with the terms they derive from.
type Service struct {
	store docstore.Store
	mail  core.EmailService
}

func NewService(store docstore.Store, mailSvc core.EmailService) *Service {
	return &Service{store: store, mail: mailSvc}
}

// Store exposes the underlying document store to collaborating services.
func (svc *Service) Store() docstore.Store { return svc.store }

func (svc *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	var student Student
	if err := svc.store.Get(ctx, StudentPath(id), &student); err != nil {
		if errors.Cause(err) == docstore.ErrPathNotFound {
			return Student{}, ErrStudentNotFound
		}
		return Student{}, errors.Wrap(err, "reading student")
	}
	return student, nil
}

// QueryAllStudents returns all students sorted by surname then name.
func (svc *Service) QueryAllStudents(ctx context.Context) ([]Student, error) {
	byID := make(map[string]Student)
	if err := svc.store.Get(ctx, StudentsRoot, &byID); err != nil {
		if errors.Cause(err) == docstore.ErrPathNotFound {
			return []Student{}, nil
		}
		return nil, errors.Wrap(err, "reading students")
	}
	students := make([]Student, 0, len(byID))
	for _, s := range byID {
		students = append(students, s)
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].Surname != students[j].Surname {
			return students[i].Surname < students[j].Surname
		}
		return students[i].Name < students[j].Name
	})
	return students, nil
}

// QueryStudentTransactions returns a student's transactions, newest first.
func (svc *Service) QueryStudentTransactions(ctx context.Context, studentID string) ([]Transaction, error) {
	byID := make(map[string]Transaction)
	if err := svc.store.Get(ctx, TransactionsRoot, &byID); err != nil {
		if errors.Cause(err) == docstore.ErrPathNotFound {
			return []Transaction{}, nil
		}
		return nil, errors.Wrap(err, "reading transactions")
	}
	txs := make([]Transaction, 0)
	for _, tx := range byID {
		if tx.StudentID == studentID {
			txs = append(txs, tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	return txs, nil
}

func (svc *Service) ActiveTerms(ctx context.Context) ([]string, error) {
	terms := make([]string, 0)
	if err := svc.store.Get(ctx, ActiveTermsPath, &terms); err != nil {
		if errors.Cause(err) == docstore.ErrPathNotFound {
			return []string{}, nil
		}
		return nil, errors.Wrap(err, "reading active terms")
	}
	return terms, nil
}

func (svc *Service) CurrentFeeSchedule(ctx context.Context) (FeeSchedule, error) {
	var schedule FeeSchedule
	if err := svc.store.Get(ctx, FeeSchedulePath, &schedule); err != nil {
		if errors.Cause(err) == docstore.ErrPathNotFound {
			return FeeSchedule{}, ErrFeeScheduleNotSet
		}
		return FeeSchedule{}, errors.Wrap(err, "reading fee schedule")
	}
	return schedule, nil
}

// CreateStudent creates the student, bills them for every active term and
// writes their portal credential record, all in one atomic write.
func (svc *Service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	schedule, err := svc.CurrentFeeSchedule(ctx)
	if err != nil {
		return Student{}, err
	}
	activeTerms, err := svc.ActiveTerms(ctx)
	if err != nil {
		return Student{}, err
	}
	if err := svc.checkUsernameUniqueness(ctx, ns.Username); err != nil {
		return Student{}, err
	}

	now := time.Now().UTC()
	student := Student{
		ID:            NewID(),
		Name:          ns.Name,
		Surname:       ns.Surname,
		BoardingType:  ns.BoardingType,
		GradeCategory: ns.GradeCategory,
		Grade:         ns.Grade,
		GuardianEmail: ns.GuardianEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	student.Financials = WithTerms(BillTerms(student, activeTerms, schedule))

	usr := User{
		ID:        student.ID,
		Username:  ns.Username,
		Email:     ns.GuardianEmail,
		Role:      RoleStudent,
		CreatedAt: now,
	}
	if ns.Password != "" {
		if err := usr.SetPassword(ns.Password); err != nil {
			return Student{}, errors.Wrap(err, "hashing password")
		}
	}

	updates := map[string]interface{}{
		StudentPath(student.ID): student,
		UserPath(student.ID):    usr,
	}
	if err := svc.store.Update(ctx, updates); err != nil {
		return Student{}, errors.Wrap(err, "creating student")
	}
	return student, nil
}

// CreateStaff creates a staff credential record (admin or bursar). Staff have
// no ledger; only the user record is written, after the same username
// uniqueness check student creation runs.
func (svc *Service) CreateStaff(ctx context.Context, username, password, role string) (User, error) {
	username = core.CleanString(username, true /* lower */)
	if err := svc.checkUsernameUniqueness(ctx, username); err != nil {
		return User{}, err
	}

	usr := User{
		ID:        NewID(),
		Username:  username,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := usr.SetPassword(password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	if err := svc.store.Set(ctx, UserPath(usr.ID), usr); err != nil {
		return User{}, errors.Wrap(err, "creating staff user")
	}
	return usr, nil
}

// DeleteStudent removes the student, their credential record, every
// transaction referencing them (and its order-reference index entry) and
// their notifications, as one atomic write.
func (svc *Service) DeleteStudent(ctx context.Context, id string) error {
	if _, err := svc.GetStudent(ctx, id); err != nil {
		return err
	}

	updates := map[string]interface{}{
		StudentPath(id):                      nil,
		UserPath(id):                         nil,
		docstore.Join(NotificationsRoot, id): nil,
	}

	txs, err := svc.QueryStudentTransactions(ctx, id)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		updates[TransactionPath(tx.ID)] = nil
		if tx.OrderReference != "" {
			updates[OrderRefPath(tx.OrderReference)] = nil
		}
	}

	return errors.Wrap(svc.store.Update(ctx, updates), "deleting student")
}

// RecordCashPayment applies a cash payment to the named term: paid is bumped,
// balance rederived, and the completed transaction record plus a student
// notification land in the same write. A receipt email goes out after the
// commit when the student has a guardian email on file.
func (svc *Service) RecordCashPayment(ctx context.Context, cp CashPayment) (Transaction, error) {
	student, err := svc.GetStudent(ctx, cp.StudentID)
	if err != nil {
		return Transaction{}, err
	}

	fin, err := student.Financials.PayTerm(cp.TermKey, cp.Amount)
	if err != nil {
		return Transaction{}, err
	}

	now := time.Now().UTC()
	tx := NewCashTransaction(cp.StudentID, cp.TermKey, cp.ActorID, cp.Amount, now)
	note := NewNotification(cp.StudentID, "Payment received",
		fmt.Sprintf("A payment of %s %s was received for %s (receipt %s).",
			core.Conf.CurrencyCode, cp.Amount.StringFixed(2), cp.TermKey, tx.ReceiptNumber), now)

	updates := map[string]interface{}{
		StudentFinancialsPath(cp.StudentID):    fin,
		TransactionPath(tx.ID):                 tx,
		NotificationPath(note.UserID, note.ID): note,
	}
	if err := svc.store.Update(ctx, updates); err != nil {
		return Transaction{}, errors.Wrap(err, "recording cash payment")
	}

	svc.sendReceipt(student, tx, fin.Balance)
	return tx, nil
}

// AdjustFees applies a manual adjustment: a debit raises the term's fee, a
// credit raises the term's paid figure. Both rederive the balance.
func (svc *Service) AdjustFees(ctx context.Context, fa FeeAdjustment) (Transaction, error) {
	student, err := svc.GetStudent(ctx, fa.StudentID)
	if err != nil {
		return Transaction{}, err
	}

	var fin Financials
	switch fa.Type {
	case AdjustmentDebit:
		fin, err = student.Financials.DebitTerm(fa.TermKey, fa.Amount)
	case AdjustmentCredit:
		fin, err = student.Financials.PayTerm(fa.TermKey, fa.Amount)
	default:
		return Transaction{}, core.NewValidationError(nil,
			core.FieldError{Field: "type", Error: "must be debit or credit"})
	}
	if err != nil {
		return Transaction{}, err
	}

	now := time.Now().UTC()
	tx := NewAdjustmentTransaction(fa.StudentID, fa.TermKey, fa.Type, fa.Reason, fa.ActorID, fa.Amount, now)
	note := NewNotification(fa.StudentID, "Fees adjusted",
		fmt.Sprintf("A %s adjustment of %s %s was applied to %s: %s",
			fa.Type, core.Conf.CurrencyCode, fa.Amount.StringFixed(2), fa.TermKey, fa.Reason), now)

	updates := map[string]interface{}{
		StudentFinancialsPath(fa.StudentID):    fin,
		TransactionPath(tx.ID):                 tx,
		NotificationPath(note.UserID, note.ID): note,
	}
	if err := svc.store.Update(ctx, updates); err != nil {
		return Transaction{}, errors.Wrap(err, "recording adjustment")
	}
	return tx, nil
}

// ActivateTerm appends the key to the active term list and bills every
// student that does not carry it yet. Returns the number of students billed.
func (svc *Service) ActivateTerm(ctx context.Context, ta TermActivation) (int, error) {
	activeTerms, err := svc.ActiveTerms(ctx)
	if err != nil {
		return 0, err
	}
	for _, key := range activeTerms {
		if key == ta.Key {
			return 0, ErrTermActive
		}
	}
	schedule, err := svc.CurrentFeeSchedule(ctx)
	if err != nil {
		return 0, err
	}
	students, err := svc.QueryAllStudents(ctx)
	if err != nil {
		return 0, err
	}

	updates := map[string]interface{}{
		ActiveTermsPath: append(activeTerms, ta.Key),
	}
	billed := 0
	for _, student := range students {
		if _, ok := student.Financials.Terms[ta.Key]; ok {
			continue
		}
		fin := WithTerms(BillTerms(student, []string{ta.Key}, schedule))
		updates[StudentFinancialsPath(student.ID)] = fin
		billed++
	}

	if err := svc.store.Update(ctx, updates); err != nil {
		return 0, errors.Wrap(err, "activating term")
	}
	return billed, nil
}

// RemoveTerm drops the key from the active term list. Student ledgers keep
// their existing entries; removal only stops future billing. The last
// remaining active term cannot be removed.
func (svc *Service) RemoveTerm(ctx context.Context, key, actorID string) error {
	activeTerms, err := svc.ActiveTerms(ctx)
	if err != nil {
		return err
	}

	remaining := make([]string, 0, len(activeTerms))
	found := false
	for _, k := range activeTerms {
		if k == key {
			found = true
			continue
		}
		remaining = append(remaining, k)
	}
	if !found {
		return ErrTermNotActive
	}
	if len(remaining) == 0 {
		return ErrLastActiveTerm
	}

	updates := map[string]interface{}{ActiveTermsPath: remaining}
	return errors.Wrap(svc.store.Update(ctx, updates), "removing term")
}

// UpdateFeeSchedule replaces the schedule and rebills the whole population:
// every term entry a student already carries gets the freshly resolved fee,
// paid figures stay untouched, balances are rederived. One atomic write
// covers the schedule and every changed ledger. Returns the number of
// students rebilled.
func (svc *Service) UpdateFeeSchedule(ctx context.Context, schedule FeeSchedule, actorID string) (int, error) {
	students, err := svc.QueryAllStudents(ctx)
	if err != nil {
		return 0, err
	}

	updates := map[string]interface{}{
		FeeSchedulePath: schedule,
	}
	rebilled := 0
	for _, student := range students {
		if len(student.Financials.Terms) == 0 {
			continue
		}
		fin := WithTerms(RebillTerms(student, schedule))
		updates[StudentFinancialsPath(student.ID)] = fin
		rebilled++
	}

	if err := svc.store.Update(ctx, updates); err != nil {
		return 0, errors.Wrap(err, "updating fee schedule")
	}
	return rebilled, nil
}

func (svc *Service) checkUsernameUniqueness(ctx context.Context, username string) error {
	users := make(map[string]User)
	if err := svc.store.Get(ctx, UsersRoot, &users); err != nil {
		if errors.Cause(err) == docstore.ErrPathNotFound {
			return nil
		}
		return errors.Wrap(err, "reading users")
	}
	for _, usr := range users {
		if usr.Username == username {
			return core.NewValidationError(ErrUsernameExists,
				core.FieldError{Field: "username", Error: ErrUsernameExists.Error()})
		}
	}
	return nil
}

// sendReceipt emails a payment receipt. Best effort; the ledger write has
// already committed and a mail failure must not fail the payment.
func (svc *Service) sendReceipt(student Student, tx Transaction, balance decimal.Decimal) {
	if svc.mail == nil || student.GuardianEmail == "" {
		return
	}
	svc.mail.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.FullName(), Address: student.GuardianEmail}},
		Subject:      "Payment receipt " + tx.ReceiptNumber,
		TemplateName: "payment-receipt",
		TemplateData: struct {
			StudentName   string
			ReceiptNumber string
			TermKey       string
			Amount        string
			Balance       string
			Currency      string
		}{
			StudentName:   student.FullName(),
			ReceiptNumber: tx.ReceiptNumber,
			TermKey:       tx.TermKey,
			Amount:        tx.Amount.StringFixed(2),
			Balance:       balance.StringFixed(2),
			Currency:      core.Conf.CurrencyCode,
		},
	})
}
