package ledger

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kudatec/karo/core"
)

var (
	termKeyRegex = regexp.MustCompile(`^\d{4}_T[1-3]$`)

	termKeyTag  = "termkey"
	termKeyText = "must be a term key like 2026_T1"
)

func init() {
	_ = core.Validate.RegisterValidation(termKeyTag, termKeyValidation)
	core.RegisterCustomTranslation(termKeyTag, termKeyText)
}

// termKeyValidation checks the year+period form of a term key.
func termKeyValidation(fl validator.FieldLevel) bool {
	return termKeyRegex.MatchString(fl.Field().String())
}

type (
	NewStudent struct {
		Name          string `json:"name" validate:"required,notblank"`
		Surname       string `json:"surname" validate:"required,notblank"`
		BoardingType  string `json:"boardingType" validate:"required,oneof=boarder day"`
		GradeCategory string `json:"gradeCategory" validate:"required,oneof=o_level a_level"`
		Grade         string `json:"grade" validate:"required,notblank"`
		GuardianEmail string `json:"guardianEmail" validate:"omitempty,email"`
		Username      string `json:"username" validate:"required,alphanum,min=3"`
		Password      string `json:"password" validate:"omitempty,min=8"`
		ActorID       string `json:"-"`
	}

	CashPayment struct {
		StudentID string          `json:"studentId" validate:"required,notblank"`
		TermKey   string          `json:"termKey" validate:"required,termkey"`
		Amount    decimal.Decimal `json:"amount" validate:"dgt0"`
		ActorID   string          `json:"-"`
	}

	FeeAdjustment struct {
		StudentID string          `json:"studentId" validate:"required,notblank"`
		TermKey   string          `json:"termKey" validate:"required,termkey"`
		Type      string          `json:"type" validate:"required,oneof=debit credit"`
		Amount    decimal.Decimal `json:"amount" validate:"dgt0"`
		Reason    string          `json:"reason" validate:"required,notblank"`
		ActorID   string          `json:"-"`
	}

	TermActivation struct {
		Key     string `json:"key" validate:"required,termkey"`
		ActorID string `json:"-"`
	}
)

func (ns *NewStudent) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	ns.Surname = core.CleanString(ns.Surname)
	ns.Grade = core.CleanString(ns.Grade)
	ns.Username = core.CleanString(ns.Username, true /* lower */)
	ns.GuardianEmail = core.CleanString(ns.GuardianEmail, true /* lower */)
	return core.Validate.Struct(ns)
}

func (cp *CashPayment) Validate() error {
	cp.StudentID = core.CleanString(cp.StudentID)
	cp.TermKey = core.CleanString(cp.TermKey)
	return core.Validate.Struct(cp)
}

func (fa *FeeAdjustment) Validate() error {
	fa.StudentID = core.CleanString(fa.StudentID)
	fa.TermKey = core.CleanString(fa.TermKey)
	fa.Reason = core.CleanString(fa.Reason)
	return core.Validate.Struct(fa)
}

func (ta *TermActivation) Validate() error {
	ta.Key = core.CleanString(ta.Key)
	return core.Validate.Struct(ta)
}

// Validate rejects a schedule with any zero or negative rate; committing one
// would silently rebill the whole population with broken fees.
func (fs *FeeSchedule) Validate() error {
	return core.Validate.Struct(fs)
}
