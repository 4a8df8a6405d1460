package ledger

import "github.com/kudatec/karo/storage/docstore"

// Document tree layout. All ledger state shares these roots:
//
//	students/{id}               Student
//	users/{id}                  User (portal credential record)
//	transactions/{id}           Transaction
//	orderRefs/{ref}             transaction id index for gateway lookups
//	notifications/{userId}/{id} Notification
//	config/activeTerms          []string, ordered
//	config/feeSchedule          FeeSchedule
const (
	StudentsRoot      = "students"
	UsersRoot         = "users"
	TransactionsRoot  = "transactions"
	OrderRefsRoot     = "orderRefs"
	NotificationsRoot = "notifications"

	ActiveTermsPath = "config/activeTerms"
	FeeSchedulePath = "config/feeSchedule"
)

func StudentPath(id string) string {
	return docstore.Join(StudentsRoot, id)
}

func StudentFinancialsPath(id string) string {
	return docstore.Join(StudentsRoot, id, "financials")
}

func UserPath(id string) string {
	return docstore.Join(UsersRoot, id)
}

func TransactionPath(id string) string {
	return docstore.Join(TransactionsRoot, id)
}

func TransactionStatusPath(id string) string {
	return docstore.Join(TransactionsRoot, id, "status")
}

func OrderRefPath(ref string) string {
	return docstore.Join(OrderRefsRoot, ref)
}

func NotificationPath(userID, id string) string {
	return docstore.Join(NotificationsRoot, userID, id)
}
