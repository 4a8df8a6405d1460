package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kudatec/karo/core/ledger"
	"github.com/kudatec/karo/core/payments"
)

type paymentApi struct {
	ledgerSvc  *ledger.Service
	paymentSvc *payments.Service
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, ledgerSvc *ledger.Service, paymentSvc *payments.Service) {
	api := paymentApi{ledgerSvc: ledgerSvc, paymentSvc: paymentSvc}

	// the gateway posts results here; it cannot carry our JWTs
	g.POST("/webhooks/zbpay", api.zbpayWebhook)

	pg := g.Group("/payments", jwt)
	staff := staffMiddleware(ledger.RoleAdmin, ledger.RoleBursar)
	pg.POST("/cash", api.cashPayment, staff)
	pg.POST("/adjustments", api.feeAdjustment, staff)
	pg.POST("/zbpay", api.zbpayInitiate)
	pg.GET("/zbpay/:orderRef", api.zbpayReconcile)
}

// Handlers

func (api *paymentApi) cashPayment(ctx echo.Context) error {
	data := new(ledger.CashPayment)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	data.ActorID = claims.Subject

	tx, err := api.ledgerSvc.RecordCashPayment(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return success(ctx, http.StatusOK, echo.Map{"transaction": tx})
}

func (api *paymentApi) feeAdjustment(ctx echo.Context) error {
	data := new(ledger.FeeAdjustment)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	data.ActorID = claims.Subject

	tx, err := api.ledgerSvc.AdjustFees(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return success(ctx, http.StatusOK, echo.Map{"transaction": tx})
}

// zbpayInitiate starts a gateway payment. Students may only pay their own
// fees; staff can initiate on any student's behalf.
func (api *paymentApi) zbpayInitiate(ctx echo.Context) error {
	data := new(payments.InitiatePayment)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if !claims.IsAdmin() && !claims.IsBursar() && claims.Subject != data.StudentID {
		return errHttpForbidden
	}
	data.ActorID = claims.Subject

	tx, err := api.paymentSvc.Initiate(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return success(ctx, http.StatusOK, echo.Map{
		"transactionId":  tx.ID,
		"orderReference": tx.OrderReference,
		"paymentUrl":     tx.PaymentURL,
		"status":         tx.Status,
	})
}

// zbpayReconcile is the poll path of reconciliation: check the gateway and
// settle if the outcome is final. Safe to call any number of times.
func (api *paymentApi) zbpayReconcile(ctx echo.Context) error {
	tx, err := api.paymentSvc.Reconcile(ctx.Request().Context(), ctx.Param("orderRef"))
	if err != nil {
		return err
	}
	return success(ctx, http.StatusOK, echo.Map{"status": tx.Status, "transaction": tx})
}

// zbpayWebhook is the push path; it applies the same transition rule as the
// poll path. Unknown order references yield a 400 so the gateway retries
// visible misroutes instead of burying them.
func (api *paymentApi) zbpayWebhook(ctx echo.Context) error {
	data := new(payments.WebhookEvent)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}

	tx, err := api.paymentSvc.HandleWebhook(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return success(ctx, http.StatusOK, echo.Map{"status": tx.Status})
}
