package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kudatec/karo/core/ledger"
	"github.com/kudatec/karo/core/payments"
)

func Test_paymentApi_cashPayment(t *testing.T) {
	env := setupAPI(t)
	student := env.createStudent(t, "tariro")

	body := marchallObj(t, map[string]string{
		"studentId": student.ID, "termKey": "2026_T1", "amount": "50",
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/cash", bursarToken(t), body)
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	tx := resp["transaction"].(map[string]interface{})
	assert.Equal(t, "cash", tx["type"])
	assert.Equal(t, "completed", tx["status"])
	assert.Equal(t, "bursar-1", tx["actorId"])
	assert.NotEmpty(t, tx["receiptNumber"])

	got, err := env.ledgerSvc.GetStudent(env.ctx, student.ID)
	assert.NoError(t, err)
	assert.True(t, got.Financials.Balance.Equal(amt("150")))

	// recording against a term the student does not carry
	body = marchallObj(t, map[string]string{
		"studentId": student.ID, "termKey": "2027_T3", "amount": "50",
	})
	req, rec = newAuthRequest(http.MethodPost, "/v1/payments/cash", bursarToken(t), body)
	env.server.ServeHTTP(rec, req)
	tt := httpTest{wantCode: http.StatusBadRequest, wantData: errBody(t, "student does not carry this term")}
	checkCodeAndData(t, tt, rec)

	// students cannot record cash
	req, rec = newAuthRequest(http.MethodPost, "/v1/payments/cash", studentToken(t, student.ID), body)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func Test_paymentApi_feeAdjustment(t *testing.T) {
	env := setupAPI(t)
	student := env.createStudent(t, "tariro")

	body := marchallObj(t, map[string]string{
		"studentId": student.ID, "termKey": "2026_T1", "type": "credit",
		"amount": "80", "reason": "sibling discount",
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/adjustments", adminToken(t), body)
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err := env.ledgerSvc.GetStudent(env.ctx, student.ID)
	assert.NoError(t, err)
	assert.True(t, got.Financials.Balance.Equal(amt("120")))

	// a reason is required on every adjustment
	body = marchallObj(t, map[string]string{
		"studentId": student.ID, "termKey": "2026_T1", "type": "debit", "amount": "10",
	})
	req, rec = newAuthRequest(http.MethodPost, "/v1/payments/adjustments", adminToken(t), body)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody(t, rec)
	assert.Contains(t, resp["error"].(map[string]interface{}), "reason")
}

func Test_paymentApi_zbpayInitiate(t *testing.T) {
	env := setupAPI(t)
	student := env.createStudent(t, "tariro")
	other := env.createStudent(t, "rudo")

	body := marchallObj(t, map[string]string{
		"studentId": student.ID, "termKey": "2026_T1", "amount": "120",
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/zbpay", studentToken(t, student.ID), body)
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	assert.Equal(t, "pending_payment", resp["status"])
	assert.Equal(t, "https://zbpay.test/pay/1", resp["paymentUrl"])
	assert.NotEmpty(t, resp["orderReference"])

	// a student cannot pay another student's fees
	req, rec = newAuthRequest(http.MethodPost, "/v1/payments/zbpay", studentToken(t, other.ID), body)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// staff can initiate on any student's behalf
	req, rec = newAuthRequest(http.MethodPost, "/v1/payments/zbpay", bursarToken(t), body)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_paymentApi_zbpayInitiateGatewayDown(t *testing.T) {
	env := setupAPI(t)
	student := env.createStudent(t, "tariro")
	env.gw.initiateErr = &payments.GatewayError{Msg: "gateway timeout"}

	body := marchallObj(t, map[string]string{
		"studentId": student.ID, "termKey": "2026_T1", "amount": "120",
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/zbpay", studentToken(t, student.ID), body)
	env.server.ServeHTTP(rec, req)

	tt := httpTest{wantCode: http.StatusBadGateway, wantData: errBody(t, "gateway timeout")}
	checkCodeAndData(t, tt, rec)
}

func Test_paymentApi_zbpayReconcile(t *testing.T) {
	env := setupAPI(t)
	student := env.createStudent(t, "tariro")

	body := marchallObj(t, map[string]string{
		"studentId": student.ID, "termKey": "2026_T1", "amount": "120",
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/zbpay", studentToken(t, student.ID), body)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	orderRef := decodeBody(t, rec)["orderReference"].(string)

	env.gw.status = payments.GatewayStatusPaid
	req, rec = newAuthRequest(http.MethodGet, "/v1/payments/zbpay/"+orderRef, studentToken(t, student.ID))
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	assert.Equal(t, string(ledger.StatusPaymentSuccessful), resp["status"])

	got, err := env.ledgerSvc.GetStudent(env.ctx, student.ID)
	assert.NoError(t, err)
	assert.True(t, got.Financials.Balance.Equal(amt("80")))
}

func Test_paymentApi_zbpayWebhook(t *testing.T) {
	env := setupAPI(t)
	student := env.createStudent(t, "tariro")

	body := marchallObj(t, map[string]string{
		"studentId": student.ID, "termKey": "2026_T1", "amount": "120",
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/zbpay", studentToken(t, student.ID), body)
	env.server.ServeHTTP(rec, req)
	orderRef := decodeBody(t, rec)["orderReference"].(string)

	// no token: the gateway cannot carry our JWTs
	hook := marchallObj(t, map[string]string{"orderReference": orderRef, "status": "PAID"})
	req, rec = newAuthRequest(http.MethodPost, "/v1/webhooks/zbpay", "", hook)
	env.server.ServeHTTP(rec, req)

	tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, map[string]interface{}{
		"success": true, "status": "zb_payment_successful",
	})}
	checkCodeAndData(t, tt, rec)

	// a retried webhook reports the stored terminal status without re-crediting
	req, rec = newAuthRequest(http.MethodPost, "/v1/webhooks/zbpay", "", hook)
	env.server.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
	got, err := env.ledgerSvc.GetStudent(env.ctx, student.ID)
	assert.NoError(t, err)
	assert.True(t, got.Financials.Terms["2026_T1"].Paid.Equal(amt("120")))

	// unknown order references are visible misroutes
	hook = marchallObj(t, map[string]string{"orderReference": "KARO-NOPE", "status": "PAID"})
	req, rec = newAuthRequest(http.MethodPost, "/v1/webhooks/zbpay", "", hook)
	env.server.ServeHTTP(rec, req)
	tt = httpTest{wantCode: http.StatusBadRequest, wantData: errBody(t, "transaction not found")}
	checkCodeAndData(t, tt, rec)
}
