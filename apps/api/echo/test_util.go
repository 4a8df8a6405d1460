package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/kudatec/karo/core"
	"github.com/kudatec/karo/core/ledger"
	"github.com/kudatec/karo/core/payments"
	inmemstore "github.com/kudatec/karo/storage/docstore/inmem"
)

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// nopLogger satisfies core.Logger for tests.
type nopLogger struct{}

func (nopLogger) Enable(bool)                     {}
func (nopLogger) Debug(string, ...interface{})    {}
func (nopLogger) Info(string, ...interface{})     {}
func (nopLogger) Warn(string, ...interface{})     {}
func (nopLogger) Error(string, ...interface{})    {}
func (nopLogger) Critical(string, ...interface{}) {}

// fakeGateway scripts the payment gateway for handler tests.
type fakeGateway struct {
	initiateErr error
	status      string
}

var _ payments.Gateway = (*fakeGateway)(nil)

func (g *fakeGateway) InitiateTransaction(context.Context, payments.InitiateRequest) (payments.InitiateResponse, error) {
	if g.initiateErr != nil {
		return payments.InitiateResponse{}, g.initiateErr
	}
	return payments.InitiateResponse{PaymentURL: "https://zbpay.test/pay/1", TransactionID: "zb-1"}, nil
}

func (g *fakeGateway) CheckPayment(context.Context, string) (payments.StatusResponse, error) {
	status := g.status
	if status == "" {
		status = payments.GatewayStatusPaid
	}
	return payments.StatusResponse{Status: status}, nil
}

type testEnv struct {
	server    http.Handler
	ledgerSvc *ledger.Service
	gw        *fakeGateway
	ctx       context.Context
}

func setupAPI(t *testing.T) *testEnv {
	t.Helper()
	core.Conf.TestMode = true

	ctx := context.Background()
	store := inmemstore.Open()
	ledgerSvc := ledger.NewService(store, nil)
	gw := &fakeGateway{}
	paymentSvc := payments.NewService(store, gw)

	schedule := ledger.FeeSchedule{
		Boarder: ledger.CategoryRates{
			OLevel: amt("400"),
			ALevel: ledger.TrackRates{Sciences: amt("500"), Commercials: amt("480"), Arts: amt("460")},
		},
		Day: ledger.CategoryRates{
			OLevel: amt("200"),
			ALevel: ledger.TrackRates{Sciences: amt("250"), Commercials: amt("240"), Arts: amt("230")},
		},
	}
	if _, err := ledgerSvc.UpdateFeeSchedule(ctx, schedule, "admin-1"); err != nil {
		t.Fatalf("setupAPI() failed: %v", err)
	}
	if _, err := ledgerSvc.ActivateTerm(ctx, ledger.TermActivation{Key: "2026_T1"}); err != nil {
		t.Fatalf("setupAPI() failed: %v", err)
	}

	srv := NewServer(&Options{
		DisableReqLogs: true,
		LedgerSvc:      ledgerSvc,
		PaymentSvc:     paymentSvc,
		Logger:         nopLogger{},
	})
	return &testEnv{server: srv, ledgerSvc: ledgerSvc, gw: gw, ctx: ctx}
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (env *testEnv) createStudent(t *testing.T, username string) ledger.Student {
	t.Helper()
	student, err := env.ledgerSvc.CreateStudent(env.ctx, ledger.NewStudent{
		Name: "Tariro", Surname: "Moyo", BoardingType: ledger.BoardingDay,
		GradeCategory: ledger.GradeCategoryOLevel, Grade: "Form 3", Username: username,
	})
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return student
}

func getToken(t *testing.T, usr ledger.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func adminToken(t *testing.T) string {
	return getToken(t, ledger.User{ID: "admin-1", Username: "head", Role: ledger.RoleAdmin})
}

func bursarToken(t *testing.T) string {
	return getToken(t, ledger.User{ID: "bursar-1", Username: "bursar", Role: ledger.RoleBursar})
}

func studentToken(t *testing.T, studentID string) string {
	return getToken(t, ledger.User{ID: studentID, Username: "student", Role: ledger.RoleStudent})
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func errBody(t *testing.T, msg interface{}) []byte {
	return marchallObj(t, map[string]interface{}{"success": false, "error": msg})
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) bool {
	t.Helper()
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		t.Fatalf("jsonBytesEqual() failed: %v", err)
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		t.Fatalf("jsonBytesEqual() failed: %v", err)
	}
	return reflect.DeepEqual(j1, j2)
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	if !jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData) {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// decodeBody decodes the response envelope into a map for field assertions.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	body := make(map[string]interface{})
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decodeBody() failed: %v; body %s", err, rec.Body.String())
	}
	return body
}
