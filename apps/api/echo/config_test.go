package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_configApi_terms(t *testing.T) {
	env := setupAPI(t)
	student := env.createStudent(t, "tariro")

	tests := []httpTest{
		{
			name: "query requires staff", method: http.MethodGet, path: "/v1/terms",
			token: studentToken(t, student.ID), wantCode: http.StatusForbidden, wantData: errBody(t, "permission denied"),
		},
		{
			name: "query", method: http.MethodGet, path: "/v1/terms", token: bursarToken(t),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]interface{}{"success": true, "activeTerms": []string{"2026_T1"}}),
		},
		{
			name: "activation is admin-only", method: http.MethodPost, path: "/v1/terms",
			body:  marchallObj(t, map[string]string{"key": "2026_T2"}),
			token: bursarToken(t), wantCode: http.StatusForbidden, wantData: errBody(t, "permission denied"),
		},
		{
			name: "activation bills the population", method: http.MethodPost, path: "/v1/terms",
			body:  marchallObj(t, map[string]string{"key": "2026_T2"}),
			token: adminToken(t), wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]interface{}{"success": true, "term": "2026_T2", "studentsBilled": 1}),
		},
		{
			name: "re-activation rejected", method: http.MethodPost, path: "/v1/terms",
			body:  marchallObj(t, map[string]string{"key": "2026_T2"}),
			token: adminToken(t), wantCode: http.StatusBadRequest, wantData: errBody(t, "term is already active"),
		},
		{
			name: "malformed key rejected", method: http.MethodPost, path: "/v1/terms",
			body:  marchallObj(t, map[string]string{"key": "2026_T9"}),
			token: adminToken(t), wantCode: http.StatusBadRequest,
			wantData: errBody(t, map[string]string{"key": "must be a term key like 2026_T1"}),
		},
		{
			name: "removal", method: http.MethodDelete, path: "/v1/terms/2026_T1",
			token: adminToken(t), wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]interface{}{"success": true}),
		},
		{
			name: "last term cannot go", method: http.MethodDelete, path: "/v1/terms/2026_T2",
			token: adminToken(t), wantCode: http.StatusBadRequest,
			wantData: errBody(t, "cannot remove the last active term"),
		},
		{
			name: "removing an inactive term", method: http.MethodDelete, path: "/v1/terms/2027_T1",
			token: adminToken(t), wantCode: http.StatusBadRequest, wantData: errBody(t, "term is not active"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_configApi_schedule(t *testing.T) {
	env := setupAPI(t)
	student := env.createStudent(t, "tariro")

	// a schedule update rebills every open term at the new rates
	body := marchallObj(t, map[string]interface{}{
		"boarder": map[string]interface{}{
			"oLevel": "450",
			"aLevel": map[string]string{"sciences": "550", "commercials": "530", "arts": "510"},
		},
		"day": map[string]interface{}{
			"oLevel": "275",
			"aLevel": map[string]string{"sciences": "300", "commercials": "290", "arts": "280"},
		},
	})
	req, rec := newAuthRequest(http.MethodPut, "/v1/fees/schedule", adminToken(t), body)
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	assert.Equal(t, float64(1), resp["studentsRebilled"])

	got, err := env.ledgerSvc.GetStudent(env.ctx, student.ID)
	assert.NoError(t, err)
	assert.True(t, got.Financials.Terms["2026_T1"].Fee.Equal(amt("275")))
	assert.True(t, got.Financials.Balance.Equal(amt("275")))

	// the stored schedule reads back
	req, rec = newAuthRequest(http.MethodGet, "/v1/fees/schedule", bursarToken(t))
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody(t, rec)
	schedule := resp["feeSchedule"].(map[string]interface{})
	day := schedule["day"].(map[string]interface{})
	assert.Equal(t, "275", day["oLevel"])

	// updates are admin-only
	req, rec = newAuthRequest(http.MethodPut, "/v1/fees/schedule", bursarToken(t), body)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// a zero or negative rate never reaches the ledger
	badBody := marchallObj(t, map[string]interface{}{
		"boarder": map[string]interface{}{
			"oLevel": "450",
			"aLevel": map[string]string{"sciences": "0", "commercials": "530", "arts": "-10"},
		},
		"day": map[string]interface{}{
			"oLevel": "275",
			"aLevel": map[string]string{"sciences": "300", "commercials": "290", "arts": "280"},
		},
	})
	req, rec = newAuthRequest(http.MethodPut, "/v1/fees/schedule", adminToken(t), badBody)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	resp = decodeBody(t, rec)
	fldErrs := resp["error"].(map[string]interface{})
	assert.Equal(t, "must be greater than 0", fldErrs["sciences"])
	assert.Equal(t, "must be greater than 0", fldErrs["arts"])

	got, err = env.ledgerSvc.GetStudent(env.ctx, student.ID)
	assert.NoError(t, err)
	assert.True(t, got.Financials.Terms["2026_T1"].Fee.Equal(amt("275")),
		"fee = %s; a rejected schedule must not rebill", got.Financials.Terms["2026_T1"].Fee)
}
