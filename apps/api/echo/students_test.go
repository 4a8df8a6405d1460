package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_studentApi_permissions(t *testing.T) {
	env := setupAPI(t)
	student := env.createStudent(t, "tariro")
	other := env.createStudent(t, "rudo")

	body := marchallObj(t, map[string]string{
		"name": "New", "surname": "Student", "boardingType": "day",
		"gradeCategory": "o_level", "grade": "Form 1", "username": "newstu",
	})

	tests := []httpTest{
		{
			name: "create requires auth", method: http.MethodPost, path: "/v1/students", body: body,
			wantCode: http.StatusUnauthorized, wantData: errBody(t, "missing or malformed jwt"),
		},
		{
			name: "create forbidden for students", method: http.MethodPost, path: "/v1/students", body: body,
			token: studentToken(t, student.ID), wantCode: http.StatusForbidden, wantData: errBody(t, "permission denied"),
		},
		{
			name: "query forbidden for students", method: http.MethodGet, path: "/v1/students",
			token: studentToken(t, student.ID), wantCode: http.StatusForbidden, wantData: errBody(t, "permission denied"),
		},
		{
			name: "delete is admin-only", method: http.MethodDelete, path: "/v1/students/" + student.ID,
			token: bursarToken(t), wantCode: http.StatusForbidden, wantData: errBody(t, "permission denied"),
		},
		{
			name: "ledger of another student forbidden", method: http.MethodGet, path: "/v1/students/" + other.ID + "/ledger",
			token: studentToken(t, student.ID), wantCode: http.StatusForbidden, wantData: errBody(t, "permission denied"),
		},
		{
			name: "ledger of own student allowed", method: http.MethodGet, path: "/v1/students/" + student.ID + "/ledger",
			token: studentToken(t, student.ID), wantCode: http.StatusOK,
		},
		{
			name: "ledger readable by bursar", method: http.MethodGet, path: "/v1/students/" + student.ID + "/ledger",
			token: bursarToken(t), wantCode: http.StatusOK,
		},
		{
			name: "unknown student ledger", method: http.MethodGet, path: "/v1/students/nope/ledger",
			token: adminToken(t), wantCode: http.StatusNotFound, wantData: errBody(t, "not found"),
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

func Test_studentApi_studentCreate(t *testing.T) {
	env := setupAPI(t)

	body := marchallObj(t, map[string]string{
		"name": "Rudo", "surname": "Chikafu", "boardingType": "boarder",
		"gradeCategory": "a_level", "grade": "Upper 6 Commercials",
		"guardianEmail": "gu@ardian.test", "username": "rudoc", "password": "s3cretpwd",
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/students", adminToken(t), body)
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	assert.Equal(t, true, resp["success"])
	student := resp["student"].(map[string]interface{})
	assert.NotEmpty(t, student["id"])
	fin := student["financials"].(map[string]interface{})
	// billed for the active term at the boarder A-Level commercials rate
	assert.Equal(t, "480", fin["balance"])

	// validation failures come back as a field map
	req, rec = newAuthRequest(http.MethodPost, "/v1/students", adminToken(t),
		marchallObj(t, map[string]string{"name": "No", "surname": "Fields"}))
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp = decodeBody(t, rec)
	fields := resp["error"].(map[string]interface{})
	assert.Contains(t, fields, "boardingType")
	assert.Contains(t, fields, "username")
}

func Test_studentApi_studentQuery(t *testing.T) {
	env := setupAPI(t)
	env.createStudent(t, "tariro")
	env.createStudent(t, "rudo")

	req, rec := newAuthRequest(http.MethodGet, "/v1/students", bursarToken(t))
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Len(t, resp["students"], 2)
}

func Test_studentApi_studentDestroy(t *testing.T) {
	env := setupAPI(t)
	student := env.createStudent(t, "tariro")

	req, rec := newAuthRequest(http.MethodDelete, "/v1/students/"+student.ID, adminToken(t))
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the record is gone; a repeat delete is a caller mistake
	req, rec = newAuthRequest(http.MethodDelete, "/v1/students/"+student.ID, adminToken(t))
	env.server.ServeHTTP(rec, req)
	tt := httpTest{wantCode: http.StatusBadRequest, wantData: errBody(t, "student not found")}
	checkCodeAndData(t, tt, rec)
}
