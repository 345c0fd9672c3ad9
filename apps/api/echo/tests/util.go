package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/masomo-audit/apps/api/echo"
	"github.com/trezcool/masomo-audit/core/principal"
	"github.com/trezcool/masomo-audit/core/unit"
	"github.com/trezcool/masomo-audit/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	srv *Server
	env *testutil.Env

	super, school, culture                principal.Principal
	superToken, schoolToken, cultureToken string
}

// setup serves the API on top of in-memory storage with three admins:
// a super admin, a school admin granted school #7 and a culture admin granted culture #3.
// Schools #7 (fee payment by cash or mobile money) & #9 and culture #3 exist.
func setup(t *testing.T) *fixture {
	env := testutil.NewEnv(t)
	srv := NewServer(ServerDeps{
		Conf:         env.Conf,
		Logger:       env.Log,
		Validate:     env.Validate,
		Translator:   env.Translator,
		PrincipalSvc: env.PrincipalSvc,
		Ledger:       env.Ledger,
		Stats:        env.Stats,
		Dispatcher:   env.Dispatcher,
	})
	t.Cleanup(func() { _ = srv.Close() })

	testutil.CreateUnit(t, env.Units, unit.KindSchool, 7, true, "cash", "mobile_money")
	testutil.CreateUnit(t, env.Units, unit.KindSchool, 9, false)
	testutil.CreateUnit(t, env.Units, unit.KindCulture, 3, false)

	f := &fixture{srv: srv, env: env}
	f.super = testutil.CreatePrincipal(t, env.Principals, "super", principal.RoleSuperAdmin, true, principal.Grants{})
	f.school = testutil.CreatePrincipal(t, env.Principals, "school", principal.RoleSchoolAdmin, true, principal.Grants{SchoolIDs: []int64{7}})
	f.culture = testutil.CreatePrincipal(t, env.Principals, "culture", principal.RoleCultureAdmin, true, principal.Grants{CultureIDs: []int64{3}})
	f.superToken = getToken(t, f, f.super)
	f.schoolToken = getToken(t, f, f.school)
	f.cultureToken = getToken(t, f, f.culture)
	return f
}

// do serves the request and returns the recorded response.
func (f *fixture) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	f.srv.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte // nil skips the body check
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, f *fixture, p principal.Principal) string {
	token, err := GenerateToken(f.env.Conf, GetPrincipalClaims(f.env.Conf, p))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equalf(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, f *fixture, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, f.do(method, tt.path, tt.token, tt.body))
		})
	}
}
