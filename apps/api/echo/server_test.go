package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masomo/feeledger/apps/api/echo"
	"github.com/masomo/feeledger/core"
	"github.com/masomo/feeledger/core/user"
	"github.com/masomo/feeledger/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

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
	wantData []byte
}

type testApp struct {
	env *testutil.Env
	srv *echoapi.Server
}

func setup(t *testing.T) *testApp {
	t.Helper()
	env := testutil.NewEnv(t)
	translator := core.NewTranslator()
	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       env.Conf,
		Logger:     env.Logger,
		UserSvc:    env.UserSvc,
		FeeSvc:     env.FeeSvc,
		Validate:   echoapi.NewValidator(translator),
		Translator: translator,
	})
	return &testApp{env: env, srv: srv}
}

// do serves the request and returns the recorded response.
func (app *testApp) do(method, path, token string, data []byte, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	app.srv.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) user(t *testing.T, uname string, roles ...string) user.User {
	t.Helper()
	return testutil.CreateUser(t, app.env.UserRepo, uname, uname, uname+"@test.cd", "s3cr3t-pass", roles, true)
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(app.env.Conf, echoapi.GetUserClaims(app.env.Conf, usr))
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
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
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
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

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, app.do(method, tt.path, tt.token, tt.body))
		})
	}
}

func TestServer_Home(t *testing.T) {
	app := setup(t)
	rec := app.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Masomo Fees API!", rec.Body.String())
}

func unmarshalBytes(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v), string(data))
}
