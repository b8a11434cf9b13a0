package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/curriculum"
	"github.com/yekiapp/yeki/core/exercise"
	"github.com/yekiapp/yeki/core/release"
	"github.com/yekiapp/yeki/core/stats"
	"github.com/yekiapp/yeki/core/user"
	docconvsvc "github.com/yekiapp/yeki/services/docconv"
	emailsvc "github.com/yekiapp/yeki/services/email"
	metricsvc "github.com/yekiapp/yeki/services/metrics"
	inmemdb "github.com/yekiapp/yeki/storage/database/inmem"
	"github.com/yekiapp/yeki/storage/tokenstore"
	"github.com/yekiapp/yeki/testutil"
)

var errMissingToken = ErrorResponse{Kind: kindUnauthenticated, Error: "missing or malformed jwt"}

type testEnv struct {
	conf    *core.Config
	app     *Server
	usrRepo user.Repository
	curRepo curriculum.Repository
	exRepo  exercise.Repository
	mailSvc *emailsvc.ConsoleServiceMock
	metrics *metricsvc.Metrics
}

func setup(t *testing.T) *testEnv {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	validate, translator := testutil.NewValidator()

	// set up DB & repos
	db := inmemdb.New()
	usrRepo := inmemdb.NewUserRepository(db)
	curRepo := inmemdb.NewCurriculumRepository(db)
	exRepo := inmemdb.NewExerciseRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	metrics := metricsvc.New()
	usrSvc := user.NewService(usrRepo, mailSvc, logger)
	curSvc := curriculum.NewService(curRepo, usrSvc, logger)
	usrSvc.SetPositionHolder(curSvc)
	curSvc.SetDocumentConverter(docconvsvc.New(conf.MediaBaseURL))
	exSvc := exercise.NewService(exRepo, curSvc, logger)
	exSvc.SetRecorder(metrics)

	// set up server
	app := NewServer(
		"", /* addr */
		make(chan os.Signal, 1),
		&Deps{
			Conf:          conf,
			Logger:        logger,
			Validate:      validate,
			Translator:    translator,
			Tokens:        tokenstore.NewMemoryStore(),
			Metrics:       metrics,
			UserSvc:       usrSvc,
			CurriculumSvc: curSvc,
			ExerciseSvc:   exSvc,
			StatsSvc:      stats.NewService(inmemdb.NewStatsRepository(db), usrSvc, curSvc),
			ReleaseSvc:    release.NewService(inmemdb.NewReleaseRepository(db)),
		},
	)

	return &testEnv{
		conf:    conf,
		app:     app,
		usrRepo: usrRepo,
		curRepo: curRepo,
		exRepo:  exRepo,
		mailSvc: mailSvc,
		metrics: metrics,
	}
}

func (env *testEnv) createUser(t *testing.T, uname string, role authz.Role, isActive ...bool) user.User {
	active := true
	if len(isActive) > 0 {
		active = isActive[0]
	}
	return testutil.CreateUser(t, env.usrRepo, "User "+uname, uname, uname+"@yeki.test", testutil.Password, role, active)
}

func (env *testEnv) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	env.app.ServeHTTP(rec, req)
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

func (env *testEnv) getToken(t *testing.T, usr user.User) string {
	token, err := env.app.auth.tokenFor(usr)
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

func unmarshalBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), rec.Body.String())
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

func runHTTPTests(t *testing.T, env *testEnv, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			env.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// checkError asserts the status and the kind (and validation code, if any) of an error response.
func checkError(t *testing.T, rec *httptest.ResponseRecorder, wantCode int, wantKind string, wantValidationCode ...string) ErrorResponse {
	t.Helper()
	assert.Equal(t, wantCode, rec.Code, rec.Body.String())
	var resp ErrorResponse
	unmarshalBody(t, rec, &resp)
	assert.Equal(t, wantKind, resp.Kind)
	if len(wantValidationCode) > 0 {
		assert.Equal(t, wantValidationCode[0], resp.Code)
	}
	return resp
}
