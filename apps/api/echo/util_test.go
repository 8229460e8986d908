package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/apps/api/echo"
	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/message"
	"github.com/trezcool/workdesk/core/task"
	"github.com/trezcool/workdesk/core/user"
	"github.com/trezcool/workdesk/services/changefeed/memfeed"
	"github.com/trezcool/workdesk/services/email"
	"github.com/trezcool/workdesk/storage/database/inmem"
	"github.com/trezcool/workdesk/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	app      *echoapi.Server
	conf     *core.Config
	broker   *memfeed.Broker
	usrRepo  user.Repository
	taskRepo task.Repository
	msgRepo  message.Repository
	mailSvc  *emailsvc.ConsoleService
	// taskSaves can make the task service's completion writes fail
	taskSaves *failingTaskRepo
}

var errStoreDown = errors.New("store unavailable")

// failingTaskRepo fails SetTaskComplete while failing is set.
type failingTaskRepo struct {
	task.Repository
	failing int32
}

func (r *failingTaskRepo) SetTaskComplete(ctx context.Context, id string, done bool) (task.Task, error) {
	if atomic.LoadInt32(&r.failing) == 1 {
		return task.Task{}, errStoreDown
	}
	return r.Repository.SetTaskComplete(ctx, id, done)
}

func (r *failingTaskRepo) fail(on bool) {
	var v int32
	if on {
		v = 1
	}
	atomic.StoreInt32(&r.failing, v)
}

// spyUserRepo counts the calls that provisioning makes to the store.
type spyUserRepo struct {
	user.Repository
	calls int32
}

func (r *spyUserRepo) CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...string) error {
	atomic.AddInt32(&r.calls, 1)
	return r.Repository.CheckEmailUniqueness(ctx, email, excludedIDs...)
}

func (r *spyUserRepo) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	atomic.AddInt32(&r.calls, 1)
	return r.Repository.CreateUser(ctx, usr)
}

func (r *spyUserRepo) Calls() int { return int(atomic.LoadInt32(&r.calls)) }

func setup(t *testing.T, wrapUsrRepo ...func(user.Repository) user.Repository) *testEnv {
	conf := core.NewTestConfig()
	logger := testutil.NewLogger()

	// set up DB & repos
	broker := memfeed.NewBroker(conf.Feed.BufferSize, logger)
	t.Cleanup(func() { _ = broker.Close() })
	db := inmemdb.Open(broker)
	env := &testEnv{
		conf:     conf,
		broker:   broker,
		usrRepo:  inmemdb.NewUserRepository(db),
		taskRepo: inmemdb.NewTaskRepository(db),
		msgRepo:  inmemdb.NewMessageRepository(db),
		mailSvc:  emailsvc.NewConsoleServiceMock(conf),
	}
	env.taskSaves = &failingTaskRepo{Repository: env.taskRepo}
	svcRepo := env.usrRepo
	for _, wrap := range wrapUsrRepo {
		svcRepo = wrap(svcRepo)
	}

	// set up services
	usrSvc := user.NewService(svcRepo, env.mailSvc, conf)
	translator := core.NewTranslator()
	validate := testutil.NewValidator()

	// set up server
	env.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		TaskSvc:        task.NewService(env.taskSaves, usrSvc),
		MsgSvc:         message.NewService(env.msgRepo, usrSvc),
		Feed:           broker,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	return env
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

func (env *testEnv) do(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	env.app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	token, err := echoapi.GenerateToken(conf, echoapi.GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
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
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		if rec.Body.Len() > 0 {
			t.Errorf("failed! data = %v; want no content", rec.Body.String())
		}
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
