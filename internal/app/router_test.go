package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"lingo_edu_backend/internal/config"
	"lingo_edu_backend/internal/controller"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/testutil"
	"lingo_edu_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-test-secret"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		JWT:       config.JWTConfig{Secret: testSecret, ExpireTime: time.Hour},
		Storage:   config.StorageConfig{Type: "local", LocalPath: t.TempDir()},
		RateLimit: config.RateLimitConfig{MaxRequests: 10000, WindowMinutes: 1},
	}
	db := testutil.NewDB(t)

	a := &App{Config: cfg, DB: db}
	repos := a.initRepositories(db)
	services := a.initServices(repos, cfg, nil)
	controller.RegisterValidators()
	ctrls := a.initControllers(services, db)

	router := gin.New()
	a.setupMiddlewares(router, cfg)
	a.registerRoutes(router, ctrls, cfg)
	return router
}

func token(t *testing.T, id uint, role model.UserRole) string {
	t.Helper()
	tok, err := util.GenerateJWT(id, role, fmt.Sprintf("u%d@example.com", id), testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, r *gin.Engine, method, path, tok string, body any) (int, envelope) {
	t.Helper()
	var buf *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	} else {
		buf = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func idOf(t *testing.T, env envelope) uint {
	t.Helper()
	var v struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &v))
	require.NotZero(t, v.ID)
	return v.ID
}

func TestHealthRoute(t *testing.T) {
	r := newTestRouter(t)
	code, env := call(t, r, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", env.Message)
}

func TestTeacherRoutesRequireRole(t *testing.T) {
	r := newTestRouter(t)
	body := map[string]any{
		"title": "TOEIC mock", "description": "d", "testType": "TOEIC",
		"difficulty": "Intermediate", "duration": 60,
	}

	code, _ := call(t, r, http.MethodPost, "/api/online-tests", "", body)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = call(t, r, http.MethodPost, "/api/online-tests", token(t, 100, model.Student), body)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, r, http.MethodPost, "/api/online-tests", token(t, 1, model.Teacher), body)
	assert.Equal(t, http.StatusCreated, code)
}

func TestCreateTestRejectsUnknownEnum(t *testing.T) {
	r := newTestRouter(t)
	code, _ := call(t, r, http.MethodPost, "/api/online-tests", token(t, 1, model.Teacher), map[string]any{
		"title": "x", "description": "d", "testType": "SAT",
		"difficulty": "Intermediate", "duration": 60,
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAttemptFlowOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	teacherTok := token(t, 1, model.Teacher)
	studentTok := token(t, 100, model.Student)

	code, env := call(t, r, http.MethodPost, "/api/online-tests", teacherTok, map[string]any{
		"title": "Placement", "description": "d", "testType": "Placement",
		"difficulty": "Beginner", "duration": 20,
	})
	require.Equal(t, http.StatusCreated, code)
	testID := idOf(t, env)

	// 未发布的测试学员看不到
	code, _ = call(t, r, http.MethodGet, fmt.Sprintf("/api/online-tests/%d", testID), "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = call(t, r, http.MethodPost, fmt.Sprintf("/api/online-tests/%d/questions", testID), teacherTok, map[string]any{
		"content": "She ___ to school yesterday.", "type": "single", "sectionType": "reading",
		"options": []string{"go", "went", "gone"}, "correctAnswer": "went",
	})
	require.Equal(t, http.StatusCreated, code)
	questionID := idOf(t, env)

	code, _ = call(t, r, http.MethodPatch, fmt.Sprintf("/api/online-tests/%d", testID), teacherTok, map[string]any{"isPublished": true})
	require.Equal(t, http.StatusOK, code)

	// 学员视图不含标准答案
	code, env = call(t, r, http.MethodGet, fmt.Sprintf("/api/online-tests/%d/questions", testID), "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), "correctAnswer")

	code, env = call(t, r, http.MethodPost, fmt.Sprintf("/api/online-tests/%d/attempts", testID), studentTok, nil)
	require.Equal(t, http.StatusCreated, code)
	attemptID := idOf(t, env)

	answerPath := fmt.Sprintf("/api/attempts/%d/answers/%d", attemptID, questionID)
	code, _ = call(t, r, http.MethodPut, answerPath, token(t, 101, model.Student), map[string]any{"selectedAnswer": "went"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, r, http.MethodPut, answerPath, studentTok, map[string]any{"selectedAnswer": "went"})
	require.Equal(t, http.StatusOK, code)

	code, env = call(t, r, http.MethodGet, fmt.Sprintf("/api/attempts/%d/navigation", attemptID), studentTok, nil)
	require.Equal(t, http.StatusOK, code)
	var nav struct {
		Progress struct {
			Answered   int  `json:"answered"`
			IsComplete bool `json:"isComplete"`
		} `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &nav))
	assert.Equal(t, 1, nav.Progress.Answered)
	assert.True(t, nav.Progress.IsComplete)

	code, env = call(t, r, http.MethodPost, fmt.Sprintf("/api/attempts/%d/complete", attemptID), studentTok, nil)
	require.Equal(t, http.StatusOK, code)
	var res struct {
		Grade struct {
			TotalScore float64 `json:"totalScore"`
		} `json:"grade"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 100.0, res.Grade.TotalScore)

	code, _ = call(t, r, http.MethodPost, fmt.Sprintf("/api/attempts/%d/complete", attemptID), studentTok, nil)
	assert.Equal(t, http.StatusConflict, code)

	// 作答后题目锁定
	code, _ = call(t, r, http.MethodDelete, fmt.Sprintf("/api/online-tests/%d/questions/%d", testID, questionID), teacherTok, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestDraftQuestionsHiddenFromLearners(t *testing.T) {
	r := newTestRouter(t)
	teacherTok := token(t, 1, model.Teacher)

	code, env := call(t, r, http.MethodPost, "/api/online-tests", teacherTok, map[string]any{
		"title": "Draft", "description": "d", "testType": "IELTS",
		"difficulty": "Advanced", "duration": 30,
	})
	require.Equal(t, http.StatusCreated, code)
	testID := idOf(t, env)

	code, _ = call(t, r, http.MethodPost, fmt.Sprintf("/api/online-tests/%d/questions", testID), teacherTok, map[string]any{
		"content": "Pick one", "type": "single", "sectionType": "reading",
		"options": []string{"A", "B"}, "correctAnswer": "A",
	})
	require.Equal(t, http.StatusCreated, code)

	path := fmt.Sprintf("/api/online-tests/%d/questions", testID)
	code, _ = call(t, r, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = call(t, r, http.MethodGet, path, token(t, 100, model.Student), nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = call(t, r, http.MethodGet, path, teacherTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "correctAnswer")
}

func TestInvalidPathID(t *testing.T) {
	r := newTestRouter(t)
	code, _ := call(t, r, http.MethodGet, "/api/online-tests/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
