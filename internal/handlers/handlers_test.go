package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"table_waiter/internal/logger"
	"table_waiter/internal/migrations"
	redisstore "table_waiter/internal/redis"
	"table_waiter/internal/repository"
	"table_waiter/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
}

func newTestServer(t *testing.T, actionTTL time.Duration) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Discard()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, migrations.RunMigrations(db, log))

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := redisstore.NewClient(rdb)

	menuRepo := repository.NewMenuRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	sessions := services.NewSessionService(repository.NewSessionRepository(db), orderRepo, 5, log)
	orders := services.NewOrderService(orderRepo, menuRepo, sessions, nil, log)
	recommender := services.NewMenuRecommender()
	cfg := services.DefaultDetectionConfig()

	assistant := services.NewAssistantService(services.AssistantDeps{
		Detector:      services.NewHybridDetector(nil, services.NewPatternMatcher(), cfg, log),
		Pending:       services.NewPendingActionService(store, actionTTL, log),
		Executor:      services.NewActionExecutor(orders, menuRepo, store, recommender),
		Advisor:       services.NewRecoveryAdvisor(recommender, log),
		Orders:        orders,
		Sessions:      sessions,
		MenuRepo:      menuRepo,
		Conversations: store,
		Config:        cfg,
		Log:           log,
	})

	router := gin.New()
	RegisterRoutes(router, NewChatHandler(assistant, log), NewOrderHandler(orders, sessions, menuRepo, store, log))
	return &testServer{router: router, db: db}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

type chatReply struct {
	SessionID    uint    `json:"session_id"`
	Reply        string  `json:"reply"`
	Confidence   float64 `json:"confidence"`
	UsedFallback bool    `json:"used_fallback"`
	Action       *struct {
		ID    string `json:"id"`
		Kind  string `json:"kind"`
		State string `json:"state"`
	} `json:"action"`
}

type confirmBody struct {
	Executed bool   `json:"executed"`
	Conflict bool   `json:"conflict"`
	Message  string `json:"message"`
	Result   *struct {
		Order struct {
			ID    uint  `json:"id"`
			Total int64 `json:"total"`
		} `json:"order"`
	} `json:"result"`
	Alternatives []struct {
		ID    string `json:"id"`
		State string `json:"state"`
	} `json:"alternatives"`
}

const messagesPath = "/api/restaurants/1/tables/T1/messages"

func TestMessageThenConfirm(t *testing.T) {
	srv := newTestServer(t, 5*time.Minute)

	w := srv.do(t, http.MethodPost, messagesPath, gin.H{"message": "give me 2 caesar salads"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reply chatReply
	decode(t, w, &reply)
	require.NotNil(t, reply.Action)
	assert.Equal(t, "ADD_TO_ORDER", reply.Action.Kind)
	assert.Equal(t, "PROPOSED", reply.Action.State)
	assert.True(t, reply.UsedFallback)

	w = srv.do(t, http.MethodGet, "/api/actions/"+reply.Action.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodPost, "/api/actions/"+reply.Action.ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var outcome confirmBody
	decode(t, w, &outcome)
	assert.True(t, outcome.Executed)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, int64(2598), outcome.Result.Order.Total)

	w = srv.do(t, http.MethodPost, "/api/actions/"+reply.Action.ID+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = srv.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/%d", reply.SessionID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var session struct {
		Session struct {
			TotalOrders int64 `json:"total_orders"`
			TotalSpent  int64 `json:"total_spent"`
		} `json:"session"`
		Orders []json.RawMessage `json:"orders"`
	}
	decode(t, w, &session)
	assert.Equal(t, int64(1), session.Session.TotalOrders)
	assert.Equal(t, int64(2598), session.Session.TotalSpent)
	assert.Len(t, session.Orders, 1)
}

func TestDeclineReturnsAlternatives(t *testing.T) {
	srv := newTestServer(t, 5*time.Minute)

	var reply chatReply
	decode(t, srv.do(t, http.MethodPost, messagesPath, gin.H{"message": "one margherita pizza"}), &reply)
	require.NotNil(t, reply.Action)

	w := srv.do(t, http.MethodPost, "/api/actions/"+reply.Action.ID+"/decline", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var outcome confirmBody
	decode(t, w, &outcome)
	require.NotEmpty(t, outcome.Alternatives)
	assert.Equal(t, "PROPOSED", outcome.Alternatives[0].State)
	assert.Contains(t, outcome.Message, "Pepperoni Pizza")
}

func TestConfirmConflict(t *testing.T) {
	srv := newTestServer(t, 5*time.Minute)

	var add chatReply
	decode(t, srv.do(t, http.MethodPost, messagesPath, gin.H{"message": "give me 2 caesar salads"}), &add)
	var placed confirmBody
	decode(t, srv.do(t, http.MethodPost, "/api/actions/"+add.Action.ID+"/confirm", nil), &placed)
	orderPath := fmt.Sprintf("/api/orders/%d", placed.Result.Order.ID)

	var remove chatReply
	decode(t, srv.do(t, http.MethodPost, messagesPath, gin.H{"message": "remove the caesar salad"}), &remove)
	require.NotNil(t, remove.Action)

	w := srv.do(t, http.MethodPut, orderPath+"/status", gin.H{"status": "PREPARING"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = srv.do(t, http.MethodPost, "/api/actions/"+remove.Action.ID+"/confirm", nil)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	var conflict confirmBody
	decode(t, w, &conflict)
	assert.True(t, conflict.Conflict)
	assert.False(t, conflict.Executed)

	w = srv.do(t, http.MethodGet, "/api/actions/"+remove.Action.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfirmExpiredAction(t *testing.T) {
	short := newTestServer(t, 10*time.Millisecond)
	var late chatReply
	decode(t, short.do(t, http.MethodPost, messagesPath, gin.H{"message": "two lemonades"}), &late)
	require.NotNil(t, late.Action)
	time.Sleep(30 * time.Millisecond)
	w := short.do(t, http.MethodPost, "/api/actions/"+late.Action.ID+"/confirm", nil)
	require.Equal(t, http.StatusGone, w.Code, w.Body.String())
	var expired confirmBody
	decode(t, w, &expired)
	assert.Len(t, expired.Alternatives, 1)
}

func TestOrderEndpoints(t *testing.T) {
	srv := newTestServer(t, 5*time.Minute)

	w := srv.do(t, http.MethodPost, "/api/restaurants/1/tables/T9/orders", gin.H{
		"items": []gin.H{{"menu_item_id": 3, "quantity": 1}, {"menu_item_id": 6, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order struct {
		ID        uint   `json:"id"`
		SessionID uint   `json:"session_id"`
		Total     int64  `json:"total"`
		Status    string `json:"status"`
	}
	decode(t, w, &order)
	assert.Equal(t, int64(1500+2*400), order.Total)
	assert.Equal(t, "PENDING", order.Status)
	orderPath := fmt.Sprintf("/api/orders/%d", order.ID)

	w = srv.do(t, http.MethodPut, orderPath+"/status", gin.H{"status": "PREPARING"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodPut, orderPath+"/status", gin.H{"status": "PENDING"})
	require.Equal(t, http.StatusConflict, w.Code)
	var refused map[string]interface{}
	decode(t, w, &refused)
	assert.Equal(t, "PREPARING", refused["current_status"])
	assert.Equal(t, "PENDING", refused["attempted_status"])

	w = srv.do(t, http.MethodPut, orderPath+"/status", gin.H{"status": "EATEN"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodGet, "/api/orders/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = srv.do(t, http.MethodGet, "/api/orders/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPost, "/api/restaurants/1/tables/T9/orders", gin.H{
		"items": []gin.H{{"menu_item_id": 42, "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sessionPath := fmt.Sprintf("/api/sessions/%d", order.SessionID)
	w = srv.do(t, http.MethodPost, sessionPath+"/recompute", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats services.SessionStats
	decode(t, w, &stats)
	assert.Equal(t, int64(1), stats.TotalOrders)

	w = srv.do(t, http.MethodPost, sessionPath+"/close", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = srv.do(t, http.MethodPost, sessionPath+"/close", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = srv.do(t, http.MethodPost, "/api/sessions/777/recompute", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMessageValidation(t *testing.T) {
	srv := newTestServer(t, 5*time.Minute)

	w := srv.do(t, http.MethodPost, messagesPath, gin.H{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPost, messagesPath, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPost, "/api/restaurants/zero/tables/T1/messages", gin.H{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPost, "/api/actions/nope/confirm", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMenuEndpoint(t *testing.T) {
	srv := newTestServer(t, 5*time.Minute)

	w := srv.do(t, http.MethodGet, "/api/restaurants/1/menu", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var menu struct {
		Items []struct {
			Name  string `json:"name"`
			Price int64  `json:"price"`
		} `json:"items"`
	}
	decode(t, w, &menu)
	assert.Len(t, menu.Items, 7)
}
