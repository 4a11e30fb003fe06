package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"table_waiter/internal/logger"
	"table_waiter/internal/migrations"
	"table_waiter/internal/models"
	redisstore "table_waiter/internal/redis"
	"table_waiter/internal/repository"
	"table_waiter/pkg/openai"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testRestaurant = migrations.DemoRestaurantID

type testEnv struct {
	db        *gorm.DB
	menu      []models.MenuItem
	menuRepo  repository.MenuRepository
	orderRepo repository.OrderRepository
	sessions  SessionService
	orders    OrderService
	store     *redisstore.Client
	redis     *miniredis.Miniredis
	pending   PendingActionService
	executor  ActionExecutor
	advisor   RecoveryAdvisor
	log       logrus.FieldLogger
}

// newTestDB opens a private in-memory SQLite database with the demo menu.
// One connection keeps every query on the same memory database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, migrations.RunMigrations(db, logger.Discard()))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.Discard()
	db := newTestDB(t)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := redisstore.NewClient(rdb)

	menuRepo := repository.NewMenuRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	sessions := NewSessionService(repository.NewSessionRepository(db), orderRepo, 5, log)
	orders := NewOrderService(orderRepo, menuRepo, sessions, nil, log)

	menu, err := menuRepo.ListByRestaurant(context.Background(), testRestaurant, false)
	require.NoError(t, err)

	return &testEnv{
		db:        db,
		menu:      menu,
		menuRepo:  menuRepo,
		orderRepo: orderRepo,
		sessions:  sessions,
		orders:    orders,
		store:     store,
		redis:     mr,
		pending:   NewPendingActionService(store, 5*time.Minute, log),
		executor:  NewActionExecutor(orders, menuRepo, store, NewMenuRecommender()),
		advisor:   NewRecoveryAdvisor(NewMenuRecommender(), log),
		log:       log,
	}
}

func (e *testEnv) item(t *testing.T, name string) models.MenuItem {
	t.Helper()
	for _, m := range e.menu {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("menu item %q not seeded", name)
	return models.MenuItem{}
}

func (e *testEnv) assistant(generative GenerativeSource) AssistantService {
	cfg := DefaultDetectionConfig()
	return NewAssistantService(AssistantDeps{
		Detector:      NewHybridDetector(generative, NewPatternMatcher(), cfg, e.log),
		Pending:       e.pending,
		Executor:      e.executor,
		Advisor:       e.advisor,
		Orders:        e.orders,
		Sessions:      e.sessions,
		MenuRepo:      e.menuRepo,
		Conversations: e.store,
		Config:        cfg,
		Log:           e.log,
	})
}

// setStatus walks an order along legal transitions to status.
func (e *testEnv) setStatus(t *testing.T, orderID uint, status models.OrderStatus) *models.Order {
	t.Helper()
	paths := map[models.OrderStatus][]models.OrderStatus{
		models.OrderPending:   nil,
		models.OrderPreparing: {models.OrderPreparing},
		models.OrderReady:     {models.OrderPreparing, models.OrderReady},
		models.OrderServed:    {models.OrderPreparing, models.OrderReady, models.OrderServed},
		models.OrderCancelled: {models.OrderCancelled},
	}
	order, err := e.orders.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	for _, next := range paths[status] {
		order, err = e.orders.UpdateOrderStatus(context.Background(), orderID, next)
		require.NoError(t, err)
	}
	return order
}

type fakeCompleter struct {
	resp    *openai.ChatResponse
	err     error
	delay   time.Duration
	calls   int
	lastReq openai.ChatRequest
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatRequest) (*openai.ChatResponse, error) {
	f.calls++
	f.lastReq = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func toolCall(text, name, args string) *openai.ChatResponse {
	return &openai.ChatResponse{
		Content: text,
		ToolCalls: []openai.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: openai.FunctionCall{Name: name, Arguments: args},
		}},
	}
}

func textReply(text string) *openai.ChatResponse {
	return &openai.ChatResponse{Content: text}
}
