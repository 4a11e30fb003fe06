package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"table_waiter/internal/models"

	"github.com/go-redis/redis/v8"
)

// expiryGrace keeps an expired action readable for a while so a late
// confirmation gets "expired" instead of "not found".
const expiryGrace = time.Minute

type Client struct {
	rdb          *redis.Client
	now          func() time.Time
	historyLimit int
	historyTTL   time.Duration
}

func Initialize(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	// Test connection
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewClient(rdb), nil
}

func NewClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, now: time.Now, historyLimit: 20, historyTTL: time.Hour}
}

// SetHistoryPolicy caps how many turns are kept per session and for how long.
func (c *Client) SetHistoryPolicy(limit int, ttl time.Duration) {
	c.historyLimit = limit
	c.historyTTL = ttl
}

func actionKey(id string) string {
	return "pending_action:" + id
}

func conversationKey(sessionID uint) string {
	return fmt.Sprintf("conversation:%d", sessionID)
}

// Pending actions

func (c *Client) SavePendingAction(ctx context.Context, action *models.PendingAction) error {
	jsonData, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal pending action: %w", err)
	}

	ttl := action.ExpiresAt.Sub(c.now()) + expiryGrace
	if ttl <= 0 {
		ttl = expiryGrace
	}
	return c.rdb.Set(ctx, actionKey(action.ID), jsonData, ttl).Err()
}

func (c *Client) GetPendingAction(ctx context.Context, id string) (*models.PendingAction, error) {
	val, err := c.rdb.Get(ctx, actionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, models.ErrActionNotFound
		}
		return nil, fmt.Errorf("failed to get pending action: %w", err)
	}

	var action models.PendingAction
	if err := json.Unmarshal(val, &action); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending action: %w", err)
	}
	return &action, nil
}

// TransitionPendingAction moves an action from one state to another under
// WATCH, so a concurrent confirm/decline/expire sees a consistent state.
// A PROPOSED action past its window is flipped to EXPIRED and ErrActionExpired returned.
func (c *Client) TransitionPendingAction(ctx context.Context, id string, from, to models.ActionState) (*models.PendingAction, error) {
	key := actionKey(id)
	var result *models.PendingAction
	var expired bool

	txf := func(tx *redis.Tx) error {
		expired = false
		val, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return models.ErrActionNotFound
			}
			return err
		}

		var action models.PendingAction
		if err := json.Unmarshal(val, &action); err != nil {
			return fmt.Errorf("failed to unmarshal pending action: %w", err)
		}
		if action.State == models.ActionExpired {
			return models.ErrActionExpired
		}
		if action.State != from {
			return models.ErrActionStateConflict
		}
		if action.Expired(c.now()) {
			action.State = models.ActionExpired
			expired = true
		} else {
			action.State = to
		}

		jsonData, err := json.Marshal(&action)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, jsonData, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		result = &action
		return nil
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := c.rdb.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		if expired {
			return result, models.ErrActionExpired
		}
		return result, nil
	}
	return nil, models.ErrActionStateConflict
}

func (c *Client) DeletePendingAction(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, actionKey(id)).Err()
}

// Conversation history

func (c *Client) AppendTurn(ctx context.Context, sessionID uint, turn models.ConversationTurn) error {
	jsonData, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation turn: %w", err)
	}

	key := conversationKey(sessionID)
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, jsonData)
		if c.historyLimit > 0 {
			pipe.LTrim(ctx, key, int64(-c.historyLimit), -1)
		}
		if c.historyTTL > 0 {
			pipe.Expire(ctx, key, c.historyTTL)
		}
		return nil
	})
	return err
}

func (c *Client) RecentTurns(ctx context.Context, sessionID uint) ([]models.ConversationTurn, error) {
	start := int64(0)
	if c.historyLimit > 0 {
		start = int64(-c.historyLimit)
	}
	vals, err := c.rdb.LRange(ctx, conversationKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}

	turns := make([]models.ConversationTurn, 0, len(vals))
	for _, v := range vals {
		var turn models.ConversationTurn
		if err := json.Unmarshal([]byte(v), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (c *Client) ClearConversation(ctx context.Context, sessionID uint) error {
	return c.rdb.Del(ctx, conversationKey(sessionID)).Err()
}

// Close Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
