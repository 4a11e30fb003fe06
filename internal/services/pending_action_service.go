package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"table_waiter/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PendingActionStore keeps proposed actions until they are answered or expire.
// TransitionPendingAction must check the current state and the expiry in one
// atomic step.
type PendingActionStore interface {
	SavePendingAction(ctx context.Context, action *models.PendingAction) error
	GetPendingAction(ctx context.Context, id string) (*models.PendingAction, error)
	TransitionPendingAction(ctx context.Context, id string, from, to models.ActionState) (*models.PendingAction, error)
	DeletePendingAction(ctx context.Context, id string) error
}

// ConversationStore keeps the recent turns of each table session.
type ConversationStore interface {
	AppendTurn(ctx context.Context, sessionID uint, turn models.ConversationTurn) error
	RecentTurns(ctx context.Context, sessionID uint) ([]models.ConversationTurn, error)
	ClearConversation(ctx context.Context, sessionID uint) error
}

// ActionScope ties a pending action to a table session.
type ActionScope struct {
	SessionID    uint
	RestaurantID uint
	TableNumber  string
}

func scopeOf(action *models.PendingAction) ActionScope {
	return ActionScope{SessionID: action.SessionID, RestaurantID: action.RestaurantID, TableNumber: action.TableNumber}
}

type PendingActionService interface {
	Propose(ctx context.Context, scope ActionScope, candidate *Candidate) (*models.PendingAction, error)
	Get(ctx context.Context, id string) (*models.PendingAction, error)
	Confirm(ctx context.Context, id string) (*models.PendingAction, error)
	Decline(ctx context.Context, id string) (*models.PendingAction, error)
	MarkExecuted(ctx context.Context, id string) (*models.PendingAction, error)
	Discard(ctx context.Context, id string) error
}

type pendingActionService struct {
	store PendingActionStore
	ttl   time.Duration
	now   func() time.Time
	log   logrus.FieldLogger
}

func NewPendingActionService(store PendingActionStore, ttl time.Duration, log logrus.FieldLogger) PendingActionService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &pendingActionService{store: store, ttl: ttl, now: time.Now, log: log}
}

func (s *pendingActionService) Propose(ctx context.Context, scope ActionScope, candidate *Candidate) (*models.PendingAction, error) {
	if candidate == nil || candidate.Payload == nil {
		return nil, errors.New("cannot propose an empty candidate")
	}
	now := s.now()
	action := &models.PendingAction{
		ID:                  uuid.NewString(),
		SessionID:           scope.SessionID,
		RestaurantID:        scope.RestaurantID,
		TableNumber:         scope.TableNumber,
		Kind:                candidate.Kind,
		Payload:             candidate.Payload,
		Description:         candidate.Description,
		ConfirmationMessage: candidate.ConfirmationMessage,
		Confidence:          candidate.Confidence,
		Provenance:          candidate.Provenance,
		State:               models.ActionProposed,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.ttl),
		FallbackOptions:     candidate.FallbackOptions,
	}
	if err := s.store.SavePendingAction(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to store pending action: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"action_id":  action.ID,
		"session_id": action.SessionID,
		"kind":       action.Kind,
		"confidence": action.Confidence,
		"provenance": action.Provenance,
	}).Info("Action proposed")
	return action, nil
}

func (s *pendingActionService) Get(ctx context.Context, id string) (*models.PendingAction, error) {
	action, err := s.store.GetPendingAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.Expired(s.now()) {
		action.State = models.ActionExpired
	}
	return action, nil
}

// Confirm moves PROPOSED to CONFIRMED. A proposal past its window is expired
// instead and ErrActionExpired is returned.
func (s *pendingActionService) Confirm(ctx context.Context, id string) (*models.PendingAction, error) {
	return s.transition(ctx, id, models.ActionProposed, models.ActionConfirmed)
}

func (s *pendingActionService) Decline(ctx context.Context, id string) (*models.PendingAction, error) {
	return s.transition(ctx, id, models.ActionProposed, models.ActionDeclined)
}

func (s *pendingActionService) MarkExecuted(ctx context.Context, id string) (*models.PendingAction, error) {
	return s.transition(ctx, id, models.ActionConfirmed, models.ActionExecuted)
}

// Discard drops an action whose execution failed; it never becomes EXECUTED.
func (s *pendingActionService) Discard(ctx context.Context, id string) error {
	return s.store.DeletePendingAction(ctx, id)
}

func (s *pendingActionService) transition(ctx context.Context, id string, from, to models.ActionState) (*models.PendingAction, error) {
	action, err := s.store.TransitionPendingAction(ctx, id, from, to)
	if err != nil {
		if errors.Is(err, models.ErrActionExpired) {
			s.log.WithField("action_id", id).Info("Pending action expired before it was answered")
		}
		return action, err
	}
	s.log.WithFields(logrus.Fields{
		"action_id": id,
		"state":     action.State,
	}).Debug("Pending action transitioned")
	return action, nil
}
