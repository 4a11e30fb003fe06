package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"table_waiter/internal/models"
	"table_waiter/internal/repository"

	"github.com/sirupsen/logrus"
)

type ChatRequest struct {
	RestaurantID uint
	TableNumber  string
	Message      string
}

type ChatReply struct {
	SessionID    uint                  `json:"session_id"`
	Reply        string                `json:"reply"`
	Action       *models.PendingAction `json:"action,omitempty"`
	Executed     *ExecutionResult      `json:"executed,omitempty"`
	Confidence   float64               `json:"confidence"`
	UsedFallback bool                  `json:"used_fallback"`
	Reasoning    string                `json:"reasoning"`
}

type ConfirmOutcome struct {
	Action       *models.PendingAction   `json:"action"`
	Executed     bool                    `json:"executed"`
	Conflict     bool                    `json:"conflict"`
	Message      string                  `json:"message"`
	Result       *ExecutionResult        `json:"result,omitempty"`
	Alternatives []*models.PendingAction `json:"alternatives,omitempty"`
}

type DeclineOutcome struct {
	Action       *models.PendingAction   `json:"action"`
	Message      string                  `json:"message"`
	Alternatives []*models.PendingAction `json:"alternatives,omitempty"`
}

// AssistantService handles one chat message or one answer to a proposal per call.
type AssistantService interface {
	HandleMessage(ctx context.Context, req ChatRequest) (*ChatReply, error)
	Confirm(ctx context.Context, actionID string) (*ConfirmOutcome, error)
	Decline(ctx context.Context, actionID string) (*DeclineOutcome, error)
	GetAction(ctx context.Context, actionID string) (*models.PendingAction, error)
}

const defaultReply = "Happy to help! Tell me what you'd like to order, or ask me for a recommendation."

type assistantService struct {
	detector      *HybridDetector
	pending       PendingActionService
	executor      ActionExecutor
	advisor       RecoveryAdvisor
	orders        OrderService
	sessions      SessionService
	menuRepo      repository.MenuRepository
	conversations ConversationStore
	cfg           DetectionConfig
	log           logrus.FieldLogger
}

type AssistantDeps struct {
	Detector      *HybridDetector
	Pending       PendingActionService
	Executor      ActionExecutor
	Advisor       RecoveryAdvisor
	Orders        OrderService
	Sessions      SessionService
	MenuRepo      repository.MenuRepository
	Conversations ConversationStore
	Config        DetectionConfig
	Log           logrus.FieldLogger
}

func NewAssistantService(deps AssistantDeps) AssistantService {
	return &assistantService{
		detector:      deps.Detector,
		pending:       deps.Pending,
		executor:      deps.Executor,
		advisor:       deps.Advisor,
		orders:        deps.Orders,
		sessions:      deps.Sessions,
		menuRepo:      deps.MenuRepo,
		conversations: deps.Conversations,
		cfg:           deps.Config,
		log:           deps.Log,
	}
}

func (s *assistantService) HandleMessage(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if req.RestaurantID == 0 || req.TableNumber == "" {
		return nil, fmt.Errorf("%w: restaurant id and table number are required", ErrInvalidDetectionContext)
	}

	session, err := s.sessions.GetOrCreateActiveSession(ctx, req.RestaurantID, req.TableNumber)
	if err != nil {
		return nil, err
	}
	dctx, err := s.detectionContext(ctx, session.ID, session.RestaurantID)
	if err != nil {
		return nil, err
	}

	detection, err := s.detector.Detect(ctx, message, dctx)
	if err != nil {
		return nil, err
	}

	reply := &ChatReply{
		SessionID:    session.ID,
		Confidence:   detection.Confidence,
		UsedFallback: detection.UsedFallback,
		Reasoning:    detection.Reasoning,
	}
	scope := ActionScope{SessionID: session.ID, RestaurantID: session.RestaurantID, TableNumber: session.TableNumber}

	switch candidate := detection.Action; {
	case candidate == nil || candidate.Kind == models.ActionNone:
		reply.Reply = detection.Reply
		if reply.Reply == "" {
			reply.Reply = defaultReply
		}

	case s.runsInline(candidate):
		result, err := s.executor.Execute(ctx, inlineAction(scope, candidate))
		if err != nil {
			return nil, err
		}
		reply.Executed = result
		reply.Reply = result.Message

	default:
		action, err := s.pending.Propose(ctx, scope, candidate)
		if err != nil {
			return nil, err
		}
		reply.Action = action
		reply.Reply = action.ConfirmationMessage
	}

	s.remember(ctx, session.ID, models.RoleUser, message)
	s.remember(ctx, session.ID, models.RoleAssistant, reply.Reply)
	return reply, nil
}

// runsInline reports whether a candidate may skip confirmation: read-only
// kinds above the safe-auto threshold, and clarifying questions.
func (s *assistantService) runsInline(c *Candidate) bool {
	if c.Kind.Mutating() {
		return false
	}
	return c.Kind == models.ActionRequestClarification || c.Confidence >= s.cfg.SafeAutoThreshold
}

func inlineAction(scope ActionScope, c *Candidate) *models.PendingAction {
	now := time.Now()
	return &models.PendingAction{
		SessionID:    scope.SessionID,
		RestaurantID: scope.RestaurantID,
		TableNumber:  scope.TableNumber,
		Kind:         c.Kind,
		Payload:      c.Payload,
		Description:  c.Description,
		Confidence:   c.Confidence,
		Provenance:   c.Provenance,
		State:        models.ActionExecuted,
		CreatedAt:    now,
		ExpiresAt:    now,
	}
}

// Confirm executes a PROPOSED action. If the order moved on since the
// proposal, the action is dropped and the outcome carries alternatives.
func (s *assistantService) Confirm(ctx context.Context, actionID string) (*ConfirmOutcome, error) {
	action, err := s.pending.Confirm(ctx, actionID)
	if err != nil {
		if errors.Is(err, ErrActionExpired) {
			return s.expired(ctx, actionID)
		}
		return nil, err
	}

	result, execErr := s.executor.Execute(ctx, action)
	if execErr != nil {
		if err := s.pending.Discard(ctx, action.ID); err != nil {
			s.log.WithError(err).WithField("action_id", action.ID).Warn("Failed to discard action")
		}
		if !IsConflict(execErr) {
			return nil, fmt.Errorf("failed to execute action %s: %w", action.ID, execErr)
		}

		s.log.WithFields(logrus.Fields{
			"action_id": action.ID,
			"kind":      action.Kind,
		}).WithError(execErr).Info("Confirmed action conflicted with the order state")
		reason := ReasonFailed
		if errors.Is(execErr, ErrOrderNotModifiable) || errors.Is(execErr, ErrConcurrentModification) || errors.Is(execErr, models.ErrInvalidTransition) {
			reason = ReasonConflict
		}
		recovery, alternatives := s.recover(ctx, action, reason)
		s.remember(ctx, action.SessionID, models.RoleAssistant, recovery.Message)
		return &ConfirmOutcome{
			Action:       action,
			Conflict:     true,
			Message:      recovery.Message,
			Alternatives: alternatives,
		}, nil
	}

	executed, err := s.pending.MarkExecuted(ctx, action.ID)
	if err != nil {
		s.log.WithError(err).WithField("action_id", action.ID).Warn("Failed to mark action executed")
		executed = action
		executed.State = models.ActionExecuted
	}
	s.remember(ctx, action.SessionID, models.RoleAssistant, result.Message)
	return &ConfirmOutcome{
		Action:   executed,
		Executed: true,
		Message:  result.Message,
		Result:   result,
	}, nil
}

func (s *assistantService) expired(ctx context.Context, actionID string) (*ConfirmOutcome, error) {
	action, err := s.pending.Get(ctx, actionID)
	if err != nil {
		return nil, ErrActionExpired
	}
	recovery, alternatives := s.recover(ctx, action, ReasonExpired)
	return &ConfirmOutcome{
		Action:       action,
		Conflict:     true,
		Message:      recovery.Message,
		Alternatives: alternatives,
	}, ErrActionExpired
}

func (s *assistantService) Decline(ctx context.Context, actionID string) (*DeclineOutcome, error) {
	action, err := s.pending.Decline(ctx, actionID)
	if err != nil {
		return nil, err
	}
	recovery, alternatives := s.recover(ctx, action, ReasonDeclined)
	s.remember(ctx, action.SessionID, models.RoleAssistant, recovery.Message)
	return &DeclineOutcome{Action: action, Message: recovery.Message, Alternatives: alternatives}, nil
}

func (s *assistantService) GetAction(ctx context.Context, actionID string) (*models.PendingAction, error) {
	return s.pending.Get(ctx, actionID)
}

// recover asks the advisor for alternatives and stores them as new proposals.
func (s *assistantService) recover(ctx context.Context, action *models.PendingAction, reason RecoveryReason) (Recovery, []*models.PendingAction) {
	dctx, err := s.detectionContext(ctx, action.SessionID, action.RestaurantID)
	if err != nil {
		s.log.WithError(err).Warn("Recovering without order context")
	}
	recovery := s.advisor.Recover(ctx, RecoveryRequest{
		Action:       action,
		Reason:       reason,
		Menu:         dctx.Menu,
		CurrentOrder: dctx.CurrentOrder,
		History:      dctx.History,
	})

	var proposals []*models.PendingAction
	for _, alt := range recovery.Alternatives {
		proposal, err := s.pending.Propose(ctx, scopeOf(action), alt)
		if err != nil {
			s.log.WithError(err).Warn("Failed to store recovery alternative")
			continue
		}
		proposals = append(proposals, proposal)
	}
	return recovery, proposals
}

func (s *assistantService) detectionContext(ctx context.Context, sessionID, restaurantID uint) (DetectionContext, error) {
	dctx := DetectionContext{RestaurantID: restaurantID, SessionID: sessionID}

	menu, err := s.menuRepo.ListByRestaurant(ctx, restaurantID, true)
	if err != nil {
		return dctx, fmt.Errorf("failed to load menu: %w", err)
	}
	dctx.Menu = menu

	current, err := s.orders.CurrentOrder(ctx, sessionID)
	switch {
	case err == nil:
		dctx.CurrentOrder = current
	case !errors.Is(err, ErrNoOpenOrder):
		return dctx, err
	}

	if s.conversations != nil {
		history, err := s.conversations.RecentTurns(ctx, sessionID)
		if err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("Conversation history unavailable")
		}
		dctx.History = history
	}
	return dctx, nil
}

func (s *assistantService) remember(ctx context.Context, sessionID uint, role models.ConversationRole, text string) {
	if s.conversations == nil || text == "" {
		return
	}
	turn := models.ConversationTurn{Role: role, Text: text, Timestamp: time.Now()}
	if err := s.conversations.AppendTurn(ctx, sessionID, turn); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("Failed to store conversation turn")
	}
}
