package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"table_waiter/internal/models"
	"table_waiter/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SessionStats struct {
	TotalOrders int64        `json:"total_orders"`
	TotalSpent  models.Cents `json:"total_spent"`
}

type SessionService interface {
	GetOrCreateActiveSession(ctx context.Context, restaurantID uint, tableNumber string) (*models.CustomerSession, error)
	GetSession(ctx context.Context, id uint) (*models.CustomerSession, error)
	RecomputeSessionStats(ctx context.Context, sessionID uint) (SessionStats, error)
	IsLockedForModification(ctx context.Context, sessionID uint) (bool, error)
	CloseSession(ctx context.Context, sessionID uint) (*models.CustomerSession, error)
}

type sessionService struct {
	sessionRepo  repository.SessionRepository
	orderRepo    repository.OrderRepository
	recentWindow int
	log          logrus.FieldLogger
}

func NewSessionService(sessionRepo repository.SessionRepository, orderRepo repository.OrderRepository, recentWindow int, log logrus.FieldLogger) SessionService {
	if recentWindow <= 0 {
		recentWindow = 5
	}
	return &sessionService{sessionRepo: sessionRepo, orderRepo: orderRepo, recentWindow: recentWindow, log: log}
}

// GetOrCreateActiveSession returns the table's ACTIVE session, creating one if
// needed. When two callers race, the unique index rejects the second insert
// and the loser reuses the winner's session.
func (s *sessionService) GetOrCreateActiveSession(ctx context.Context, restaurantID uint, tableNumber string) (*models.CustomerSession, error) {
	if restaurantID == 0 || tableNumber == "" {
		return nil, fmt.Errorf("%w: restaurant id and table number are required", ErrInvalidDetectionContext)
	}

	session, err := s.sessionRepo.GetActive(ctx, restaurantID, tableNumber)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up active session: %w", err)
	}

	session = &models.CustomerSession{
		RestaurantID: restaurantID,
		TableNumber:  tableNumber,
		Status:       models.SessionActive,
		StartedAt:    time.Now(),
	}
	createErr := s.sessionRepo.Create(ctx, session)
	if createErr == nil {
		s.log.WithFields(logrus.Fields{
			"session_id":    session.ID,
			"restaurant_id": restaurantID,
			"table":         tableNumber,
		}).Info("Started table session")
		return session, nil
	}

	existing, err := s.sessionRepo.GetActive(ctx, restaurantID, tableNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", createErr)
	}
	s.log.WithField("session_id", existing.ID).Debug("Lost session creation race, reusing active session")
	return existing, nil
}

func (s *sessionService) GetSession(ctx context.Context, id uint) (*models.CustomerSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// RecomputeSessionStats derives the totals from the non-cancelled orders and
// stores them. It never increments, so calling it twice is harmless.
func (s *sessionService) RecomputeSessionStats(ctx context.Context, sessionID uint) (SessionStats, error) {
	count, spent, err := s.orderRepo.CountedTotalsBySession(ctx, sessionID)
	if err != nil {
		return SessionStats{}, fmt.Errorf("failed to aggregate session orders: %w", err)
	}
	if err := s.sessionRepo.UpdateStats(ctx, sessionID, count, spent); err != nil {
		return SessionStats{}, fmt.Errorf("failed to store session stats: %w", err)
	}
	return SessionStats{TotalOrders: count, TotalSpent: spent}, nil
}

// IsLockedForModification looks at the most recent non-cancelled orders only.
func (s *sessionService) IsLockedForModification(ctx context.Context, sessionID uint) (bool, error) {
	orders, err := s.orderRepo.ListRecentBySession(ctx, sessionID, s.recentWindow, countedStatuses()...)
	if err != nil {
		return false, fmt.Errorf("failed to list recent orders: %w", err)
	}
	for _, o := range orders {
		if o.Status.LocksSession() {
			return true, nil
		}
	}
	return false, nil
}

func (s *sessionService) CloseSession(ctx context.Context, sessionID uint) (*models.CustomerSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, ErrSessionClosed
	}
	if _, err := s.RecomputeSessionStats(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Close(ctx, sessionID, time.Now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionClosed
		}
		return nil, fmt.Errorf("failed to close session: %w", err)
	}
	s.log.WithField("session_id", sessionID).Info("Closed table session")
	return s.GetSession(ctx, sessionID)
}

func countedStatuses() []models.OrderStatus {
	var out []models.OrderStatus
	for _, st := range models.AllOrderStatuses {
		if st.Counted() {
			out = append(out, st)
		}
	}
	return out
}
