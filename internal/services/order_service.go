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

const maxItemQuantity = 50

// OrderItemInput is one requested line. For removals a zero Quantity means
// the whole line; for modifications it means "leave the quantity alone".
type OrderItemInput struct {
	MenuItemID uint   `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes,omitempty"`
}

// OrderService applies order mutations through the status machine and the
// modifiability policy. Every mutation returns the order with its session
// totals recomputed.
type OrderService interface {
	CreateOrder(ctx context.Context, restaurantID uint, tableNumber string, items []OrderItemInput, notes string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uint, status models.OrderStatus) (*models.Order, error)
	AddItems(ctx context.Context, sessionID uint, items []OrderItemInput) (*models.Order, error)
	RemoveItems(ctx context.Context, orderID uint, items []OrderItemInput) (*models.Order, error)
	ModifyItem(ctx context.Context, orderID uint, change OrderItemInput) (*models.Order, error)
	ReplaceItems(ctx context.Context, orderID uint, before []models.ActionItem, after []OrderItemInput) (*models.Order, error)
	SubmitOrder(ctx context.Context, orderID uint) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID uint, reason string) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uint) (*models.Order, error)
	CurrentOrder(ctx context.Context, sessionID uint) (*models.Order, error)
	ListSessionOrders(ctx context.Context, sessionID uint) ([]models.Order, error)
}

type orderService struct {
	orderRepo repository.OrderRepository
	menuRepo  repository.MenuRepository
	sessions  SessionService
	notifier  StaffNotifier
	log       logrus.FieldLogger
}

// NewOrderService builds the service. notifier may be nil, in which case
// cancellations needing review are only flagged on the order.
func NewOrderService(orderRepo repository.OrderRepository, menuRepo repository.MenuRepository, sessions SessionService, notifier StaffNotifier, log logrus.FieldLogger) OrderService {
	return &orderService{orderRepo: orderRepo, menuRepo: menuRepo, sessions: sessions, notifier: notifier, log: log}
}

func (s *orderService) CreateOrder(ctx context.Context, restaurantID uint, tableNumber string, items []OrderItemInput, notes string) (*models.Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: an order needs at least one item", ErrInvalidOrderItems)
	}
	lines, err := s.buildLines(ctx, restaurantID, items)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.GetOrCreateActiveSession(ctx, restaurantID, tableNumber)
	if err != nil {
		return nil, err
	}
	return s.createInSession(ctx, session, lines, notes)
}

func (s *orderService) createInSession(ctx context.Context, session *models.CustomerSession, lines []models.OrderItem, notes string) (*models.Order, error) {
	order := &models.Order{
		RestaurantID: session.RestaurantID,
		SessionID:    session.ID,
		TableNumber:  session.TableNumber,
		Items:        lines,
		Status:       models.OrderPending,
		Notes:        notes,
	}
	order.Total = order.ComputeTotal()
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"session_id": session.ID,
		"total":      order.Total.String(),
	}).Info("Order created")
	return s.finish(ctx, order.ID)
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, orderID uint, status models.OrderStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, &models.TransitionError{OrderID: order.ID, Current: order.Status, Attempted: status}
	}

	staffReview := status == models.OrderCancelled && models.ModifiabilityFor(order.Status, models.OpCancel).RequiresStaff
	if err := s.orderRepo.UpdateStatus(ctx, order.ID, order.Status, status, staffReview); err != nil {
		return nil, s.writeError(order.ID, err)
	}
	s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"from":     order.Status,
		"to":       status,
	}).Info("Order status updated")
	return s.finish(ctx, order.ID)
}

// AddItems extends the session's open (PENDING, not yet submitted) order or
// starts a new one. Additions are allowed even when the session is locked.
func (s *orderService) AddItems(ctx context.Context, sessionID uint, items []OrderItemInput) (*models.Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: nothing to add", ErrInvalidOrderItems)
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, ErrSessionClosed
	}
	lines, err := s.buildLines(ctx, session.RestaurantID, items)
	if err != nil {
		return nil, err
	}

	open, err := s.orderRepo.GetLatestBySession(ctx, sessionID, models.OrderPending)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load open order: %w", err)
	}
	if open == nil || open.SubmittedAt != nil {
		return s.createInSession(ctx, session, lines, "")
	}

	var changes repository.ItemChanges
	for _, line := range lines {
		if existing := findLine(open.Items, line.MenuItemID, line.Notes); existing != nil {
			existing.Quantity += line.Quantity
			if existing.Quantity > maxItemQuantity {
				return nil, fmt.Errorf("%w: at most %d of %s", ErrInvalidOrderItems, maxItemQuantity, line.ItemName)
			}
			changes.Update = append(changes.Update, *existing)
			continue
		}
		changes.Create = append(changes.Create, line)
	}
	if err := s.orderRepo.ApplyItemChanges(ctx, open.ID, models.OrderPending, changes); err != nil {
		return nil, s.writeError(open.ID, err)
	}
	return s.finish(ctx, open.ID)
}

func (s *orderService) RemoveItems(ctx context.Context, orderID uint, items []OrderItemInput) (*models.Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: nothing to remove", ErrInvalidOrderItems)
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.checkModifiable(ctx, order, models.OpRemoveItems); err != nil {
		return nil, err
	}

	remaining := make(map[uint]int, len(order.Items))
	for _, line := range order.Items {
		remaining[line.ID] = line.Quantity
	}
	for _, in := range items {
		line := firstRemaining(order.Items, in.MenuItemID, remaining)
		if line == nil {
			return nil, fmt.Errorf("%w: menu item %d", ErrItemNotInOrder, in.MenuItemID)
		}
		if in.Quantity <= 0 || in.Quantity >= remaining[line.ID] {
			remaining[line.ID] = 0
		} else {
			remaining[line.ID] -= in.Quantity
		}
	}

	var changes repository.ItemChanges
	left := 0
	for _, line := range order.Items {
		switch qty := remaining[line.ID]; {
		case qty == 0:
			changes.Delete = append(changes.Delete, line.ID)
		case qty != line.Quantity:
			line.Quantity = qty
			changes.Update = append(changes.Update, line)
			left++
		default:
			left++
		}
	}
	if err := s.orderRepo.ApplyItemChanges(ctx, order.ID, order.Status, changes); err != nil {
		return nil, s.writeError(order.ID, err)
	}

	// an order with no lines left is cancelled so it stops counting
	if left == 0 {
		if err := s.orderRepo.UpdateStatus(ctx, order.ID, order.Status, models.OrderCancelled, false); err != nil {
			return nil, s.writeError(order.ID, err)
		}
		s.log.WithField("order_id", order.ID).Info("Last item removed, order cancelled")
	}
	return s.finish(ctx, order.ID)
}

func (s *orderService) ModifyItem(ctx context.Context, orderID uint, change OrderItemInput) (*models.Order, error) {
	if change.Quantity < 0 || change.Quantity > maxItemQuantity {
		return nil, fmt.Errorf("%w: quantity %d out of range", ErrInvalidOrderItems, change.Quantity)
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.checkModifiable(ctx, order, models.OpModifyItems); err != nil {
		return nil, err
	}
	line := order.FindItem(change.MenuItemID)
	if line == nil {
		return nil, fmt.Errorf("%w: menu item %d", ErrItemNotInOrder, change.MenuItemID)
	}
	updated := *line
	if change.Quantity > 0 {
		updated.Quantity = change.Quantity
	}
	if change.Notes != "" {
		updated.Notes = change.Notes
	}
	changes := repository.ItemChanges{Update: []models.OrderItem{updated}}
	if err := s.orderRepo.ApplyItemChanges(ctx, order.ID, order.Status, changes); err != nil {
		return nil, s.writeError(order.ID, err)
	}
	return s.finish(ctx, order.ID)
}

// ReplaceItems rewrites the order's lines to match after. before is the
// snapshot the diner saw; if the order moved on since, the edit is refused.
// Lines that survive keep their original price.
func (s *orderService) ReplaceItems(ctx context.Context, orderID uint, before []models.ActionItem, after []OrderItemInput) (*models.Order, error) {
	if len(after) == 0 {
		return nil, fmt.Errorf("%w: use cancel to empty an order", ErrInvalidOrderItems)
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.checkModifiable(ctx, order, models.OpModifyItems); err != nil {
		return nil, err
	}
	if before != nil && !sameLines(order.Items, before) {
		return nil, fmt.Errorf("order %d: %w", order.ID, ErrConcurrentModification)
	}

	var newInputs []OrderItemInput
	kept := make(map[uint]bool)
	var changes repository.ItemChanges
	for _, in := range after {
		if in.Quantity < 1 || in.Quantity > maxItemQuantity {
			return nil, fmt.Errorf("%w: quantity %d out of range", ErrInvalidOrderItems, in.Quantity)
		}
		line := firstUnkept(order.Items, in.MenuItemID, kept)
		if line == nil {
			newInputs = append(newInputs, in)
			continue
		}
		kept[line.ID] = true
		if line.Quantity != in.Quantity || line.Notes != in.Notes {
			updated := *line
			updated.Quantity = in.Quantity
			updated.Notes = in.Notes
			changes.Update = append(changes.Update, updated)
		}
	}
	for _, line := range order.Items {
		if !kept[line.ID] {
			changes.Delete = append(changes.Delete, line.ID)
		}
	}
	if len(newInputs) > 0 {
		lines, err := s.buildLines(ctx, order.RestaurantID, newInputs)
		if err != nil {
			return nil, err
		}
		changes.Create = lines
	}

	if err := s.orderRepo.ApplyItemChanges(ctx, order.ID, order.Status, changes); err != nil {
		return nil, s.writeError(order.ID, err)
	}
	return s.finish(ctx, order.ID)
}

// SubmitOrder hands a PENDING order to the kitchen queue. The status stays
// PENDING until staff start preparing it.
func (s *orderService) SubmitOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.checkModifiable(ctx, order, models.OpSubmit); err != nil {
		return nil, err
	}
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("%w: order %d is empty", ErrInvalidOrderItems, order.ID)
	}
	if order.SubmittedAt != nil {
		return s.finish(ctx, order.ID)
	}
	if err := s.orderRepo.MarkSubmitted(ctx, order.ID, order.Status, time.Now()); err != nil {
		return nil, s.writeError(order.ID, err)
	}
	s.log.WithField("order_id", order.ID).Info("Order submitted")
	return s.finish(ctx, order.ID)
}

// CancelOrder cancels a PENDING order outright; a PREPARING order is cancelled
// and flagged for staff review.
func (s *orderService) CancelOrder(ctx context.Context, orderID uint, reason string) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	mod := models.ModifiabilityFor(order.Status, models.OpCancel)
	if !mod.Allowed {
		return nil, &ModificationError{OrderID: order.ID, Status: order.Status, Operation: models.OpCancel}
	}
	if err := s.orderRepo.UpdateStatus(ctx, order.ID, order.Status, models.OrderCancelled, mod.RequiresStaff); err != nil {
		return nil, s.writeError(order.ID, err)
	}
	s.log.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"staff_review": mod.RequiresStaff,
		"reason":       reason,
	}).Info("Order cancelled")

	cancelled, err := s.finish(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if mod.RequiresStaff && s.notifier != nil {
		// the cancellation stands even if the alert does not go out
		if err := s.notifier.NotifyStaffReview(ctx, cancelled, reason); err != nil {
			s.log.WithError(err).WithField("order_id", order.ID).Warn("Staff alert failed")
		}
	}
	return cancelled, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// CurrentOrder is the session's newest non-cancelled order.
func (s *orderService) CurrentOrder(ctx context.Context, sessionID uint) (*models.Order, error) {
	order, err := s.orderRepo.GetLatestBySession(ctx, sessionID, countedStatuses()...)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoOpenOrder
		}
		return nil, err
	}
	return order, nil
}

func (s *orderService) ListSessionOrders(ctx context.Context, sessionID uint) ([]models.Order, error) {
	return s.orderRepo.ListBySession(ctx, sessionID)
}

// checkModifiable applies the per-status policy, then the session lock for
// edits of existing lines.
func (s *orderService) checkModifiable(ctx context.Context, order *models.Order, op models.OrderOperation) error {
	if !models.ModifiabilityFor(order.Status, op).Allowed {
		return &ModificationError{OrderID: order.ID, Status: order.Status, Operation: op}
	}
	if op != models.OpRemoveItems && op != models.OpModifyItems {
		return nil
	}
	locked, err := s.sessions.IsLockedForModification(ctx, order.SessionID)
	if err != nil {
		return err
	}
	if locked {
		return &ModificationError{OrderID: order.ID, Status: order.Status, Operation: op, SessionLocked: true}
	}
	return nil
}

// buildLines resolves menu items and captures their current price.
func (s *orderService) buildLines(ctx context.Context, restaurantID uint, items []OrderItemInput) ([]models.OrderItem, error) {
	ids := make([]uint, 0, len(items))
	for _, in := range items {
		if in.Quantity < 1 || in.Quantity > maxItemQuantity {
			return nil, fmt.Errorf("%w: quantity %d out of range", ErrInvalidOrderItems, in.Quantity)
		}
		ids = append(ids, in.MenuItemID)
	}
	menuItems, err := s.menuRepo.GetByIDs(ctx, restaurantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu items: %w", err)
	}
	byID := make(map[uint]models.MenuItem, len(menuItems))
	for _, m := range menuItems {
		byID[m.ID] = m
	}

	var lines []models.OrderItem
	for _, in := range items {
		menuItem, ok := byID[in.MenuItemID]
		if !ok {
			return nil, fmt.Errorf("%w: menu item %d does not exist", ErrMenuItemUnavailable, in.MenuItemID)
		}
		if !menuItem.Available {
			return nil, fmt.Errorf("%w: %s", ErrMenuItemUnavailable, menuItem.Name)
		}
		if existing := findLine(lines, in.MenuItemID, in.Notes); existing != nil {
			existing.Quantity += in.Quantity
			continue
		}
		lines = append(lines, models.OrderItem{
			MenuItemID: menuItem.ID,
			ItemName:   menuItem.Name,
			Quantity:   in.Quantity,
			Price:      menuItem.Price,
			Notes:      in.Notes,
		})
	}
	return lines, nil
}

// finish reloads the order, recomputes the session totals and attaches the session.
func (s *orderService) finish(ctx context.Context, orderID uint) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.RecomputeSessionStats(ctx, order.SessionID); err != nil {
		return nil, err
	}
	session, err := s.sessions.GetSession(ctx, order.SessionID)
	if err != nil {
		return nil, err
	}
	order.Session = session
	return order, nil
}

func (s *orderService) writeError(orderID uint, err error) error {
	if errors.Is(err, repository.ErrStaleOrder) {
		return fmt.Errorf("order %d: %w", orderID, ErrConcurrentModification)
	}
	return fmt.Errorf("failed to update order %d: %w", orderID, err)
}

func findLine(lines []models.OrderItem, menuItemID uint, notes string) *models.OrderItem {
	for i := range lines {
		if lines[i].MenuItemID == menuItemID && lines[i].Notes == notes {
			return &lines[i]
		}
	}
	return nil
}

func firstRemaining(lines []models.OrderItem, menuItemID uint, remaining map[uint]int) *models.OrderItem {
	for i := range lines {
		if lines[i].MenuItemID == menuItemID && remaining[lines[i].ID] > 0 {
			return &lines[i]
		}
	}
	return nil
}

func firstUnkept(lines []models.OrderItem, menuItemID uint, kept map[uint]bool) *models.OrderItem {
	for i := range lines {
		if lines[i].MenuItemID == menuItemID && !kept[lines[i].ID] {
			return &lines[i]
		}
	}
	return nil
}

// sameLines compares the order's lines with a snapshot by item and quantity.
func sameLines(lines []models.OrderItem, snapshot []models.ActionItem) bool {
	if len(lines) != len(snapshot) {
		return false
	}
	counts := make(map[uint]int)
	for _, line := range lines {
		counts[line.MenuItemID] += line.Quantity
	}
	for _, item := range snapshot {
		counts[item.MenuItemID] -= item.Quantity
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}
