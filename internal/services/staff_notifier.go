package services

import (
	"context"
	"fmt"
	"strings"

	"table_waiter/internal/models"

	"github.com/sirupsen/logrus"
)

// StaffNotifier alerts floor staff about orders that need a human decision.
type StaffNotifier interface {
	NotifyStaffReview(ctx context.Context, order *models.Order, reason string) error
}

// TextSender delivers a plain text message to a phone number.
type TextSender interface {
	SendTextMessage(ctx context.Context, phone, message string) error
}

type whatsappNotifier struct {
	sender TextSender
	phone  string
	log    logrus.FieldLogger
}

func NewWhatsAppNotifier(sender TextSender, staffPhone string, log logrus.FieldLogger) StaffNotifier {
	return &whatsappNotifier{sender: sender, phone: staffPhone, log: log}
}

func (n *whatsappNotifier) NotifyStaffReview(ctx context.Context, order *models.Order, reason string) error {
	message := staffReviewMessage(order, reason)
	if err := n.sender.SendTextMessage(ctx, n.phone, message); err != nil {
		return fmt.Errorf("failed to notify staff about order %d: %w", order.ID, err)
	}
	n.log.WithField("order_id", order.ID).Info("Staff notified for review")
	return nil
}

func staffReviewMessage(order *models.Order, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Review needed*\nTable %s cancelled order #%d while it was being prepared.\n", order.TableNumber, order.ID)
	for _, line := range order.Items {
		fmt.Fprintf(&b, "- %d x %s\n", line.Quantity, line.ItemName)
	}
	if reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", reason)
	}
	fmt.Fprintf(&b, "Total: %s", order.Total)
	return b.String()
}
