package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"table_waiter/internal/models"
	"table_waiter/pkg/openai"
)

const (
	fnAddToOrder            = "add_to_order"
	fnRemoveFromOrder       = "remove_from_order"
	fnModifyOrderItem       = "modify_order_item"
	fnConfirmOrder          = "confirm_order"
	fnCancelOrder           = "cancel_order"
	fnRequestRecommendation = "request_recommendation"
	fnRequestClarification  = "request_clarification"
	fnSpecificOrderEdit     = "specific_order_edit"
)

const itemListSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "properties": {
      "name": {"type": "string", "description": "Exact menu item name"},
      "quantity": {"type": "integer", "minimum": 1},
      "notes": {"type": "string"}
    },
    "required": ["name"]
  }
}`

// ActionTools declares the functions the generative service may call.
func ActionTools() []openai.Tool {
	def := func(name, description, params string) openai.Tool {
		return openai.Tool{Type: "function", Function: openai.FunctionDef{
			Name: name, Description: description, Parameters: json.RawMessage(params),
		}}
	}
	return []openai.Tool{
		def(fnAddToOrder, "Add menu items to the table's order.",
			`{"type":"object","properties":{"items":`+itemListSchema+`},"required":["items"]}`),
		def(fnRemoveFromOrder, "Remove items from the current order. Omit quantity to remove the whole line.",
			`{"type":"object","properties":{"items":`+itemListSchema+`},"required":["items"]}`),
		def(fnModifyOrderItem, "Change the quantity or notes of one item already in the order.",
			`{"type":"object","properties":{"name":{"type":"string"},"quantity":{"type":"integer","minimum":1},"notes":{"type":"string"}},"required":["name"]}`),
		def(fnConfirmOrder, "Send the current order to the kitchen.",
			`{"type":"object","properties":{}}`),
		def(fnCancelOrder, "Cancel the current order.",
			`{"type":"object","properties":{"reason":{"type":"string"}}}`),
		def(fnRequestRecommendation, "The diner asks what to order.",
			`{"type":"object","properties":{"preferences":{"type":"string"},"category":{"type":"string"}}}`),
		def(fnRequestClarification, "Ask the diner a question when the request is ambiguous.",
			`{"type":"object","properties":{"question":{"type":"string"},"options":{"type":"array","items":{"type":"string"}}},"required":["question"]}`),
		def(fnSpecificOrderEdit, "Replace the whole current order with the given list of items.",
			`{"type":"object","properties":{"items":`+itemListSchema+`},"required":["items"]}`),
	}
}

type itemArgs struct {
	Name     string `json:"name"`
	Quantity *int   `json:"quantity"`
	Notes    string `json:"notes"`
}

type itemListArgs struct {
	Items []itemArgs `json:"items"`
}

type modifyArgs struct {
	Name     string `json:"name"`
	Quantity *int   `json:"quantity"`
	Notes    string `json:"notes"`
}

type cancelArgs struct {
	Reason string `json:"reason"`
}

type recommendationArgs struct {
	Preferences string `json:"preferences"`
	Category    string `json:"category"`
}

type clarificationArgs struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// parseToolCall turns an untrusted function call into a typed payload. The
// returned completeness in [0,1] says how much optional detail was supplied.
func parseToolCall(call openai.FunctionCall, dctx DetectionContext) (models.ActionPayload, float64, error) {
	raw := strings.TrimSpace(call.Arguments)
	if raw == "" {
		raw = "{}"
	}
	decode := func(v interface{}) error {
		if err := json.Unmarshal([]byte(raw), v); err != nil {
			return fmt.Errorf("%w: %s arguments: %v", ErrArgumentValidation, call.Name, err)
		}
		return nil
	}

	switch call.Name {
	case fnAddToOrder, fnSpecificOrderEdit:
		var args itemListArgs
		if err := decode(&args); err != nil {
			return nil, 0, err
		}
		items, completeness, err := resolveItemArgs(args.Items, dctx.Menu, true)
		if err != nil {
			return nil, 0, err
		}
		if call.Name == fnAddToOrder {
			return &models.AddToOrderPayload{Items: items}, completeness, nil
		}
		if dctx.CurrentOrder == nil {
			return nil, 0, fmt.Errorf("%w: no current order to edit", ErrArgumentValidation)
		}
		return &models.SpecificOrderEditPayload{
			OrderID: dctx.CurrentOrder.ID,
			Before:  orderSnapshot(dctx.CurrentOrder),
			After:   items,
		}, completeness, nil

	case fnRemoveFromOrder:
		var args itemListArgs
		if err := decode(&args); err != nil {
			return nil, 0, err
		}
		items, _, err := resolveItemArgs(args.Items, dctx.Menu, false)
		if err != nil {
			return nil, 0, err
		}
		return &models.RemoveFromOrderPayload{Items: items}, 1, nil

	case fnModifyOrderItem:
		var args modifyArgs
		if err := decode(&args); err != nil {
			return nil, 0, err
		}
		item := resolveMenuItem(args.Name, dctx.Menu)
		if item == nil {
			return nil, 0, fmt.Errorf("%w: unknown menu item %q", ErrArgumentValidation, args.Name)
		}
		if args.Quantity == nil && strings.TrimSpace(args.Notes) == "" {
			return nil, 0, fmt.Errorf("%w: %s needs a quantity or notes", ErrArgumentValidation, call.Name)
		}
		payload := &models.ModifyOrderItemPayload{MenuItemID: item.ID, Name: item.Name, Notes: strings.TrimSpace(args.Notes)}
		if args.Quantity != nil {
			if *args.Quantity < 1 || *args.Quantity > maxItemQuantity {
				return nil, 0, fmt.Errorf("%w: quantity %d out of range", ErrArgumentValidation, *args.Quantity)
			}
			payload.Quantity = *args.Quantity
		}
		return payload, 1, nil

	case fnConfirmOrder:
		return &models.ConfirmOrderPayload{}, 1, nil

	case fnCancelOrder:
		var args cancelArgs
		if err := decode(&args); err != nil {
			return nil, 0, err
		}
		return &models.CancelOrderPayload{Reason: strings.TrimSpace(args.Reason)}, 1, nil

	case fnRequestRecommendation:
		var args recommendationArgs
		if err := decode(&args); err != nil {
			return nil, 0, err
		}
		completeness := 0.5
		if args.Preferences != "" || args.Category != "" {
			completeness = 1
		}
		return &models.RequestRecommendationPayload{Preferences: args.Preferences, Category: args.Category}, completeness, nil

	case fnRequestClarification:
		var args clarificationArgs
		if err := decode(&args); err != nil {
			return nil, 0, err
		}
		if strings.TrimSpace(args.Question) == "" {
			return nil, 0, fmt.Errorf("%w: clarification without a question", ErrArgumentValidation)
		}
		completeness := 0.5
		if len(args.Options) > 0 {
			completeness = 1
		}
		return &models.RequestClarificationPayload{Question: args.Question, Options: args.Options}, completeness, nil
	}
	return nil, 0, fmt.Errorf("%w: unknown function %q", ErrArgumentValidation, call.Name)
}

// resolveItemArgs maps named items onto the menu. When the quantity is
// required an omitted one defaults to 1 and lowers completeness.
func resolveItemArgs(args []itemArgs, menu []models.MenuItem, requireQuantity bool) ([]models.ActionItem, float64, error) {
	if len(args) == 0 {
		return nil, 0, fmt.Errorf("%w: no items", ErrArgumentValidation)
	}
	items := make([]models.ActionItem, 0, len(args))
	explicit := 0
	for _, a := range args {
		item := resolveMenuItem(a.Name, menu)
		if item == nil {
			return nil, 0, fmt.Errorf("%w: unknown menu item %q", ErrArgumentValidation, a.Name)
		}
		qty := 0
		if a.Quantity != nil {
			if *a.Quantity < 1 || *a.Quantity > maxItemQuantity {
				return nil, 0, fmt.Errorf("%w: quantity %d out of range", ErrArgumentValidation, *a.Quantity)
			}
			qty = *a.Quantity
			explicit++
		} else if requireQuantity {
			qty = 1
		}
		items = append(items, models.ActionItem{
			MenuItemID: item.ID,
			Name:       item.Name,
			Quantity:   qty,
			Price:      item.Price,
			Notes:      strings.TrimSpace(a.Notes),
		})
	}
	return items, float64(explicit) / float64(len(args)), nil
}

func orderSnapshot(order *models.Order) []models.ActionItem {
	items := make([]models.ActionItem, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, models.ActionItem{
			MenuItemID: line.MenuItemID,
			Name:       line.ItemName,
			Quantity:   line.Quantity,
			Price:      line.Price,
			Notes:      line.Notes,
		})
	}
	return items
}
