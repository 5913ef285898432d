package billing

import (
	"encoding/json"
	"fmt"
)

// invoicePayload is the slice of an invoice object the reconciler reads. The
// subscription reference moved between API versions, so it is decoded raw.
type invoicePayload struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	BillingReason string          `json:"billing_reason"`
	AmountPaid    int64           `json:"amount_paid"`
	Customer      json.RawMessage `json:"customer"`
	Subscription  json.RawMessage `json:"subscription"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription json.RawMessage `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func parseInvoice(raw []byte) (*invoicePayload, error) {
	var inv invoicePayload
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invoice: %w", err)
	}
	return &inv, nil
}

// ResolveInvoiceSubscriptionID extracts the subscription id from an invoice
// object. It prefers parent.subscription_details.subscription and falls back
// to the top-level subscription field; either may be an id or an expanded
// object. Returns "" when the invoice has no subscription.
func ResolveInvoiceSubscriptionID(raw []byte) string {
	inv, err := parseInvoice(raw)
	if err != nil {
		return ""
	}
	return inv.subscriptionID()
}

func (inv *invoicePayload) subscriptionID() string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		if id := expandableID(inv.Parent.SubscriptionDetails.Subscription); id != "" {
			return id
		}
	}
	return expandableID(inv.Subscription)
}

func (inv *invoicePayload) customerID() string {
	return expandableID(inv.Customer)
}

// expandableID reads a field that is either "id" or {"id": ...}
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}
