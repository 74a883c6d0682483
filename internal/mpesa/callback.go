package mpesa

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CallbackEnvelope is the body Daraja posts to the callback URL once the payer answers.
type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []CallbackItem `json:"Item"`
	} `json:"CallbackMetadata,omitempty"`
}

// CallbackItem values are numbers or strings depending on the item.
type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// Metadata returns the item named name as text, or "" when absent.
func (c StkCallback) Metadata(name string) string {
	if c.CallbackMetadata == nil {
		return ""
	}
	for _, item := range c.CallbackMetadata.Item {
		if !strings.EqualFold(item.Name, name) || len(item.Value) == 0 {
			continue
		}
		var s string
		if err := json.Unmarshal(item.Value, &s); err == nil {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(item.Value, &n); err == nil {
			return n.String()
		}
		return strings.Trim(string(item.Value), `"`)
	}
	return ""
}

func (c StkCallback) ReceiptNumber() string {
	return c.Metadata("MpesaReceiptNumber")
}

// ParseCallback decodes a callback body. The checkout request id is required.
func ParseCallback(data []byte) (*StkCallback, error) {
	var envelope CallbackEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}
	cb := envelope.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("decode callback: missing CheckoutRequestID")
	}
	return &cb, nil
}
