package mpesa

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CallbackEnvelope is the Daraja STK callback payload. Metadata items are an
// optional name/value list; any of receipt, phone and amount may be absent and
// absence is a normal case, not an error.
type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

// StkCallback is the nested provider result object.
type StkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []MetadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

// MetadataItem is one name/value pair. Values arrive as strings or numbers
// depending on the field, so the raw bytes are kept for typed extraction.
type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// callbackFacts is the partial record extracted from the metadata list.
type callbackFacts struct {
	Receipt *string
	Phone   *string
	Amount  *decimal.Decimal
}

func extractFacts(items []MetadataItem) callbackFacts {
	var facts callbackFacts
	for _, item := range items {
		switch item.Name {
		case "MpesaReceiptNumber":
			var receipt string
			if err := json.Unmarshal(item.Value, &receipt); err == nil && receipt != "" {
				facts.Receipt = &receipt
			}
		case "PhoneNumber":
			if phone := decodeStringish(item.Value); phone != "" {
				facts.Phone = &phone
			}
		case "Amount":
			var number json.Number
			if err := json.Unmarshal(item.Value, &number); err == nil {
				if amount, err := decimal.NewFromString(number.String()); err == nil {
					facts.Amount = &amount
				}
			}
		}
	}
	return facts
}

// decodeStringish reads a value the provider sends as either a JSON string or
// a bare number, like the subscriber phone.
func decodeStringish(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String()
	}
	return ""
}
