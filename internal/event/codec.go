package event

import (
	"encoding/json"
	"fmt"
)

// DecodeStored reconstructs a typed event from its persisted log payload.
// Payloads are written by the core as plain JSON encodings of the event
// structs, so decoding is a direct unmarshal keyed by the stored type name.
func DecodeStored(eventType string, data []byte) (Event, error) {
	var evt Event
	switch eventType {
	case "AdjustLoan":
		evt = &AdjustLoan{}
	case "TransferLoanFrom":
		evt = &TransferLoanFrom{}
	case "CloseLoanByDex":
		evt = &CloseLoanByDex{}
	case "Authorize":
		evt = &Authorize{}
	case "Unauthorize":
		evt = &Unauthorize{}
	case "UnauthorizeAll":
		evt = &UnauthorizeAll{}
	case "DepositConfirmed":
		evt = &DepositConfirmed{}
	case "WithdrawalConfirmed":
		evt = &WithdrawalConfirmed{}
	case "PriceUpdate":
		evt = &PriceUpdate{}
	case "DebitRateAccrual":
		evt = &DebitRateAccrual{}
	case "RiskParamUpdate":
		evt = &RiskParamUpdate{}
	case "EmergencyPause":
		evt = &EmergencyPause{}
	default:
		return nil, fmt.Errorf("unknown stored event type: %s", eventType)
	}

	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return evt, nil
}
