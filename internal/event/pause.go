package event

import "github.com/google/uuid"

// EmergencyPause toggles the mutation guard. While paused, every
// state-changing loan or authorization command is rejected.
type EmergencyPause struct {
	RequestID uuid.UUID
	Paused    bool
	Sequence  int64
	Timestamp int64
}

func (e *EmergencyPause) IdempotencyKey() string {
	return e.RequestID.String()
}

func (e *EmergencyPause) EventType() EventType {
	return EventTypeEmergencyPause
}

func (e *EmergencyPause) Currency() *string {
	return nil
}

func (e *EmergencyPause) SourceSequence() int64 {
	return e.Sequence
}
