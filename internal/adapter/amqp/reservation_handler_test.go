package amqp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

type recordingService struct {
	got       []interfaces.ReservationMessage
	requestID string
}

func (s *recordingService) HandleReservation(ctx context.Context, msg interfaces.ReservationMessage) error {
	s.got = append(s.got, msg)
	s.requestID = logger.RequestID(ctx)
	return nil
}

func TestReservationHandler(t *testing.T) {
	svc := &recordingService{}
	h := NewReservationHandler(svc, logger.Nop())

	body, _ := json.Marshal(interfaces.ReservationMessage{
		Event:         interfaces.EventReservationConfirmed,
		ReservationID: "res-9",
		BusinessID:    "roma",
		SlotStart:     "19:15",
	})
	if err := h.HandleReservation(context.Background(), body); err != nil {
		t.Fatal(err)
	}
	if len(svc.got) != 1 || svc.got[0].SlotStart != "19:15" {
		t.Fatalf("service got %+v", svc.got)
	}
	if svc.requestID != "res-9" {
		t.Errorf("request id = %q", svc.requestID)
	}

	if err := h.HandleReservation(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
	if len(svc.got) != 1 {
		t.Fatal("malformed body reached the service")
	}
}
