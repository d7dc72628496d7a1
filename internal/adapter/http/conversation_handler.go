package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

const maxUtteranceLength = 2000

// Идентификаторы сессий и бизнесов приходят из телефонии
var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,64}$`)

type ConversationHandler struct {
	service interfaces.OrderingService
	logger  logger.Logger
}

func NewConversationHandler(service interfaces.OrderingService, logger logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: service,
		logger:  logger,
	}
}

type MessageRequest struct {
	BusinessID  string `json:"business_id"`
	Text        string `json:"text"`
	CallerPhone string `json:"caller_phone,omitempty"`
}

type DraftResponse struct {
	Items        []domain.DraftItem `json:"items"`
	CustomerName *string            `json:"customer_name,omitempty"`
	Pickup       *string            `json:"pickup,omitempty"`
	Total        float64            `json:"total"`
}

type TurnResponse struct {
	SessionID   string              `json:"session_id"`
	Reply       string              `json:"reply"`
	State       domain.SessionState `json:"state"`
	Draft       DraftResponse       `json:"draft"`
	Reservation *domain.Reservation `json:"reservation,omitempty"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func draftResponse(d domain.OrderDraft) DraftResponse {
	resp := DraftResponse{
		Items:        d.Items,
		CustomerName: d.CustomerName,
		Total:        d.TotalAmount(),
	}
	if resp.Items == nil {
		resp.Items = []domain.DraftItem{}
	}
	if d.RequestedPickup != nil {
		p := d.RequestedPickup.Date + " " + d.RequestedPickup.Start
		resp.Pickup = &p
	} else if d.PickupText != nil {
		resp.Pickup = d.PickupText
	}
	return resp
}

// HandleConversations serves /conversations/{id} and /conversations/{id}/messages
func (h *ConversationHandler) HandleConversations(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || !identifierRegex.MatchString(parts[1]) {
		respondError(w, "Invalid conversation id", http.StatusBadRequest, nil)
		return
	}
	sessionID := parts[1]

	switch {
	case len(parts) == 3 && parts[2] == "messages":
		h.postMessage(w, r, sessionID)
	case len(parts) == 2:
		switch r.Method {
		case http.MethodGet:
			h.getConversation(w, r, sessionID)
		case http.MethodDelete:
			h.resetConversation(w, r, sessionID)
		default:
			respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
		}
	default:
		respondError(w, "Not found", http.StatusNotFound, nil)
	}
}

func (h *ConversationHandler) postMessage(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
		return
	}
	requestID := logger.RequestID(r.Context())

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if validationErrors := validateMessageRequest(req); len(validationErrors) > 0 {
		h.logger.Error("validation_failed", "Message validation failed", requestID, map[string]interface{}{
			"errors": validationErrors,
		}, fmt.Errorf("validation failed"))

		respondError(w, "Validation failed", http.StatusBadRequest, validationErrors)
		return
	}

	ctx := r.Context()
	if phone, ok := domain.NormalizePhone(req.CallerPhone); ok {
		ctx = domain.WithCallerPhone(ctx, phone)
	}

	result, err := h.service.Ingest(ctx, sessionID, req.BusinessID, req.Text)
	if err != nil {
		h.logger.Error("ingest_failed", "Failed to process utterance", requestID, map[string]interface{}{
			"session_id": sessionID,
		}, err)
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, TurnResponse{
		SessionID:   result.SessionID,
		Reply:       result.Reply,
		State:       result.State,
		Draft:       draftResponse(result.Draft),
		Reservation: result.Reservation,
	})
}

func validateMessageRequest(req MessageRequest) []ValidationError {
	var errors []ValidationError

	if !identifierRegex.MatchString(strings.TrimSpace(req.BusinessID)) {
		errors = append(errors, ValidationError{
			Field:   "business_id",
			Message: "business id is required and may contain only letters, digits and . _ : -",
		})
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		errors = append(errors, ValidationError{
			Field:   "text",
			Message: "text is required",
		})
	} else if utf8.RuneCountInString(text) > maxUtteranceLength {
		errors = append(errors, ValidationError{
			Field:   "text",
			Message: fmt.Sprintf("text must not exceed %d characters", maxUtteranceLength),
		})
	}

	if req.CallerPhone != "" {
		if _, ok := domain.NormalizePhone(req.CallerPhone); !ok {
			errors = append(errors, ValidationError{
				Field:   "caller_phone",
				Message: "caller_phone must be 6 to 15 digits with an optional leading +",
			})
		}
	}

	return errors
}

func (h *ConversationHandler) getConversation(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := h.service.Session(r.Context(), sessionID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *ConversationHandler) resetConversation(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := h.service.Reset(r.Context(), sessionID); err != nil {
		h.logger.Error("reset_failed", "Failed to reset conversation", logger.RequestID(r.Context()), map[string]interface{}{
			"session_id": sessionID,
		}, err)
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleBusinesses serves GET /businesses/{id}/slots?date=YYYY-MM-DD and
// GET /businesses/{id}/slots/{HH:MM}?date=YYYY-MM-DD&units=N
func (h *ConversationHandler) HandleBusinesses(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if (len(parts) != 3 && len(parts) != 4) || parts[2] != "slots" {
		respondError(w, "Not found", http.StatusNotFound, nil)
		return
	}
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
		return
	}

	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, "Validation failed", http.StatusBadRequest, []ValidationError{{
			Field:   "date",
			Message: "date must be in YYYY-MM-DD format",
		}})
		return
	}
	if len(parts) == 4 {
		h.checkSlot(w, r, parts[1], date, parts[3])
		return
	}

	slots, err := h.service.AvailableSlots(r.Context(), parts[1], date)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if slots == nil {
		slots = []domain.SlotAvailability{}
	}
	respondJSON(w, http.StatusOK, slots)
}

func (h *ConversationHandler) checkSlot(w http.ResponseWriter, r *http.Request, businessID string, date time.Time, clock string) {
	var validationErrors []ValidationError
	if _, err := domain.ParseClockMinutes(clock); err != nil {
		validationErrors = append(validationErrors, ValidationError{Field: "time", Message: "time must be in HH:MM format"})
	}
	units := 0
	if raw := r.URL.Query().Get("units"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			validationErrors = append(validationErrors, ValidationError{Field: "units", Message: "units must be a positive number"})
		}
		units = n
	}
	if len(validationErrors) > 0 {
		respondError(w, "Validation failed", http.StatusBadRequest, validationErrors)
		return
	}

	slot, err := h.service.CheckSlot(r.Context(), businessID, date, clock, units)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, slot)
}

// HandleReservations serves POST /reservations/{id}/reschedule
func (h *ConversationHandler) HandleReservations(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] != "reschedule" {
		respondError(w, "Not found", http.StatusNotFound, nil)
		return
	}
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
		return
	}
	requestID := logger.RequestID(r.Context())

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	var validationErrors []ValidationError
	date, err := parseDate(req.Date)
	if err != nil {
		validationErrors = append(validationErrors, ValidationError{Field: "date", Message: "date must be in YYYY-MM-DD format"})
	}
	if _, err := domain.ParseClockMinutes(req.Time); err != nil {
		validationErrors = append(validationErrors, ValidationError{Field: "time", Message: "time must be in HH:MM format"})
	}
	if len(validationErrors) > 0 {
		respondError(w, "Validation failed", http.StatusBadRequest, validationErrors)
		return
	}

	moved, err := h.service.Reschedule(r.Context(), parts[1], date, req.Time)
	if err != nil {
		h.logger.Error("reschedule_failed", "Failed to reschedule reservation", requestID, map[string]interface{}{
			"reservation_id": parts[1],
			"restored":       moved != nil,
		}, err)
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, moved)
}

// parseDate returns noon UTC of the day so the calendar date survives any
// business time zone conversion
func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(domain.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(12 * time.Hour), nil
}
