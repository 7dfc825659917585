package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/seatbook/seatbook-backend/internal/booking/reservation"
	"github.com/seatbook/seatbook-backend/internal/domain/booking"
	"github.com/seatbook/seatbook-backend/internal/http/response"
	"github.com/seatbook/seatbook-backend/internal/platform/logger"
)

type ReservationHandler struct {
	log *logger.Logger
	svc *reservation.Service
}

func NewReservationHandler(log *logger.Logger, svc *reservation.Service) *ReservationHandler {
	return &ReservationHandler{
		log: log.With("handler", "ReservationHandler"),
		svc: svc,
	}
}

type createReservationRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	SlotID    string `json:"slot_id" binding:"required"`
	Date      string `json:"date" binding:"required"`
	PartySize int    `json:"party_size" binding:"required"`
	Note      string `json:"note"`
}

// POST /v1/reservations
func (h *ReservationHandler) Create(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_slot_id", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_date", err)
		return
	}

	res, err := h.svc.Create(c.Request.Context(), reservation.CreateInput{
		UserID:    userID,
		SlotID:    slotID,
		Date:      date,
		PartySize: req.PartySize,
		Note:      req.Note,
	})
	if err != nil {
		h.respondBookingError(c, err)
		return
	}
	response.RespondCreated(c, res)
}

type initCapacityRequest struct {
	Date             string `json:"date" binding:"required"`
	InitialRemaining int    `json:"initial_remaining"`
}

// POST /v1/slots/:id/capacity
func (h *ReservationHandler) InitCapacity(c *gin.Context) {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_slot_id", err)
		return
	}
	var req initCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_date", err)
		return
	}

	row, err := h.svc.InitCapacity(c.Request.Context(), slotID, date, req.InitialRemaining)
	if err != nil {
		h.respondBookingError(c, err)
		return
	}
	response.RespondCreated(c, row)
}

// POST /v1/reservations/:id/cancel
func (h *ReservationHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_reservation_id", err)
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), id); err != nil {
		h.respondBookingError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "canceled"})
}

func (h *ReservationHandler) respondBookingError(c *gin.Context, err error) {
	code := booking.CodeOf(err)
	status := statusForCode(code)
	if status == http.StatusInternalServerError {
		h.log.Error("reservation request failed", "error", err)
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	response.RespondError(c, status, string(code), err)
}

func statusForCode(code booking.ErrorCode) int {
	switch code {
	case booking.CodeInvalidInput, booking.CodeInvalidPartySize:
		return http.StatusBadRequest
	case booking.CodeUserNotFound, booking.CodeSlotNotFound, booking.CodeReservationNotFound:
		return http.StatusNotFound
	case booking.CodeSlotNotOpened, booking.CodeNotInitialized:
		return http.StatusConflict
	case booking.CodeDuplicatedTime:
		return http.StatusConflict
	case booking.CodeCapacityNotEnough:
		return http.StatusGone
	case booking.CodeNotAvailable, booking.CodeConcurrency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
