package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/raffle-go/internal/payment"
	redisrepo "github.com/kirinyoku/raffle-go/internal/repository/redis"
	"github.com/kirinyoku/raffle-go/internal/service"
	"github.com/kirinyoku/raffle-go/internal/service/admin"
	"github.com/kirinyoku/raffle-go/internal/service/closeout"
	"github.com/kirinyoku/raffle-go/internal/service/draw"
	"github.com/kirinyoku/raffle-go/internal/service/holds"
	"github.com/kirinyoku/raffle-go/internal/service/purchase"
	"github.com/kirinyoku/raffle-go/internal/service/query"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/competitions", handleListCompetitions(svcs))
	r.GET("/competitions/:id", handleGetCompetition(svcs))
	r.GET("/competitions/:id/availability", handleGetAvailability(svcs))
	r.GET("/competitions/:id/entries", handleListCompetitionEntries(svcs))
	r.GET("/competitions/:id/draw", handleGetDraw(svcs))
	r.GET("/entries/:id", handleGetEntry(svcs))
	r.GET("/users/:id/entries", handleListUserEntries(svcs))

	r.POST("/competitions/:id/holds", handleCreateHold(svcs, idem))
	r.POST("/holds/:id/renew", handleRenewHold(svcs))
	r.DELETE("/holds/:id", handleReleaseHold(svcs))

	r.POST("/purchases", handleCompletePurchase(svcs, idem))

	// Admin/scheduler API
	// TODO: add admin middleware
	adminGroup := r.Group("/admin")
	{
		adminGroup.POST("/competitions", handleCreateCompetition(svcs))
		adminGroup.POST("/competitions/:id/close", handleCloseCompetition(svcs))
		adminGroup.POST("/competitions/:id/draw", handleRunDraw(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List competitions
// @Param    limit  query  int  false "page size"
// @Param    offset query  int  false "offset"
// @Success  200  {array}   domain.Competition
// @Router   /competitions [get]
func handleListCompetitions(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 100)
		offset := parseIntDefault(c.Query("offset"), 0)

		out, err := svcs.Query.ListCompetitions(c.Request.Context(), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=15", true)
	}
}

// @Summary  Get competition with availability counters
// @Param    id  path  int  true  "Competition ID"
// @Success  200  {object}  domain.CompetitionWithCounts
// @Failure  404  {object}  ErrorResponse
// @Router   /competitions/{id} [get]
func handleGetCompetition(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		competitionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		cc, err := svcs.Query.GetCompetition(c.Request.Context(), competitionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, cc, "public, max-age=15", true)
	}
}

// @Summary  Get availability counters
// @Param    id  path  int  true  "Competition ID"
// @Success  200  {object}  domain.LedgerCounts
// @Router   /competitions/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		competitionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		lc, err := svcs.Query.Availability(c.Request.Context(), competitionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, lc, "public, max-age=5", true)
	}
}

// @Summary  List competition entries
// @Param    id  path  int  true  "Competition ID"
// @Success  200  {array}  domain.Entry
// @Router   /competitions/{id}/entries [get]
func handleListCompetitionEntries(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		competitionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		entries, err := svcs.Query.ListCompetitionEntries(c.Request.Context(), competitionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

// @Summary  Get draw record
// @Param    id  path  int  true  "Competition ID"
// @Success  200  {object}  domain.DrawRecord
// @Failure  404  {object}  ErrorResponse
// @Router   /competitions/{id}/draw [get]
func handleGetDraw(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		competitionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		d, err := svcs.Query.GetDraw(c.Request.Context(), competitionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, d, "public, max-age=300", true)
	}
}

// @Summary  Get entry
// @Param    id  path  string  true  "Entry ID (uuid)"
// @Success  200  {object}  domain.Entry
// @Failure  404  {object}  ErrorResponse
// @Router   /entries/{id} [get]
func handleGetEntry(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		entryID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		e, err := svcs.Query.GetEntry(c.Request.Context(), entryID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// @Summary  List user entries
// @Param    id     path   int  true  "User ID"
// @Param    limit  query  int  false "page size"
// @Param    offset query  int  false "offset"
// @Success  200  {array}  domain.Entry
// @Router   /users/{id}/entries [get]
func handleListUserEntries(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		limit := parseIntDefault(c.Query("limit"), 100)
		offset := parseIntDefault(c.Query("offset"), 0)

		entries, err := svcs.Query.ListUserEntries(c.Request.Context(), userID, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

// @Summary  Create hold (idempotent)
// @Param    id  path  int  true  "Competition ID"
// @Param    req body  CreateHoldRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} HoldResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "insufficient capacity / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /competitions/{id}/holds [post]
func handleCreateHold(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		competitionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemHold(competitionID, idemKey)

			if replayIdempotent(c, idem, idemStorageKey, idemKey) {
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if replayIdempotent(c, idem, idemStorageKey, idemKey) {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		ttl := time.Duration(req.TTLSec) * time.Second
		rlKey := "ip:" + c.ClientIP()

		hold, err := svcs.Holds.Create(
			c.Request.Context(),
			competitionID,
			req.SessionID,
			req.UserID,
			req.Quantity,
			ttl,
			rlKey,
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			if isRateLimitedErr(err) {
				c.Header("Retry-After", "60")
				c.JSON(
					http.StatusTooManyRequests,
					ErrorResponse{Error: err.Error()},
				)
				return
			}
			respondErr(c, err)
			return
		}

		resp := HoldResponse{
			HoldID:        hold.ID.String(),
			CompetitionID: hold.CompetitionID,
			Quantity:      hold.Quantity,
			ExpiresAt:     hold.ExpiresAt,
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Renew hold
// @Param    id  path  string  true  "Hold ID (uuid)"
// @Param    req body  RenewHoldRequest false "payload"
// @Success  200 {object} HoldResponse
// @Failure  409 {object} ErrorResponse "hold expired"
// @Router   /holds/{id}/renew [post]
func handleRenewHold(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		holdID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req RenewHoldRequest
		_ = c.ShouldBindJSON(&req)

		hold, err := svcs.Holds.Renew(
			c.Request.Context(),
			holdID,
			time.Duration(req.TTLSec)*time.Second,
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, HoldResponse{
			HoldID:        hold.ID.String(),
			CompetitionID: hold.CompetitionID,
			Quantity:      hold.Quantity,
			ExpiresAt:     hold.ExpiresAt,
		})
	}
}

// @Summary  Release hold
// @Param    id  path  string  true  "Hold ID (uuid)"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Router   /holds/{id} [delete]
func handleReleaseHold(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		holdID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		if _, err := svcs.Holds.Release(c.Request.Context(), holdID); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// @Summary  Complete purchase (idempotent)
// @Param    req body  CompletePurchaseRequest true "payload"
// @Success  201 {object} PurchaseResponse
// @Failure  402 {object} ErrorResponse "payment failed"
// @Failure  409 {object} ErrorResponse
// @Router   /purchases [post]
func handleCompletePurchase(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CompletePurchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		holdID, err := uuid.Parse(req.HoldID)
		if err != nil {
			badRequest(c, "invalid hold_id")
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemPurchase(idemKey)

			if replayIdempotent(c, idem, idemStorageKey, idemKey) {
				return
			}

			locked, lockErr := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if lockErr != nil {
				respondErr(c, lockErr)
				return
			}
			if !locked {
				if replayIdempotent(c, idem, idemStorageKey, idemKey) {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		entry, err := svcs.Purchase.Complete(
			c.Request.Context(),
			holdID,
			payment.Confirmation{
				Reference:   req.PaymentRef,
				Succeeded:   req.PaymentSucceeded != nil && *req.PaymentSucceeded,
				AmountCents: req.AmountCents,
			},
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := PurchaseResponse{
			EntryID:       entry.ID.String(),
			CompetitionID: entry.CompetitionID,
			TicketNumbers: entry.TicketNumbers(),
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Create competition
// @Param    req body  CreateCompetitionRequest true "payload"
// @Success  201 {object} CreateCompetitionResponse
// @Router   /admin/competitions [post]
func handleCreateCompetition(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateCompetitionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		closesAt, err := parseRFC3339(req.ClosesAt)
		if err != nil {
			badRequest(c, "invalid closes_at (RFC3339)")
			return
		}
		id, err := svcs.Admin.CreateCompetition(
			c.Request.Context(),
			req.Title,
			req.TotalTickets,
			req.MinTickets,
			req.PriceCents,
			req.PrizeCount,
			closesAt,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateCompetitionResponse{CompetitionID: id})
	}
}

// @Summary  Close competition (scheduler/admin trigger, idempotent)
// @Param    id  path  int  true  "Competition ID"
// @Success  200 {object} CloseResponse
// @Router   /admin/competitions/{id}/close [post]
func handleCloseCompetition(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		competitionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		status, err := svcs.Closeout.Close(c.Request.Context(), competitionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CloseResponse{
			CompetitionID: competitionID,
			Status:        string(status),
		})
	}
}

// @Summary  Run draw (scheduler/admin trigger, single-shot)
// @Param    id  path  int  true  "Competition ID"
// @Success  201 {object} domain.DrawRecord
// @Failure  409 {object} ErrorResponse "not settled / already drawn"
// @Router   /admin/competitions/{id}/draw [post]
func handleRunDraw(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		competitionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		record, err := svcs.Draw.Run(c.Request.Context(), competitionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

// --- Helpers ---

func replayIdempotent(
	c *gin.Context,
	idem *redisrepo.IdempotencyStore,
	storageKey, idemKey string,
) bool {
	payload, ok, _ := idem.GetResult(c.Request.Context(), storageKey)
	if !ok {
		return false
	}

	c.Header("Idempotency-Key", idemKey)
	c.Data(
		http.StatusCreated,
		"application/json; charset=utf-8",
		[]byte(payload),
	)

	return true
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func isRateLimitedErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "rate limited")
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// admin service
	case errors.Is(err, admin.ErrCompetitionConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "competition conflict"})
		return
	case errors.Is(err, admin.ErrInvalidCompetition):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid competition parameters"})
		return
	// query service
	case errors.Is(err, query.ErrCompetitionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "competition not found"})
		return
	case errors.Is(err, query.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "entry not found"})
		return
	case errors.Is(err, query.ErrDrawNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "draw not found"})
		return
	// holds service
	case errors.Is(err, holds.ErrCompetitionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "competition not found"})
		return
	case errors.Is(err, holds.ErrCompetitionClosed):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "competition closed"})
		return
	case errors.Is(err, holds.ErrInsufficientCapacity):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "not enough tickets available"})
		return
	case errors.Is(err, holds.ErrHoldConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "hold conflict"})
		return
	case errors.Is(err, holds.ErrHoldExpired):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "hold expired"})
		return
	case errors.Is(err, holds.ErrHoldNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "hold not found"})
		return
	// purchase service
	case errors.Is(err, purchase.ErrHoldNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "hold not found"})
		return
	case errors.Is(err, purchase.ErrHoldExpired):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "hold expired"})
		return
	case errors.Is(err, purchase.ErrAlreadyConsumed):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "hold already consumed"})
		return
	case errors.Is(err, purchase.ErrCompetitionClosed):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "competition closed"})
		return
	case errors.Is(err, purchase.ErrPaymentFailed):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{Error: "payment failed, hold released"})
		return
	// closeout service
	case errors.Is(err, closeout.ErrCompetitionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "competition not found"})
		return
	// draw service
	case errors.Is(err, draw.ErrCompetitionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "competition not found"})
		return
	case errors.Is(err, draw.ErrNotSettled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "competition not settled"})
		return
	case errors.Is(err, draw.ErrAlreadyDrawn):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "competition already drawn"})
		return
	case errors.Is(err, draw.ErrNoEntries):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "no sold tickets to draw from"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
