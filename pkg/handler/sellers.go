package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/partnerforge/progression/pkg/ack"
	"github.com/partnerforge/progression/pkg/catalog"
	"github.com/partnerforge/progression/pkg/challenge"
	"github.com/partnerforge/progression/pkg/common"
	"github.com/partnerforge/progression/pkg/leaderboard"
	"github.com/partnerforge/progression/pkg/model"
	"github.com/partnerforge/progression/pkg/pipeline"
)

type registerSellerRequest struct {
	BusinessName string `json:"business_name" binding:"required"`
}

type awardXPRequest struct {
	EventType   model.EventType `json:"event_type" binding:"required"`
	Amount      int64           `json:"amount"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata"`
}

type completeLessonRequest struct {
	// EventType defaults to quiz_completed for quizzes and task_completed otherwise.
	EventType model.EventType `json:"event_type"`
	// Amount defaults to the lesson's xp_reward.
	Amount      *int64 `json:"amount"`
	Description string `json:"description"`
}

type evaluateChallengesRequest struct {
	Trigger string `json:"trigger"`
}

type evaluateChallengesResponse struct {
	Completed []catalog.Challenge `json:"completed"`
}

type leaderboardResponse struct {
	Entries []leaderboard.Entry `json:"entries"`
}

// RegisterSeller handles POST /api/v1/sellers.
func (h *Handler) RegisterSeller(c *gin.Context) {
	scope := common.NewScope(c.Request.Context(), "Handler.RegisterSeller")
	defer scope.Finish()

	var req registerSellerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, scope, "business_name", err)
		return
	}

	acc, err := h.engine.RegisterSeller(scope.Ctx, req.BusinessName)
	if err != nil {
		respondError(c, scope, err)
		return
	}
	c.JSON(http.StatusCreated, acc)
}

// AwardXP handles POST /api/v1/sellers/:sellerId/xp.
func (h *Handler) AwardXP(c *gin.Context) {
	scope := common.NewScope(c.Request.Context(), "Handler.AwardXP")
	defer scope.Finish()

	var req awardXPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, scope, "body", err)
		return
	}
	if !req.EventType.Valid() {
		badRequest(c, scope, "event_type", fmt.Errorf("unknown event type %q", req.EventType))
		return
	}

	payload, err := model.DecodePayload(req.EventType, req.Metadata)
	if err != nil {
		badRequest(c, scope, "metadata", err)
		return
	}

	sellerID := c.Param("sellerId")
	scope.SetAttributes("seller_id", sellerID)
	scope.SetAttributes("event_type", string(req.EventType))

	acc, err := h.engine.AwardXP(scope.Ctx, sellerID, req.EventType, req.Amount, req.Description, payload)
	if err != nil {
		respondError(c, scope, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// CompleteLesson handles POST /api/v1/sellers/:sellerId/lessons/:lessonId/complete.
func (h *Handler) CompleteLesson(c *gin.Context) {
	scope := common.NewScope(c.Request.Context(), "Handler.CompleteLesson")
	defer scope.Finish()

	var req completeLessonRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, scope, "body", err)
			return
		}
	}

	lessonID := c.Param("lessonId")
	lesson, ok := h.engine.Catalog().Lesson(lessonID)
	if !ok {
		badRequest(c, scope, "lesson_id", fmt.Errorf("unknown lesson %q", lessonID))
		return
	}

	eventType := req.EventType
	if eventType == "" {
		eventType = model.EventTaskCompleted
		if lesson.Type == catalog.LessonQuiz {
			eventType = model.EventQuizCompleted
		}
	}
	amount := lesson.XPReward
	if req.Amount != nil {
		amount = *req.Amount
	}

	sellerID := c.Param("sellerId")
	scope.SetAttributes("seller_id", sellerID)
	scope.SetAttributes("lesson_id", lessonID)

	out, err := h.manager.ProcessLessonCompletion(scope.Ctx, sellerID, lessonID, eventType, amount, req.Description)
	if err != nil {
		respondError(c, scope, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// AdvanceRank handles POST /api/v1/sellers/:sellerId/rank/advance.
// A denial is a normal 200 response carrying the reason.
func (h *Handler) AdvanceRank(c *gin.Context) {
	scope := common.NewScope(c.Request.Context(), "Handler.AdvanceRank")
	defer scope.Finish()

	res, err := h.engine.AdvanceRank(scope.Ctx, c.Param("sellerId"))
	if err != nil {
		respondError(c, scope, err)
		return
	}
	scope.SetAttributes("success", res.Success)
	c.JSON(http.StatusOK, res)
}

// GetProgressionState handles GET /api/v1/sellers/:sellerId/progression.
func (h *Handler) GetProgressionState(c *gin.Context) {
	scope := common.NewScope(c.Request.Context(), "Handler.GetProgressionState")
	defer scope.Finish()

	state, err := h.engine.GetProgressionState(scope.Ctx, c.Param("sellerId"))
	if err != nil {
		respondError(c, scope, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// ProcessLogin handles POST /api/v1/sellers/:sellerId/logins.
func (h *Handler) ProcessLogin(c *gin.Context) {
	scope := common.NewScope(c.Request.Context(), "Handler.ProcessLogin")
	defer scope.Finish()

	out, err := h.manager.ProcessLogin(scope.Ctx, c.Param("sellerId"))
	if err != nil {
		respondError(c, scope, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ProcessActivity handles POST /api/v1/sellers/:sellerId/activities.
func (h *Handler) ProcessActivity(c *gin.Context) {
	scope := common.NewScope(c.Request.Context(), "Handler.ProcessActivity")
	defer scope.Finish()

	var activity pipeline.Activity
	if err := c.ShouldBindJSON(&activity); err != nil {
		badRequest(c, scope, "body", err)
		return
	}

	out, err := h.manager.ProcessActivity(scope.Ctx, c.Param("sellerId"), activity)
	if err != nil {
		respondError(c, scope, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// EvaluateChallenges handles POST /api/v1/sellers/:sellerId/challenges/evaluate.
// Without a trigger every active challenge is evaluated.
func (h *Handler) EvaluateChallenges(c *gin.Context) {
	scope := common.NewScope(c.Request.Context(), "Handler.EvaluateChallenges")
	defer scope.Finish()

	var req evaluateChallengesRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, scope, "body", err)
			return
		}
	}
	if req.Trigger == "" {
		req.Trigger = challenge.TriggerAll
	}

	completed, err := h.evaluator.EvaluateChallenges(scope.Ctx, c.Param("sellerId"), req.Trigger)
	if err != nil {
		respondError(c, scope, err)
		return
	}
	if completed == nil {
		completed = []catalog.Challenge{}
	}
	c.JSON(http.StatusOK, evaluateChallengesResponse{Completed: completed})
}

// GetLeaderboard handles GET /api/v1/leaderboard.
// Query: exclude (defaults to the house account), limit, seller_id, masked.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	scope := common.NewScope(c.Request.Context(), "Handler.GetLeaderboard")
	defer scope.Finish()

	limit := leaderboard.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, scope, "limit", errors.New("must be a positive integer"))
			return
		}
		limit = n
	}

	masked := false
	if raw := c.Query("masked"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, scope, "masked", err)
			return
		}
		masked = b
	}

	exclude := c.DefaultQuery("exclude", h.houseAccount)

	entries, err := h.leaderboard.GetLeaderboard(scope.Ctx, exclude, limit, c.Query("seller_id"))
	if err != nil {
		respondError(c, scope, err)
		return
	}
	if masked {
		entries = leaderboard.Mask(entries)
	}
	c.JSON(http.StatusOK, leaderboardResponse{Entries: entries})
}

// AcknowledgeFlag handles PUT /api/v1/sellers/:sellerId/devices/:deviceId/acks/:flag.
func (h *Handler) AcknowledgeFlag(c *gin.Context) {
	scope := common.NewScope(c.Request.Context(), "Handler.AcknowledgeFlag")
	defer scope.Finish()

	st, err := h.acks.Acknowledge(scope.Ctx, ackKey(c))
	if err != nil {
		respondError(c, scope, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetAcknowledgment handles GET /api/v1/sellers/:sellerId/devices/:deviceId/acks/:flag.
func (h *Handler) GetAcknowledgment(c *gin.Context) {
	scope := common.NewScope(c.Request.Context(), "Handler.GetAcknowledgment")
	defer scope.Finish()

	st, err := h.acks.Get(scope.Ctx, ackKey(c))
	if err != nil {
		respondError(c, scope, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func ackKey(c *gin.Context) ack.Key {
	return ack.Key{
		SellerID: c.Param("sellerId"),
		DeviceID: c.Param("deviceId"),
		Flag:     c.Param("flag"),
	}
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c *gin.Context) {
	if err := h.health.Check(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
