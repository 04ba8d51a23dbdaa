package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ledojo/progression-engine/internal/application/command"
	"github.com/ledojo/progression-engine/internal/application/query"
	"github.com/ledojo/progression-engine/internal/application/service"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/domain/wheel"
	"github.com/ledojo/progression-engine/internal/interface/http/handlers"
	"github.com/ledojo/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// CompletedSteps entries are step names ("technique") or step indices (0).
type completeSessionRequest struct {
	TrickID         string            `json:"trickId"`
	DurationSeconds *float64          `json:"durationSeconds"`
	StepCount       int               `json:"stepCount"`
	CompletedSteps  []json.RawMessage `json:"completedSteps"`
}

// steps renders each reported step as a string. JSON strings are unquoted,
// any other scalar keeps its literal text.
func (r completeSessionRequest) steps() []string {
	if r.CompletedSteps == nil {
		return nil
	}
	out := make([]string, 0, len(r.CompletedSteps))
	for _, raw := range r.CompletedSteps {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			out = append(out, name)
			continue
		}
		out = append(out, string(bytes.TrimSpace(raw)))
	}
	return out
}

type completeSessionResponse struct {
	SessionID      string          `json:"sessionId"`
	XPEarned       int             `json:"xpEarned"`
	Bonuses        []service.Bonus `json:"bonuses"`
	Denied         bool            `json:"antiCheatDenied"`
	TotalXP        int             `json:"totalXp"`
	Level          int             `json:"level"`
	CurrentStreak  int             `json:"currentStreak"`
	StreakChange   string          `json:"streakChange,omitempty"`
	Milestone      int             `json:"streakMilestone,omitempty"`
	SpinGranted    bool            `json:"spinGranted"`
	SpinsAvailable int             `json:"wheelSpinsAvailable"`
	Achievements   []string        `json:"achievements"`
}

type spinWheelResponse struct {
	SpinID         string       `json:"spinId"`
	Reward         wheel.Reward `json:"reward"`
	WinnerIndex    int          `json:"winnerIndex"`
	RemainingSpins int          `json:"remainingSpins"`
	TotalXP        int          `json:"totalXp"`
}

type unlockSkillResponse struct {
	Success         bool   `json:"success"`
	AlreadyUnlocked bool   `json:"alreadyUnlocked"`
	SkillID         string `json:"skillId"`
	Cost            int    `json:"cost"`
	TotalXP         int    `json:"totalXp"`
}

type markTrickReadyRequest struct {
	Category string `json:"category"`
}

type rateConfidenceRequest struct {
	Rating       int    `json:"rating"`
	Context      string `json:"context"`
	AudienceType string `json:"audienceType"`
}

type libraryResponse struct {
	RatingID         string   `json:"ratingId,omitempty"`
	AlreadyInLibrary bool     `json:"alreadyInLibrary,omitempty"`
	AlreadyReady     bool     `json:"alreadyReady,omitempty"`
	XPEarned         int      `json:"xpEarned"`
	Achievements     []string `json:"achievements"`
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleInitializeUser handles POST /api/v1/users/:userId/init
func (s *Server) handleInitializeUser(c *gin.Context) {
	res, err := s.deps.InitializeUser.Handle(c.Request.Context(), command.InitializeUserCommand{
		UserID:        c.Param("userId"),
		CorrelationID: handlers.GetRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, "initialize_user", err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(c, status, gin.H{"userId": res.UserID.String(), "created": res.Created})
}

// handleCompleteSession handles POST /api/v1/users/:userId/sessions
func (s *Server) handleCompleteSession(c *gin.Context) {
	var req completeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSONError(c, http.StatusBadRequest, "invalid_body", "request body must be a JSON object")
		return
	}
	if req.DurationSeconds == nil {
		writeJSONError(c, http.StatusBadRequest, "validation_error", "durationSeconds is required")
		return
	}

	res, err := s.deps.CompleteSession.Handle(c.Request.Context(), command.CompleteSessionCommand{
		UserID:          c.Param("userId"),
		TrickID:         req.TrickID,
		DurationSeconds: *req.DurationSeconds,
		StepCount:       req.StepCount,
		CompletedSteps:  req.steps(),
		CorrelationID:   handlers.GetRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, "complete_session", err)
		return
	}

	writeJSON(c, http.StatusOK, completeSessionResponse{
		SessionID:      res.SessionID.String(),
		XPEarned:       res.XPEarned,
		Bonuses:        nonNil(res.Bonuses),
		Denied:         res.Denied,
		TotalXP:        res.TotalXP,
		Level:          res.Level,
		CurrentStreak:  res.CurrentStreak,
		StreakChange:   string(res.StreakChange),
		Milestone:      res.Milestone,
		SpinGranted:    res.SpinGranted,
		SpinsAvailable: res.SpinsAvailable,
		Achievements:   nonNil(res.Achievements),
	})
}

// handleSpinWheel handles POST /api/v1/users/:userId/wheel/spin
func (s *Server) handleSpinWheel(c *gin.Context) {
	res, err := s.deps.SpinWheel.Handle(c.Request.Context(), command.SpinWheelCommand{
		UserID:        c.Param("userId"),
		CorrelationID: handlers.GetRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, "spin_wheel", err)
		return
	}

	writeJSON(c, http.StatusOK, spinWheelResponse{
		SpinID:         res.SpinID.String(),
		Reward:         res.Reward,
		WinnerIndex:    res.WinnerIndex,
		RemainingSpins: res.RemainingSpins,
		TotalXP:        res.TotalXP,
	})
}

// handleUnlockSkill handles POST /api/v1/users/:userId/skills/:skillId/unlock
// Buying an owned node answers 200 with alreadyUnlocked set.
func (s *Server) handleUnlockSkill(c *gin.Context) {
	res, err := s.deps.UnlockSkill.Handle(c.Request.Context(), command.UnlockSkillCommand{
		UserID:        c.Param("userId"),
		SkillID:       c.Param("skillId"),
		CorrelationID: handlers.GetRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, "unlock_skill", err)
		return
	}

	writeJSON(c, http.StatusOK, unlockSkillResponse{
		Success:         true,
		AlreadyUnlocked: res.AlreadyUnlocked,
		SkillID:         res.SkillID,
		Cost:            res.Cost,
		TotalXP:         res.TotalXP,
	})
}

// handleAddTrick handles POST /api/v1/users/:userId/tricks/:trickId
func (s *Server) handleAddTrick(c *gin.Context) {
	var req markTrickReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSONError(c, http.StatusBadRequest, "invalid_body", "request body must be a JSON object")
		return
	}

	res, err := s.deps.AddTrick.Handle(c.Request.Context(), command.AddTrickCommand{
		UserID:        c.Param("userId"),
		TrickID:       c.Param("trickId"),
		Category:      req.Category,
		CorrelationID: handlers.GetRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, "add_trick", err)
		return
	}

	status := http.StatusCreated
	if res.AlreadyInLibrary {
		status = http.StatusOK
	}
	writeJSON(c, status, libraryResponse{
		AlreadyInLibrary: res.AlreadyInLibrary,
		Achievements:     nonNil(res.Achievements),
	})
}

// handleMarkTrickReady handles POST /api/v1/users/:userId/tricks/:trickId/ready
func (s *Server) handleMarkTrickReady(c *gin.Context) {
	var req markTrickReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSONError(c, http.StatusBadRequest, "invalid_body", "request body must be a JSON object")
		return
	}

	res, err := s.deps.MarkTrickReady.Handle(c.Request.Context(), command.MarkTrickReadyCommand{
		UserID:        c.Param("userId"),
		TrickID:       c.Param("trickId"),
		Category:      req.Category,
		CorrelationID: handlers.GetRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, "mark_trick_ready", err)
		return
	}

	writeJSON(c, http.StatusOK, libraryResponse{
		AlreadyReady: res.AlreadyReady,
		XPEarned:     res.XPEarned,
		Achievements: nonNil(res.Achievements),
	})
}

// handleRateConfidence handles POST /api/v1/users/:userId/tricks/:trickId/confidence
func (s *Server) handleRateConfidence(c *gin.Context) {
	var req rateConfidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSONError(c, http.StatusBadRequest, "invalid_body", "request body must be a JSON object")
		return
	}

	res, err := s.deps.RateConfidence.Handle(c.Request.Context(), command.RateConfidenceCommand{
		UserID:        c.Param("userId"),
		TrickID:       c.Param("trickId"),
		Rating:        req.Rating,
		Context:       req.Context,
		AudienceType:  req.AudienceType,
		CorrelationID: handlers.GetRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, "rate_confidence", err)
		return
	}

	writeJSON(c, http.StatusOK, libraryResponse{
		RatingID:     res.RatingID.String(),
		XPEarned:     res.XPEarned,
		Achievements: nonNil(res.Achievements),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProgressionState handles GET /api/v1/users/:userId/progression
// ?fresh=true bypasses the cache.
func (s *Server) handleGetProgressionState(c *gin.Context) {
	fresh, _ := strconv.ParseBool(c.Query("fresh"))

	state, err := s.deps.GetProgressionState.Handle(c.Request.Context(), query.GetProgressionStateQuery{
		UserID:    c.Param("userId"),
		SkipCache: fresh,
	})
	if err != nil {
		s.writeDomainError(c, "get_progression_state", err)
		return
	}
	writeJSON(c, http.StatusOK, state)
}

// handleGetXPHistory handles GET /api/v1/users/:userId/xp-history?limit=50
func (s *Server) handleGetXPHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(c, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		limit = n
	}

	entries, err := s.deps.GetXPHistory.Handle(c.Request.Context(), query.GetXPHistoryQuery{
		UserID: c.Param("userId"),
		Limit:  limit,
	})
	if err != nil {
		s.writeDomainError(c, "get_xp_history", err)
		return
	}
	writeJSON(c, http.StatusOK, nonNil(entries))
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// statusFor maps a DomainError kind onto an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsNotInitialized(err):
		return http.StatusNotFound, "not_initialized"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsInsufficientResource(err):
		return http.StatusConflict, "insufficient_resource"
	case shared.IsPrerequisiteNotMet(err):
		return http.StatusConflict, "prerequisite_not_met"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeDomainError renders err. Rule violations carry the domain message;
// storage and unknown failures are logged and answered generically.
func (s *Server) writeDomainError(c *gin.Context, op string, err error) {
	status, code := statusFor(err)

	message := "An unexpected error occurred"
	var de *shared.DomainError
	if status < http.StatusInternalServerError && errors.As(err, &de) {
		message = de.Message
	} else if status < http.StatusInternalServerError {
		message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed",
			logger.Operation(op),
			logger.UserID(c.Param("userId")),
			logger.Err(err),
		)
	}
	writeJSONError(c, status, code, message)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
