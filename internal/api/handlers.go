package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/validation"
	"careerkit-credits/internal/credits/gate"
	"careerkit-credits/internal/credits/resolver"
	"careerkit-credits/internal/generation"
	"careerkit-credits/internal/models"
	"careerkit-credits/pkg/catalog"

	"github.com/gin-gonic/gin"
)

const (
	maxWebhookBytes = int64(65536)
	maxHistoryLimit = 200
)

var consumeSchema = []byte(`{
	"type": "object",
	"required": ["feature"],
	"properties": {
		"feature": {"type": "string", "minLength": 1},
		"amount": {"type": "integer", "minimum": 1}
	}
}`)

var generateSchema = []byte(`{
	"type": "object",
	"properties": {
		"input": {"type": "object"}
	}
}`)

type consumeRequest struct {
	Feature string `json:"feature"`
	Amount  int    `json:"amount"`
}

type generateRequest struct {
	Input map[string]interface{} `json:"input"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) ready(c *gin.Context) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) plans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": catalog.AllPlans(), "features": catalog.AllFeatures()})
}

func (s *Server) balance(c *gin.Context) {
	res, err := s.deps.Resolver.Resolve(c.Request.Context(), identifier(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if res.Outcome == resolver.OutcomeDegraded {
		s.logger.Warn("serving degraded balance", map[string]interface{}{
			"userKey": res.Balance.UserKey,
			"cause":   errString(res.Err),
		})
	}
	c.JSON(http.StatusOK, gin.H{"subscription": res.Balance})
}

func (s *Server) consume(c *gin.Context) {
	var req consumeRequest
	if !bindValidated(c, consumeSchema, &req) {
		return
	}

	res, err := s.deps.Gate.Consume(c.Request.Context(), gate.Request{
		Identifier: identifier(c),
		Feature:    req.Feature,
		Cost:       req.Amount,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !res.Success {
		s.respondError(c, res.DenialError())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"remainingCredits": res.Remaining,
		"subscription":     res.Balance,
	})
}

func (s *Server) history(c *gin.Context) {
	limit := s.deps.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondBadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	bal, err := s.deps.Resolver.Resolve(c.Request.Context(), identifier(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	userKey := bal.Balance.UserKey

	var events []models.UsageEvent
	if s.deps.Search != nil {
		events, err = s.deps.Search.History(c.Request.Context(), userKey, limit)
		if err != nil {
			s.logger.Warn("history search failed, reading ledger", map[string]interface{}{"userKey": userKey, "error": err.Error()})
		}
	}
	if s.deps.Search == nil || err != nil {
		events, err = s.deps.Ledger.List(c.Request.Context(), userKey, limit)
		if err != nil {
			s.respondError(c, err)
			return
		}
	}
	if events == nil {
		events = []models.UsageEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// generate charges the feature and then produces the document. Generation
// never fails after a successful charge; the fallback document is returned
// instead.
func (s *Server) generate(c *gin.Context) {
	feature := c.Param("feature")
	var req generateRequest
	if !bindValidated(c, generateSchema, &req) {
		return
	}

	charge, err := s.deps.Gate.Consume(c.Request.Context(), gate.Request{Identifier: identifier(c), Feature: feature})
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !charge.Success {
		s.respondError(c, charge.DenialError())
		return
	}

	doc, err := s.deps.Generator.Generate(c.Request.Context(), generation.Request{Feature: feature, Input: req.Input})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"feature":          doc.Feature,
		"format":           doc.Format,
		"content":          doc.Content,
		"fallback":         doc.Fallback,
		"remainingCredits": charge.Remaining,
		"subscription":     charge.Balance,
	})
}

func (s *Server) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		respondBadRequest(c, "failed to read request body")
		return
	}

	res, err := s.deps.Webhooks.Process(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeWebhookSignature) {
			s.logger.Warn("rejected webhook with bad signature", map[string]interface{}{
				"remoteAddr": c.ClientIP(),
			})
		}
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "type": res.EventType, "handled": res.Handled})
}

// bindValidated reads the body, validates it against schema and decodes it
// into out. An empty body is treated as {}.
func bindValidated(c *gin.Context, schema []byte, out interface{}) bool {
	body, err := c.GetRawData()
	if err != nil {
		respondBadRequest(c, "failed to read request body")
		return false
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	result, err := validation.ValidateJSON(schema, body)
	if err != nil {
		respondBadRequest(c, "malformed JSON body")
		return false
	}
	if !result.Valid {
		respondBadRequest(c, "invalid request body", result.GetErrorMessages()...)
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		respondBadRequest(c, "malformed JSON body")
		return false
	}
	return true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
