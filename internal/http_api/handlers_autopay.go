package http_api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/pkg/validation"
)

// EvaluateRequest represents the JSON body for a payment evaluation
type EvaluateRequest struct {
	Peer       string `json:"peer" binding:"required"`
	AmountSats uint64 `json:"amount_sats" binding:"required,gt=0"`
	MethodID   string `json:"method_id"`
}

// PayRequest represents the JSON body for an autonomous payment
type PayRequest struct {
	Peer       string   `json:"peer" binding:"required"`
	AmountSats uint64   `json:"amount_sats" binding:"required,gt=0"`
	MethodID   string   `json:"method_id"`
	Invoice    string   `json:"invoice"`
	Address    string   `json:"address"`
	FeeRate    *float64 `json:"fee_rate"`
}

// RuleRequest represents the JSON body for creating or replacing a rule
type RuleRequest struct {
	ID             string   `json:"id"`
	Name           string   `json:"name" binding:"required"`
	PeerPubkey     string   `json:"peer_pubkey"`
	AllowedMethods []string `json:"allowed_methods"`
	AllowedPeers   []string `json:"allowed_peers"`
	MaxAmountSats  uint64   `json:"max_amount_sats" binding:"required,gt=0"`
	IsEnabled      *bool    `json:"is_enabled"`
	Priority       int      `json:"priority"`
}

// PeerLimitRequest represents the JSON body for setting a peer limit
type PeerLimitRequest struct {
	LimitSats uint64        `json:"limit_sats" binding:"required,gt=0"`
	Period    models.Period `json:"period" binding:"required"`
}

func (s *HTTPServer) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), RequestTimeout)
}

// peerParam validates and normalizes a pubkey, responding 400 when invalid.
func (s *HTTPServer) peerParam(c *gin.Context, pubkey string) (string, bool) {
	pk, err := validation.ValidateAndNormalizePubkey(pubkey)
	if err != nil {
		s.badRequest(c, "Invalid peer pubkey", err)
		return "", false
	}
	return pk, true
}

// evaluate is a handler for the /autopay/evaluate endpoint.
// It previews the auto-pay decision without reserving any budget.
func (s *HTTPServer) evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}
	peer, ok := s.peerParam(c, req.Peer)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	result, err := s.paykit.EvaluatePayment(ctx, peer, req.AmountSats, req.MethodID)
	if err != nil {
		s.respondError(c, err, "Failed to evaluate payment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// pay is a handler for the /autopay/pay endpoint.
// The payment is executed only when auto-pay approves it.
func (s *HTTPServer) pay(c *gin.Context) {
	var req PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}
	peer, ok := s.peerParam(c, req.Peer)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	outcome, err := s.paykit.Pay(ctx, models.PaymentIntent{
		PeerPubkey: peer,
		AmountSats: req.AmountSats,
		MethodID:   req.MethodID,
		Invoice:    req.Invoice,
		Address:    req.Address,
		FeeRate:    req.FeeRate,
	})
	if err != nil {
		s.respondError(c, err, "Failed to pay")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "outcome": outcome})
}

func (s *HTTPServer) getSettings(c *gin.Context) {
	settings, err := s.paykit.GetSettings(c.Request.Context())
	if err != nil {
		s.respondError(c, err, "Failed to get settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": settings})
}

func (s *HTTPServer) updateSettings(c *gin.Context) {
	var req models.SettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}
	settings, err := s.paykit.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err, "Failed to update settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": settings})
}

func (s *HTTPServer) listRules(c *gin.Context) {
	rules, err := s.paykit.ListRules(c.Request.Context())
	if err != nil {
		s.respondError(c, err, "Failed to list rules")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "rules": rules})
}

func (s *HTTPServer) saveRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}

	rule := &models.AutoPayRule{
		ID:             req.ID,
		Name:           req.Name,
		AllowedMethods: models.NewStringSet(req.AllowedMethods...),
		MaxAmountSats:  req.MaxAmountSats,
		IsEnabled:      req.IsEnabled == nil || *req.IsEnabled,
		Priority:       req.Priority,
	}
	if req.PeerPubkey != "" {
		peer, ok := s.peerParam(c, req.PeerPubkey)
		if !ok {
			return
		}
		rule.PeerPubkey = peer
	}
	peers := make([]string, 0, len(req.AllowedPeers))
	for _, p := range req.AllowedPeers {
		peer, ok := s.peerParam(c, p)
		if !ok {
			return
		}
		peers = append(peers, peer)
	}
	rule.AllowedPeers = models.NewStringSet(peers...)

	saved, err := s.paykit.SaveRule(c.Request.Context(), rule)
	if err != nil {
		s.respondError(c, err, "Failed to save rule")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "rule": saved})
}

func (s *HTTPServer) deleteRule(c *gin.Context) {
	if err := s.paykit.DeleteRule(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err, "Failed to delete rule")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) listPeerLimits(c *gin.Context) {
	limits, err := s.paykit.ListPeerLimits(c.Request.Context())
	if err != nil {
		s.respondError(c, err, "Failed to list peer limits")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "limits": limits})
}

func (s *HTTPServer) setPeerLimit(c *gin.Context) {
	peer, ok := s.peerParam(c, c.Param("peer"))
	if !ok {
		return
	}
	var req PeerLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}
	limit, err := s.paykit.SetPeerLimit(c.Request.Context(), peer, req.LimitSats, req.Period)
	if err != nil {
		s.respondError(c, err, "Failed to set peer limit")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "limit": limit})
}

func (s *HTTPServer) removePeerLimit(c *gin.Context) {
	peer, ok := s.peerParam(c, c.Param("peer"))
	if !ok {
		return
	}
	if err := s.paykit.RemovePeerLimit(c.Request.Context(), peer); err != nil {
		s.respondError(c, err, "Failed to remove peer limit")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) metrics(c *gin.Context) {
	s.paykit.MetricsHandler().ServeHTTP(c.Writer, c.Request)
}
