package http_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paykit-wallet/paykitd/internal/models"
)

// SendProposalRequest represents the JSON body for publishing a proposal
type SendProposalRequest struct {
	Recipient   string           `json:"recipient" binding:"required"`
	AmountSats  uint64           `json:"amount_sats" binding:"required,gt=0"`
	Frequency   models.Frequency `json:"frequency" binding:"required"`
	Description string           `json:"description"`
}

// AcceptProposalRequest represents the JSON body for accepting a proposal
type AcceptProposalRequest struct {
	EnableAutopay bool    `json:"enable_autopay"`
	LimitSats     *uint64 `json:"limit_sats"`
}

// discoverProposals is a handler for the /proposals/discover endpoint.
// Per-peer failures are reported as warnings, the request still succeeds.
func (s *HTTPServer) discoverProposals(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	result, err := s.paykit.DiscoverProposals(ctx)
	if err != nil {
		s.respondError(c, err, "Failed to discover proposals")
		return
	}
	body := gin.H{"success": true, "result": result}
	if result.Failures != nil {
		body["warnings"] = result.Failures.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *HTTPServer) listProposals(c *gin.Context) {
	proposals, err := s.paykit.ListProposals(c.Request.Context(), models.ProposalStatus(c.Query("status")))
	if err != nil {
		s.respondError(c, err, "Failed to list proposals")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "proposals": proposals})
}

func (s *HTTPServer) sendProposal(c *gin.Context) {
	var req SendProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}
	recipient, ok := s.peerParam(c, req.Recipient)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	id, err := s.paykit.SendProposal(ctx, recipient, req.AmountSats, req.Frequency, req.Description)
	if err != nil {
		s.respondError(c, err, "Failed to send proposal")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": id})
}

func (s *HTTPServer) acceptProposal(c *gin.Context) {
	var req AcceptProposalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, "Invalid request body", err)
			return
		}
	}
	sub, err := s.paykit.AcceptProposal(c.Request.Context(), c.Param("id"), req.EnableAutopay, req.LimitSats)
	if err != nil && sub == nil {
		s.respondError(c, err, "Failed to accept proposal")
		return
	}
	body := gin.H{"success": true, "subscription": sub}
	if err != nil {
		s.logger.Warn("Proposal accepted with errors", "id", c.Param("id"), "error", err)
		body["warnings"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *HTTPServer) declineProposal(c *gin.Context) {
	if err := s.paykit.DeclineProposal(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err, "Failed to decline proposal")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) cancelSentProposal(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.paykit.CancelSentProposal(ctx, c.Param("id")); err != nil {
		s.respondError(c, err, "Failed to cancel proposal")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) cleanupProposals(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	deleted, err := s.paykit.CleanupOrphanedProposals(ctx)
	body := gin.H{"success": true, "deleted": deleted}
	if err != nil {
		if deleted == 0 {
			s.respondError(c, err, "Failed to clean up proposals")
			return
		}
		body["warnings"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *HTTPServer) listSubscriptions(c *gin.Context) {
	subs, err := s.paykit.ListSubscriptions(c.Request.Context())
	if err != nil {
		s.respondError(c, err, "Failed to list subscriptions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "subscriptions": subs})
}

func (s *HTTPServer) cancelSubscription(c *gin.Context) {
	if err := s.paykit.CancelSubscription(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err, "Failed to cancel subscription")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) listSentProposals(c *gin.Context) {
	sent, err := s.paykit.ListSentProposals(c.Request.Context())
	if err != nil {
		s.respondError(c, err, "Failed to list sent proposals")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "proposals": sent})
}

// recordSubscriptionPayment is called by the wallet after a subscription
// payment went through outside of /autopay/pay.
func (s *HTTPServer) recordSubscriptionPayment(c *gin.Context) {
	sub, err := s.paykit.RecordSubscriptionPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err, "Failed to record subscription payment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "subscription": sub})
}
