package http_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paykit-wallet/paykitd/internal/models"
)

// SendPaymentRequest represents the JSON body for publishing a payment request
type SendPaymentRequest struct {
	Recipient     string `json:"recipient" binding:"required"`
	AmountSats    uint64 `json:"amount_sats" binding:"required,gt=0"`
	MethodID      string `json:"method_id"`
	Description   string `json:"description"`
	ExpiresInDays int    `json:"expires_in_days" binding:"gte=0"`
}

// ContactRequest represents the JSON body for following a peer
type ContactRequest struct {
	Pubkey string `json:"pubkey" binding:"required"`
	Name   string `json:"name"`
}

func (s *HTTPServer) discoverRequests(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	result, err := s.paykit.DiscoverRequests(ctx)
	if err != nil {
		s.respondError(c, err, "Failed to discover payment requests")
		return
	}
	body := gin.H{"success": true, "result": result}
	if result.Failures != nil {
		body["warnings"] = result.Failures.Error()
	}
	c.JSON(http.StatusOK, body)
}

// listRequests returns requests with their effective status.
// An optional direction query selects INCOMING or OUTGOING.
func (s *HTTPServer) listRequests(c *gin.Context) {
	direction := models.Direction(c.Query("direction"))
	switch direction {
	case "", models.DirectionIncoming, models.DirectionOutgoing:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "direction must be INCOMING or OUTGOING"})
		return
	}
	views, err := s.paykit.ListRequests(c.Request.Context(), direction)
	if err != nil {
		s.respondError(c, err, "Failed to list payment requests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "requests": views})
}

func (s *HTTPServer) sendRequest(c *gin.Context) {
	var req SendPaymentRequest
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
	sent, err := s.paykit.SendRequest(ctx, recipient, req.AmountSats, req.MethodID, req.Description, req.ExpiresInDays)
	if err != nil {
		s.respondError(c, err, "Failed to send payment request")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "request": sent})
}

func (s *HTTPServer) acceptRequest(c *gin.Context) {
	req, err := s.paykit.AcceptRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err, "Failed to accept payment request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "request": req})
}

func (s *HTTPServer) declineRequest(c *gin.Context) {
	if err := s.paykit.DeclineRequest(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err, "Failed to decline payment request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) cancelSentRequest(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.paykit.CancelSentRequest(ctx, c.Param("id")); err != nil {
		s.respondError(c, err, "Failed to cancel payment request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) cleanupRequests(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	deleted, err := s.paykit.CleanupOrphanedRequests(ctx)
	body := gin.H{"success": true, "deleted": deleted}
	if err != nil {
		if deleted == 0 {
			s.respondError(c, err, "Failed to clean up payment requests")
			return
		}
		body["warnings"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *HTTPServer) publishNoiseEndpoint(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	endpoint, err := s.paykit.PublishNoiseEndpoint(ctx)
	if err != nil {
		s.respondError(c, err, "Failed to publish noise endpoint")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "endpoint": endpoint})
}

func (s *HTTPServer) listContacts(c *gin.Context) {
	contacts, err := s.paykit.ListContacts(c.Request.Context())
	if err != nil {
		s.respondError(c, err, "Failed to list contacts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "contacts": contacts})
}

func (s *HTTPServer) addContact(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}
	contact := &models.Contact{Pubkey: req.Pubkey, Name: req.Name}
	if err := s.paykit.AddContact(c.Request.Context(), contact); err != nil {
		s.respondError(c, err, "Failed to add contact")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "contact": contact})
}

func (s *HTTPServer) removeContact(c *gin.Context) {
	pk, ok := s.peerParam(c, c.Param("pubkey"))
	if !ok {
		return
	}
	if err := s.paykit.RemoveContact(c.Request.Context(), pk); err != nil {
		s.respondError(c, err, "Failed to remove contact")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) getRequest(c *gin.Context) {
	view, err := s.paykit.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err, "Failed to get payment request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "request": view})
}

func (s *HTTPServer) deleteRequest(c *gin.Context) {
	if err := s.paykit.DeleteRequest(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err, "Failed to delete payment request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
