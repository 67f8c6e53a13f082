package http_api

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	api := s.router.Group("/api/v1")

	autopay := api.Group("/autopay")
	autopay.POST("/evaluate", s.evaluate)
	autopay.POST("/pay", s.pay)
	autopay.GET("/settings", s.getSettings)
	autopay.PUT("/settings", s.updateSettings)
	autopay.GET("/rules", s.listRules)
	autopay.POST("/rules", s.saveRule)
	autopay.DELETE("/rules/:id", s.deleteRule)
	autopay.GET("/limits", s.listPeerLimits)
	autopay.PUT("/limits/:peer", s.setPeerLimit)
	autopay.DELETE("/limits/:peer", s.removePeerLimit)

	proposals := api.Group("/proposals")
	proposals.GET("", s.listProposals)
	proposals.POST("", s.sendProposal)
	proposals.GET("/sent", s.listSentProposals)
	proposals.POST("/discover", s.discoverProposals)
	proposals.POST("/cleanup", s.cleanupProposals)
	proposals.POST("/:id/accept", s.acceptProposal)
	proposals.POST("/:id/decline", s.declineProposal)
	proposals.DELETE("/sent/:id", s.cancelSentProposal)

	api.GET("/subscriptions", s.listSubscriptions)
	api.POST("/subscriptions/:id/cancel", s.cancelSubscription)
	api.POST("/subscriptions/:id/payments", s.recordSubscriptionPayment)

	requests := api.Group("/requests")
	requests.GET("", s.listRequests)
	requests.POST("", s.sendRequest)
	requests.POST("/discover", s.discoverRequests)
	requests.POST("/cleanup", s.cleanupRequests)
	requests.GET("/:id", s.getRequest)
	requests.DELETE("/:id", s.deleteRequest)
	requests.POST("/:id/accept", s.acceptRequest)
	requests.POST("/:id/decline", s.declineRequest)
	requests.DELETE("/sent/:id", s.cancelSentRequest)

	api.POST("/noise/endpoint", s.publishNoiseEndpoint)

	api.GET("/contacts", s.listContacts)
	api.POST("/contacts", s.addContact)
	api.DELETE("/contacts/:pubkey", s.removeContact)

	s.router.GET("/metrics", s.metrics)
}
