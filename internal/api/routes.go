package api

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.handleGetHealth)
		v1.GET("/status", s.handleGetStatus)

		users := v1.Group("/users/:user_id")
		{
			users.GET("/settings", s.handleGetAllSettings)
			users.POST("/settings/load", s.handleLoadSettings)
			users.DELETE("/settings", s.handleInvalidateAllSettings)

			users.GET("/modes", s.handleGetEnabledModes)
			users.GET("/modes/:mode", s.handleGetModeConfig)
			users.DELETE("/modes/:mode", s.handleInvalidateMode)
			users.GET("/modes/:mode/groups/:group", s.handleGetModeGroup)
			users.PUT("/modes/:mode/groups/:group", s.handleUpdateModeGroup)
			users.DELETE("/modes/:mode/groups/:group", s.handleInvalidateModeGroup)
			users.POST("/modes/:mode/groups/:group/reset", s.handleResetModeGroup)
			users.GET("/modes/:mode/groups/:group/compare", s.handleCompareGroup)

			users.GET("/settings/circuit-breaker", s.handleGetCircuitBreaker)
			users.PUT("/settings/circuit-breaker", s.handleUpdateCircuitBreaker)
			users.GET("/settings/llm", s.handleGetLLMSettings)
			users.PUT("/settings/llm", s.handleUpdateLLMSettings)
			users.GET("/settings/capital-allocation", s.handleGetCapitalAllocation)
			users.PUT("/settings/capital-allocation", s.handleUpdateCapitalAllocation)
			users.GET("/settings/global-trading", s.handleGetGlobalTrading)
			users.PUT("/settings/global-trading", s.handleUpdateGlobalTrading)

			users.GET("/safety/:mode", s.handleGetSafetySettings)
			users.PUT("/safety/:mode", s.handleUpdateSafetySettings)
			users.DELETE("/safety", s.handleInvalidateSafetySettings)

			users.POST("/sequence/:date", s.handleIncrementSequence)
			users.GET("/sequence/:date", s.handleGetSequence)

			users.POST("/seed-defaults", s.handleSeedDefaults)
		}

		admin := v1.Group("/admin/defaults")
		{
			admin.GET("", s.handleGetAllAdminDefaults)
			admin.POST("/load", s.handleLoadAdminDefaults)
			admin.POST("/refresh", s.handleRefreshAdminDefaults)
			admin.DELETE("", s.handleInvalidateAdminDefaults)
			admin.GET("/modes/:mode", s.handleGetAdminModeConfig)
			admin.GET("/modes/:mode/groups/:group", s.handleGetAdminDefaultGroup)
		}
	}
}
