package server

func (s *Server) initRoutes() {
	// OAuth2 API routes
	s.RegisterRouteHandler("GET "+RouteAuthorize, ChainMiddleware(s.Authorize(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteToken, ChainMiddleware(s.Token(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRevoke, ChainMiddleware(s.Revoke(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteToken, ChainMiddleware(s.Preflight(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteRevoke, ChainMiddleware(s.Preflight(), s.APIMiddleware()...))

	// Browser-facing bounce page
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.APIMiddleware()...))

	// Metadata and operations
	s.RegisterRouteHandler("GET "+RouteDiscovery, ChainMiddleware(s.WellKnownAuthorizationServer(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())
}
