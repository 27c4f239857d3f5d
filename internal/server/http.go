package server

import (
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"

	"OpsPulse/internal/biz"
	"OpsPulse/internal/conf"
	"OpsPulse/internal/server/middleware"
	"OpsPulse/internal/service"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(
	c *conf.Server,
	registry *biz.ServiceRegistry,
	gateway *service.GatewayService,
	monitor *service.MonitorService,
	incident *service.IncidentService,
	hub *BroadcastHub,
	logger log.Logger,
) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logger),
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	r := srv.Route("/")
	r.GET("/health", monitor.GatewayHealth)
	r.GET("/status", monitor.GatewayStatus)
	r.GET("/services", monitor.ListServices)
	r.GET("/services/{name}", monitor.GetService)
	r.GET("/system/health", monitor.SystemHealth)
	r.GET("/incidents", incident.ListIncidents)
	r.GET("/errors/{service}", incident.ServiceErrors)
	r.POST("/check", incident.ForceCheck)

	// The WebSocket endpoint hijacks the connection and is registered on
	// the raw mux, outside the kratos middleware chain.
	srv.HandleFunc("/ws", hub.ServeHTTP)

	// Backend prefixes are registered after the API routes so the
	// gateway's own endpoints always win.
	proxy := gateway.Proxy()
	for _, svc := range registry.Services() {
		srv.HandlePrefix(svc.RoutePrefix, proxy)
	}

	return srv
}
