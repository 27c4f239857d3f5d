package biz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"OpsPulse/internal/conf"
)

func testGatewayConf() *conf.Gateway {
	return &conf.Gateway{
		BreakerCooldown: durationpb.New(time.Minute),
		Services: []*conf.GatewayService{
			{
				Name:             "file-service",
				BaseUrl:          "http://localhost:8001/",
				HealthPath:       "/health",
				RoutePrefix:      "/files",
				Timeout:          30 * time.Second,
				BreakerThreshold: 5,
			},
			{
				Name:             "archive-service",
				BaseUrl:          "http://localhost:8002",
				HealthPath:       "/health",
				RoutePrefix:      "/files/archive",
				Timeout:          30 * time.Second,
				BreakerThreshold: 5,
			},
		},
	}
}

func TestRegistry_TrimsTrailingSlash(t *testing.T) {
	r := NewServiceRegistry(testGatewayConf())

	svc, ok := r.Get("file-service")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8001", svc.BaseURL)
	assert.Equal(t, "http://localhost:8001/health", svc.HealthURL())
}

func TestRegistry_RouteLongestPrefixWins(t *testing.T) {
	r := NewServiceRegistry(testGatewayConf())

	svc := r.Route("/files/archive/2026/report.zip")
	require.NotNil(t, svc)
	assert.Equal(t, "archive-service", svc.Name)

	svc = r.Route("/files/upload")
	require.NotNil(t, svc)
	assert.Equal(t, "file-service", svc.Name)
}

func TestRegistry_RouteNoMatch(t *testing.T) {
	r := NewServiceRegistry(testGatewayConf())

	assert.Nil(t, r.Route("/metrics"))
	assert.Nil(t, r.Route("/"))
}

func TestRegistry_ServicesKeepRegistrationOrder(t *testing.T) {
	r := NewServiceRegistry(testGatewayConf())

	services := r.Services()
	require.Len(t, services, 2)
	assert.Equal(t, "file-service", services[0].Name)
	assert.Equal(t, "archive-service", services[1].Name)
}
