package biz

import (
	"sort"
	"strings"

	"OpsPulse/internal/conf"
	"OpsPulse/internal/model"
)

// ServiceRegistry is the explicit, process-lifetime registry of upstream
// services. It is built once from configuration at startup and handed to the
// router, monitor and detector; nothing mutates it afterwards.
type ServiceRegistry struct {
	byName  map[string]*model.ServiceDescriptor
	ordered []*model.ServiceDescriptor
	// routes is the routing table sorted by descending prefix length so the
	// first match is the longest one.
	routes []*model.ServiceDescriptor
}

// NewServiceRegistry builds the registry from gateway configuration.
func NewServiceRegistry(c *conf.Gateway) *ServiceRegistry {
	r := &ServiceRegistry{
		byName: make(map[string]*model.ServiceDescriptor, len(c.Services)),
	}
	for _, svc := range c.Services {
		desc := &model.ServiceDescriptor{
			Name:             svc.Name,
			BaseURL:          strings.TrimRight(svc.BaseUrl, "/"),
			HealthPath:       svc.HealthPath,
			RoutePrefix:      svc.RoutePrefix,
			Timeout:          svc.Timeout,
			Retries:          svc.Retries,
			BreakerThreshold: svc.BreakerThreshold,
		}
		r.byName[desc.Name] = desc
		r.ordered = append(r.ordered, desc)
	}

	r.routes = make([]*model.ServiceDescriptor, len(r.ordered))
	copy(r.routes, r.ordered)
	sort.SliceStable(r.routes, func(i, j int) bool {
		return len(r.routes[i].RoutePrefix) > len(r.routes[j].RoutePrefix)
	})

	return r
}

// Get returns the descriptor for a service name.
func (r *ServiceRegistry) Get(name string) (*model.ServiceDescriptor, bool) {
	desc, ok := r.byName[name]
	return desc, ok
}

// Services returns all descriptors in registration order.
func (r *ServiceRegistry) Services() []*model.ServiceDescriptor {
	return r.ordered
}

// Route resolves a request path to its target service by longest-prefix
// match. It returns nil when no route matches.
func (r *ServiceRegistry) Route(path string) *model.ServiceDescriptor {
	for _, desc := range r.routes {
		if strings.HasPrefix(path, desc.RoutePrefix) {
			return desc
		}
	}
	return nil
}
