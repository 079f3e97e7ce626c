package servicediscover

import (
	"context"
	"fmt"
	"strconv"

	"medvive-settlement/pkg/config"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("servicediscover", fx.Invoke(registerConsul))

type ServiceRegistry interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

// registerConsul announces the HTTP service while the process runs. It is a
// no-op when CONSUL.ADDR is empty.
func registerConsul(lc fx.Lifecycle, cfg *config.Config) error {
	if cfg.Consul.Addr == "" {
		return nil
	}

	port := cfg.Consul.ServicePort
	if port == 0 {
		port, _ = strconv.Atoi(cfg.Server.Addr)
	}

	serviceID := fmt.Sprintf("%s-%s", cfg.AppName, cfg.Scheduler.InstanceID)
	registry, err := NewConsulRegistry(cfg.Consul.Addr, cfg.AppName, serviceID, cfg.Consul.ServiceHost, port)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := registry.Register(ctx); err != nil {
				zap.L().Error("failed to register service in consul", zap.String("service_id", serviceID), zap.Error(err))
				return nil
			}
			zap.L().Info("registered service in consul", zap.String("service_id", serviceID))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return registry.Deregister(ctx)
		},
	})
	return nil
}

type ConsulRegistry struct {
	client    *api.Client
	serviceID string
	service   *api.AgentServiceRegistration
}

func NewConsulRegistry(address, serviceName, serviceID, host string, port int) (*ConsulRegistry, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	service := &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Address: host,
		Port:    port,
		Check: &api.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s:%d/health/readiness", host, port),
			Interval: "10s",
			Timeout:  "5s",
		},
	}

	return &ConsulRegistry{
		client:    client,
		serviceID: serviceID,
		service:   service,
	}, nil
}

func (r *ConsulRegistry) Register(ctx context.Context) error {
	return r.client.Agent().ServiceRegister(r.service)
}

func (r *ConsulRegistry) Deregister(ctx context.Context) error {
	return r.client.Agent().ServiceDeregister(r.serviceID)
}
