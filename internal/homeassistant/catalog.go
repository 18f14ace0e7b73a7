package homeassistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ariahome/aria/internal/tools"
)

// Catalog exposes the Home Assistant service catalog as the agent's
// external tool host. Tool names are "domain_service"; since both sides
// can contain underscores, a registry built during discovery maps names
// back to their domain/service pair for execution.
type Catalog struct {
	client *Client
	logger *slog.Logger

	mu       sync.Mutex
	registry map[string]serviceRef
}

type serviceRef struct {
	domain      string
	service     string
	hasResponse bool
}

// NewCatalog creates a tool catalog over the given client.
func NewCatalog(client *Client, logger *slog.Logger) *Catalog {
	return &Catalog{
		client:   client,
		logger:   logger.With("component", "ha_catalog"),
		registry: make(map[string]serviceRef),
	}
}

// ListTools fetches the service catalog and converts it to tool
// descriptions, refreshing the name registry as a side effect.
func (c *Catalog) ListTools(ctx context.Context) ([]tools.HostTool, error) {
	domains, err := c.client.GetServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching service catalog: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []tools.HostTool
	for _, d := range domains {
		for name, svc := range d.Services {
			toolName := d.Domain + "_" + name
			c.registry[toolName] = serviceRef{
				domain:      d.Domain,
				service:     name,
				hasResponse: svc.Response != nil,
			}
			out = append(out, tools.HostTool{
				Name:        toolName,
				Description: serviceDescription(d.Domain, name, svc),
				Parameters:  serviceParameters(svc),
			})
		}
	}
	c.logger.Debug("listed host tools", "domains", len(domains), "tools", len(out))
	return out, nil
}

func serviceDescription(domain, name string, svc Service) string {
	desc := svc.Description
	if desc == "" {
		desc = svc.Name
	}
	if desc == "" {
		desc = fmt.Sprintf("Call the %s.%s service", domain, name)
	}
	return desc
}

// serviceParameters converts a service's field list into a JSON Schema.
// Field selectors are not rich enough to recover exact types, so every
// field is presented as a string; Home Assistant coerces on its side.
func serviceParameters(svc Service) map[string]any {
	props := map[string]any{
		"entity_id": map[string]any{
			"type":        "string",
			"description": "Target entity ID, e.g. light.kitchen",
		},
	}
	var required []string
	for fieldName, field := range svc.Fields {
		props[fieldName] = map[string]any{
			"type":        "string",
			"description": field.Description,
		}
		if field.Required {
			required = append(required, fieldName)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Execute runs one discovered tool by calling its underlying service.
func (c *Catalog) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	c.mu.Lock()
	ref, ok := c.registry[name]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}

	if ref.hasResponse {
		resp, err := c.client.CallServiceWithResponse(ctx, ref.domain, ref.service, args)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
	if err := c.client.CallService(ctx, ref.domain, ref.service, args); err != nil {
		return nil, err
	}
	return map[string]any{"status": "done"}, nil
}
