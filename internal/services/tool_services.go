package services

import (
	"scanhub/pkg/tools"
)

type ToolInfo struct {
	tools.Descriptor
	Enabled bool `json:"enabled"`
}

type ToolServiceMethods interface {
	ListTools() []ToolInfo
}

type toolService struct {
	registry *tools.Registry
	catalog  *tools.Catalog
}

// NewToolService lists the registry's tools. A nil catalog reports every tool
// as enabled.
func NewToolService(registry *tools.Registry, catalog *tools.Catalog) ToolServiceMethods {
	if registry == nil {
		registry = tools.DefaultRegistry()
	}
	return &toolService{registry: registry, catalog: catalog}
}

func (s *toolService) ListTools() []ToolInfo {
	descriptors := s.registry.All()
	out := make([]ToolInfo, 0, len(descriptors))
	for _, d := range descriptors {
		enabled := true
		if s.catalog != nil {
			enabled = s.catalog.Enabled(d.Name)
		}
		out = append(out, ToolInfo{Descriptor: d, Enabled: enabled})
	}
	return out
}
