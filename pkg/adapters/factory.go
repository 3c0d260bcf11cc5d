package adapters

import (
	"fmt"

	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/logger"
	"scanhub/pkg/runner"
	"scanhub/pkg/tools"
)

// Factory builds adapters from the current tool catalog, so config reloads
// apply to the next scan.
type Factory interface {
	Adapter(name tools.ToolName) (Adapter, error)
}

type CatalogFactory struct {
	catalog *tools.Catalog
	runner  runner.CommandRunner
	log     *logger.Logger
}

func NewCatalogFactory(catalog *tools.Catalog, r runner.CommandRunner, log *logger.Logger) *CatalogFactory {
	return &CatalogFactory{catalog: catalog, runner: r, log: log}
}

func (f *CatalogFactory) Adapter(name tools.ToolName) (Adapter, error) {
	cfg, ok := f.catalog.Get(name)
	if !ok {
		return nil, scanerrors.NewToolError(string(name), fmt.Errorf("%w: %w", scanerrors.ErrToolResolution, scanerrors.ErrToolNotFound))
	}
	if cfg.Disabled {
		return nil, scanerrors.NewToolError(string(name), fmt.Errorf("%w: tool is disabled", scanerrors.ErrToolResolution))
	}

	a, err := NewCommandAdapter(name, cfg, f.runner, f.log)
	if err != nil {
		return nil, scanerrors.NewToolError(string(name), fmt.Errorf("%w: %v", scanerrors.ErrToolExecution, err))
	}
	return a, nil
}
