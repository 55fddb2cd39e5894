package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/component"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/config"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/driver/mock"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/driver/remote"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/executor"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/selector"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/store"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/validator"
)

// workspace is the loaded configuration plus the repositories it points at.
type workspace struct {
	cfg        *config.Config
	runtime    config.Runtime
	elements   selector.ElementRepository
	components component.Repository

	// hasComponents is set when a component source is configured, so that
	// unknown custom components can be reported before the run.
	hasComponents bool
	closeFn       func()
}

// openWorkspace loads configPath (or ./uiflow.yaml) and opens the element
// and component repositories. A configured database wins over YAML files.
func openWorkspace(configPath string) (*workspace, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	rt, err := config.MergeRuntime(config.DefaultRuntime(), cfg.Runtime)
	if err != nil {
		return nil, err
	}

	ws := &workspace{cfg: cfg, runtime: rt, closeFn: func() {}}

	if cfg.Database.Driver != "" {
		db, err := store.OpenSQL(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		logger.Info("Using %s repository", cfg.Database.Driver)
		ws.elements = db
		ws.components = db
		ws.hasComponents = true
		ws.closeFn = func() {
			if err := db.Close(); err != nil {
				logger.Warn("failed to close database: %v", err)
			}
		}
		return ws, nil
	}

	mem := store.NewMemoryStore()
	if cfg.ElementsFile != "" {
		if err := mem.LoadElementsFile(cfg.ElementsFile); err != nil {
			return nil, fmt.Errorf("failed to load elements: %w", err)
		}
	}
	if cfg.ComponentsFile != "" {
		if err := mem.LoadComponentsFile(cfg.ComponentsFile); err != nil {
			return nil, fmt.Errorf("failed to load components: %w", err)
		}
		ws.hasComponents = true
	}
	ws.elements = mem
	ws.components = mem
	return ws, nil
}

// Close releases the repositories.
func (w *workspace) Close() {
	w.closeFn()
}

// validator returns a flow validator that knows the enabled components
// when a component source is configured.
func (w *workspace) validator(ctx context.Context) (*validator.Validator, error) {
	if !w.hasComponents {
		return validator.New(nil), nil
	}
	defs, err := w.components.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}
	types := make([]string, 0, len(defs))
	for typ := range defs {
		types = append(types, typ)
	}
	sort.Strings(types)
	return validator.New(types), nil
}

// workers builds up to parallel device slots. Mock drivers are created on
// demand; remote drivers are limited by the configured agent URLs.
func (w *workspace) workers(parallel int, screenshotDir string) ([]executor.Worker, error) {
	if parallel < 1 {
		parallel = 1
	}
	rt := w.runtime
	base := executor.Dependencies{
		Elements:      w.elements,
		Components:    w.components,
		ImageDir:      w.cfg.ImageDir,
		ScreenshotDir: screenshotDir,
		Runtime:       &rt,
	}

	var workers []executor.Worker
	switch w.cfg.Driver.Type {
	case config.DriverMock:
		for i := 0; i < parallel; i++ {
			workers = append(workers, newWorker(i, fmt.Sprintf("mock-%d", i+1), mock.New(mock.Config{}), base))
		}

	case config.DriverRemote:
		urls := w.cfg.Driver.AgentURLs()
		if len(urls) == 0 {
			return nil, fmt.Errorf("driver.url is required for the remote driver")
		}
		if parallel > len(urls) {
			logger.Warn("--parallel %d exceeds %d configured agents, using %d", parallel, len(urls), len(urls))
			parallel = len(urls)
		}
		opts := remote.Options{
			Rate:    w.cfg.Driver.Rate,
			Burst:   w.cfg.Driver.Burst,
			Timeout: time.Duration(w.cfg.Driver.TimeoutMs) * time.Millisecond,
		}
		for i := 0; i < parallel; i++ {
			workers = append(workers, newWorker(i, urls[i], remote.NewDriver(urls[i], opts), base))
		}

	default:
		return nil, fmt.Errorf("unknown driver type %q", w.cfg.Driver.Type)
	}
	return workers, nil
}

func newWorker(id int, name string, driver core.Driver, base executor.Dependencies) executor.Worker {
	deps := base
	deps.Driver = driver
	if ocr, ok := driver.(core.OCR); ok {
		deps.OCR = ocr
	}
	return executor.Worker{ID: id, Name: name, Deps: deps}
}
