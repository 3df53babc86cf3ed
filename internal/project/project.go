package project

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"

	"github.com/splax/deckhand/internal/domain"
)

// composeNames are the recognized compose file names, in precedence
// order. A compose file outranks a coexisting Dockerfile.
var composeNames = []string{"docker-compose.yml", "docker-compose.yaml"}

// Service is one compose-managed service of the project.
type Service struct {
	Name  string
	Image string   // empty when the service builds from source
	Ports []string // published host ports
}

// Config is the discovered build configuration of a working copy.
type Config struct {
	Kind        domain.BuildKind
	ComposeFile string // file name within the working copy, compose kind only
	Dockerfile  string // file name within the working copy, dockerfile kind only
	Services    []Service
}

// Discover inspects the top level of the working copy and selects the
// build configuration kind. Absence of any recognized descriptor is
// fatal for the run.
func Discover(dir string) (Config, error) {
	for _, name := range composeNames {
		if fileExists(filepath.Join(dir, name)) {
			return Config{Kind: domain.KindCompose, ComposeFile: name}, nil
		}
	}
	if name, ok := dockerfileName(dir); ok {
		return Config{Kind: domain.KindDockerfile, Dockerfile: name}, nil
	}
	return Config{}, fmt.Errorf("no docker-compose.yml, docker-compose.yaml or Dockerfile at the top level of %s", dir)
}

// Inspect augments a compose discovery with service detail and warns
// when no service publishes the configured port. Parse problems only
// cost the enrichment, never the run.
func Inspect(ctx context.Context, dir string, cfg Config, projectName string, port int, log *slog.Logger) Config {
	if cfg.Kind != domain.KindCompose {
		return cfg
	}
	services, err := composeServices(ctx, filepath.Join(dir, cfg.ComposeFile), projectName)
	if err != nil {
		log.Warn("compose file could not be parsed, skipping service inspection", "error", err)
		return cfg
	}
	cfg.Services = services
	if !publishesPort(services, port) {
		log.Warn("no compose service publishes the configured port", "port", port)
	}
	return cfg
}

// Images lists the explicit image references of the compose services,
// used by cleanup to remove what the compose teardown leaves behind.
func (c Config) Images() []string {
	var images []string
	for _, svc := range c.Services {
		if svc.Image != "" {
			images = append(images, svc.Image)
		}
	}
	return images
}

func composeServices(ctx context.Context, path, projectName string) ([]Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	details := types.ConfigDetails{
		WorkingDir:  filepath.Dir(path),
		ConfigFiles: []types.ConfigFile{{Filename: path, Content: data}},
		Environment: map[string]string{},
	}
	proj, err := loader.LoadWithContext(ctx, details, func(o *loader.Options) {
		o.SetProjectName(projectName, true)
		o.SkipConsistencyCheck = true
	})
	if err != nil {
		return nil, err
	}

	services := make([]Service, 0, len(proj.Services))
	for name, svc := range proj.Services {
		s := Service{Name: name, Image: svc.Image}
		for _, p := range svc.Ports {
			if p.Published != "" {
				s.Ports = append(s.Ports, p.Published)
			}
		}
		services = append(services, s)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

func publishesPort(services []Service, port int) bool {
	want := strconv.Itoa(port)
	for _, svc := range services {
		for _, p := range svc.Ports {
			if p == want {
				return true
			}
		}
	}
	return false
}

// dockerfileName matches any capitalization, the way docker itself
// accepts the file on case-insensitive filesystems.
func dockerfileName(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), "Dockerfile") {
			return e.Name(), true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
