package ops

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mattjoyce/scenebridge/internal/events"
	"github.com/mattjoyce/scenebridge/internal/hostloop"
	"github.com/mattjoyce/scenebridge/internal/registry"
	"github.com/mattjoyce/scenebridge/internal/scene"
	"github.com/mattjoyce/scenebridge/internal/session"
)

type helpParams struct {
	Tool     string `json:"tool" desc:"command to describe"`
	Category string `json:"category" desc:"only list this category"`
}

type restartParams struct{}

func (h *handlers) registerSystem(reg *registry.Registry) error {
	return errors.Join(
		registry.Register(reg, registry.Spec{
			Name: "test_connection", Category: "system", Aliases: []string{"system.test_connection"},
			Description: "Check that the bridge reaches the host main context",
		}, h.testConnection),
		registry.Register(reg, registry.Spec{
			Name: "help", Category: "system", Aliases: []string{"system.help"},
			Description: "List commands or describe one",
		}, h.help),
		registry.Register(reg, registry.Spec{
			Name: "restart_listener", Category: "system", Aliases: []string{"system.restart"},
			Description: "Schedule a listener restart on a later tick",
		}, h.restartListener),
		registry.Register(reg, registry.Spec{
			Name: "project_info", Category: "level", Aliases: []string{"project.info"},
			Description: "Describe the project and scene",
		}, h.projectInfo),
	)
}

func (h *handlers) testConnection(ctx context.Context, _ struct{}) (any, error) {
	return map[string]any{
		"status":      "connected",
		"project":     h.env.Project.Name,
		"version":     h.env.Project.Version,
		"mainContext": hostloop.IsMain(ctx),
		"objects":     len(h.env.Host.List(scene.Filter{})),
	}, nil
}

func (h *handlers) help(_ context.Context, p helpParams) (any, error) {
	reg := h.env.Registry
	if p.Tool != "" {
		cmd, ok := reg.Lookup(p.Tool)
		if !ok {
			return nil, fmt.Errorf("unknown command %q", p.Tool)
		}
		return cmd, nil
	}

	byCategory := make(map[string][]map[string]string)
	for _, cmd := range reg.List() {
		if p.Category != "" && cmd.Category != p.Category {
			continue
		}
		byCategory[cmd.Category] = append(byCategory[cmd.Category], map[string]string{
			"name":        cmd.Name,
			"description": cmd.Description,
		})
	}
	if p.Category != "" && len(byCategory) == 0 {
		return nil, fmt.Errorf("unknown category %q", p.Category)
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return map[string]any{
		"categories": categories,
		"commands":   byCategory,
		"total":      reg.Len(),
	}, nil
}

// restartListener never waits for the restart: the response goes out on the
// current generation before its port is released. The outcome is published
// by the session manager as session.started or session.failed and logged
// here once known.
func (h *handlers) restartListener(_ context.Context, _ restartParams) (any, error) {
	r := h.restarter()
	if r == nil {
		return nil, fmt.Errorf("no session manager installed")
	}
	go h.reportRestart(r.Restart())
	h.logger.Info("Listener restart scheduled")
	return map[string]any{
		"scheduled":    true,
		"message":      "Restart scheduled",
		"successEvent": events.SessionStarted,
		"failureEvent": events.SessionFailed,
	}, nil
}

func (h *handlers) reportRestart(done <-chan error) {
	err := <-done
	switch {
	case err == nil:
		h.logger.Info("Listener restart completed")
	case errors.Is(err, session.ErrSuperseded):
		h.logger.Warn("Listener restart superseded", "error", err)
	default:
		h.logger.Error("Listener restart failed", "error", err)
	}
}

func (h *handlers) projectInfo(_ context.Context, _ struct{}) (any, error) {
	return map[string]any{
		"project":    h.env.Project,
		"objects":    len(h.env.Host.List(scene.Filter{})),
		"assets":     len(h.env.Host.Assets("")),
		"renderMode": h.env.Host.RenderMode(),
		"gridUnit":   h.env.GridUnit,
	}, nil
}
