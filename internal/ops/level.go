package ops

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mattjoyce/scenebridge/internal/registry"
	"github.com/mattjoyce/scenebridge/internal/scene"
)

type levelActorsParams struct {
	Filter string `json:"filter" desc:"case-insensitive name substring"`
	Folder string `json:"folder"`
	Limit  int    `json:"limit" desc:"maximum objects returned (default 30)"`
}

type levelOutlinerParams struct {
	ShowEmpty bool `json:"showEmpty"`
	MaxDepth  int  `json:"maxDepth" desc:"deepest folder level shown (default 10)"`
}

type levelSaveParams struct {
	Name string `json:"name" desc:"snapshot file name without extension"`
}

func (h *handlers) registerLevel(reg *registry.Registry) error {
	return errors.Join(
		registry.Register(reg, registry.Spec{
			Name: "level_actors", Category: "level", Aliases: []string{"level.actors"},
			Description: "List objects in the level",
		}, h.levelActors),
		registry.Register(reg, registry.Spec{
			Name: "level_outliner", Category: "level", Aliases: []string{"level.outliner"},
			Description: "Show the folder structure of the level",
		}, h.levelOutliner),
		registry.Register(reg, registry.Spec{
			Name: "level_save", Category: "level", Aliases: []string{"level.save"},
			Description: "Write a snapshot of the level",
		}, h.levelSave),
	)
}

func (h *handlers) levelActors(_ context.Context, p levelActorsParams) (any, error) {
	if p.Limit <= 0 {
		p.Limit = 30
	}
	all := h.env.Host.List(scene.Filter{NameContains: p.Filter, Folder: p.Folder})
	shown := all
	if len(shown) > p.Limit {
		shown = shown[:p.Limit]
	}
	actors := make([]ObjectState, 0, len(shown))
	for _, o := range shown {
		actors = append(actors, stateOf(o))
	}
	return map[string]any{
		"actors":     actors,
		"totalCount": len(all),
		"truncated":  len(all) > len(shown),
	}, nil
}

// OutlinerFolder is one node of the level's folder tree.
type OutlinerFolder struct {
	Actors     []string                   `json:"actors"`
	Subfolders map[string]*OutlinerFolder `json:"subfolders"`
}

func newFolder() *OutlinerFolder {
	return &OutlinerFolder{Actors: []string{}, Subfolders: map[string]*OutlinerFolder{}}
}

func (h *handlers) levelOutliner(_ context.Context, p levelOutlinerParams) (any, error) {
	if p.MaxDepth <= 0 {
		p.MaxDepth = 10
	}
	objects := h.env.Host.List(scene.Filter{})
	root := map[string]*OutlinerFolder{}
	unorganized := []string{}
	organized := 0

	for _, o := range objects {
		if o.Folder == "" {
			unorganized = append(unorganized, o.Name)
			continue
		}
		organized++
		parts := strings.Split(o.Folder, "/")
		// Objects deeper than MaxDepth are listed at the last shown level.
		depth := min(len(parts), p.MaxDepth)
		level := root
		for i := 0; i < depth; i++ {
			f, ok := level[parts[i]]
			if !ok {
				f = newFolder()
				level[parts[i]] = f
			}
			if i == depth-1 {
				f.Actors = append(f.Actors, o.Name)
			}
			level = f.Subfolders
		}
	}

	sortFolders(root)
	if !p.ShowEmpty {
		pruneEmpty(root)
	}
	sort.Strings(unorganized)

	return map[string]any{
		"outliner": map[string]any{
			"folders":     root,
			"unorganized": unorganized,
			"stats": map[string]int{
				"totalActors":       len(objects),
				"organizedActors":   organized,
				"unorganizedActors": len(unorganized),
				"totalFolders":      countFolders(root),
			},
		},
	}, nil
}

func sortFolders(level map[string]*OutlinerFolder) {
	for _, f := range level {
		sort.Strings(f.Actors)
		sortFolders(f.Subfolders)
	}
}

func pruneEmpty(level map[string]*OutlinerFolder) {
	for name, f := range level {
		pruneEmpty(f.Subfolders)
		if len(f.Actors) == 0 && len(f.Subfolders) == 0 {
			delete(level, name)
		}
	}
}

func countFolders(level map[string]*OutlinerFolder) int {
	n := len(level)
	for _, f := range level {
		n += countFolders(f.Subfolders)
	}
	return n
}

func (h *handlers) levelSave(_ context.Context, p levelSaveParams) (any, error) {
	if h.env.SnapshotDir == "" {
		return nil, fmt.Errorf("level snapshots are disabled (scene.snapshot_dir is empty)")
	}
	res, err := scene.SaveSnapshot(h.env.SnapshotDir, p.Name, scene.TakeSnapshot(h.env.Host))
	if err != nil {
		return nil, fmt.Errorf("failed to save level: %w", err)
	}
	h.logger.Info("Level saved", "path", res.Path, "objects", res.Objects, "checksum", res.Checksum)
	return res, nil
}
