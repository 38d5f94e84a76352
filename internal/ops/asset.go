package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattjoyce/scenebridge/internal/geom"
	"github.com/mattjoyce/scenebridge/internal/registry"
)

type assetListParams struct {
	Path      string `json:"path" desc:"path prefix, e.g. /Game/ModularOldTown"`
	AssetType string `json:"assetType"`
	Limit     int    `json:"limit" desc:"maximum assets returned (default 20)"`
}

type assetInfoParams struct {
	AssetPath string `json:"assetPath" cmd:"required"`
}

func (h *handlers) registerAsset(reg *registry.Registry) error {
	return errors.Join(
		registry.Register(reg, registry.Spec{
			Name: "asset_list", Category: "asset", Aliases: []string{"asset.list"},
			Description: "List catalog assets",
		}, h.assetList),
		registry.Register(reg, registry.Spec{
			Name: "asset_info", Category: "asset", Aliases: []string{"asset.info"},
			Description: "Describe an asset: bounds and sockets",
		}, h.assetInfo),
	)
}

func (h *handlers) assetList(_ context.Context, p assetListParams) (any, error) {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	type entry struct {
		Path string `json:"path"`
		Name string `json:"name"`
		Type string `json:"type"`
	}
	matched := 0
	assets := []entry{}
	for _, a := range h.env.Host.Assets(p.Path) {
		if p.AssetType != "" && !strings.EqualFold(a.Type, p.AssetType) {
			continue
		}
		matched++
		if len(assets) < p.Limit {
			assets = append(assets, entry{Path: a.Path, Name: a.Path[strings.LastIndex(a.Path, "/")+1:], Type: a.Type})
		}
	}
	return map[string]any{
		"assets":     assets,
		"totalCount": matched,
		"path":       p.Path,
	}, nil
}

func (h *handlers) assetInfo(_ context.Context, p assetInfoParams) (any, error) {
	a, err := h.env.Host.Asset(p.AssetPath)
	if err != nil {
		return nil, fmt.Errorf("asset_info: %w", err)
	}
	b := geom.BoundingVolume{Extent: a.Extent}
	return map[string]any{
		"assetPath": a.Path,
		"assetType": a.Type,
		"bounds": map[string]geom.Vec3{
			"extent": a.Extent,
			"size":   b.Size(),
			"min":    b.Min(),
			"max":    b.Max(),
		},
		"pivot":   "center",
		"sockets": a.Sockets,
	}, nil
}
