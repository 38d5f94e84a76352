package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/mattjoyce/scenebridge/internal/geom"
	"github.com/mattjoyce/scenebridge/internal/scene"
)

// SpawnSpec is one object of a batch.
type SpawnSpec struct {
	AssetPath string       `json:"assetPath"`
	Location  geom.Vec3    `json:"location"`
	Rotation  geom.Rotator `json:"rotation"`
	Scale     *geom.Vec3   `json:"scale,omitempty"`
	Name      string       `json:"name,omitempty"`
	Folder    string       `json:"folder,omitempty"`
}

type BatchSpawnParams struct {
	Actors       []SpawnSpec `json:"actors" cmd:"required"`
	CommonFolder string      `json:"commonFolder" desc:"folder for every object, overrides per-object folders"`
	Validate     bool        `json:"validate" desc:"re-resolve created objects after the pass"`
}

// BatchFailure reports one spec that produced no object. Index is 1-based,
// matching the entry's position in the request.
type BatchFailure struct {
	Index     int    `json:"index"`
	AssetPath string `json:"assetPath"`
	Error     string `json:"error"`
}

type BatchSpawnResult struct {
	CreatedRefs     []string       `json:"createdRefs"`
	Failures        []BatchFailure `json:"failures"`
	TotalRequested  int            `json:"totalRequested"`
	ExecutionTimeMs float64        `json:"executionTimeMs"`
}

// BatchSpawn creates every spec in one pass with view refresh suspended, so
// the host refreshes once after the last creation. A failing spec does not
// stop the rest. A name used twice in the batch fails the later spec with
// scene.ErrNameConflict.
func BatchSpawn(host scene.Host, p BatchSpawnParams) BatchSpawnResult {
	start := time.Now()
	res := BatchSpawnResult{
		CreatedRefs:    []string{},
		Failures:       []BatchFailure{},
		TotalRequested: len(p.Actors),
	}

	created := spawnAll(host, p, &res)

	if p.Validate {
		kept := []string{}
		for i, name := range res.CreatedRefs {
			if _, err := host.Find(name); err != nil {
				res.Failures = append(res.Failures, BatchFailure{
					Index:     created[i],
					AssetPath: p.Actors[created[i]-1].AssetPath,
					Error:     fmt.Sprintf("%s failed validation: %v", name, err),
				})
				continue
			}
			kept = append(kept, name)
		}
		res.CreatedRefs = kept
	}

	res.ExecutionTimeMs = elapsedMs(start)
	return res
}

// spawnAll creates each spec with refresh suspended and returns the 1-based
// spec index of every created ref. Refresh resumes even if the host panics.
func spawnAll(host scene.Host, p BatchSpawnParams, res *BatchSpawnResult) []int {
	var created []int

	resume := host.SuspendRefresh()
	defer resume()
	for i, spec := range p.Actors {
		fail := func(err error) {
			res.Failures = append(res.Failures, BatchFailure{Index: i + 1, AssetPath: spec.AssetPath, Error: err.Error()})
		}
		if spec.AssetPath == "" {
			fail(fmt.Errorf("missing assetPath"))
			continue
		}

		t := geom.Transform{Location: spec.Location, Rotation: spec.Rotation, Scale: geom.One}
		if spec.Scale != nil {
			t.Scale = *spec.Scale
		}
		folder := spec.Folder
		if p.CommonFolder != "" {
			folder = p.CommonFolder
		}

		o, err := host.Create(scene.CreateSpec{Name: spec.Name, Asset: spec.AssetPath, Transform: t, Folder: folder})
		if err != nil {
			fail(err)
			continue
		}
		res.CreatedRefs = append(res.CreatedRefs, o.Name)
		created = append(created, i+1)
	}
	return created
}

func (h *handlers) batchSpawn(_ context.Context, p BatchSpawnParams) (any, error) {
	res := BatchSpawn(h.env.Host, p)
	h.logger.Info("Batch spawn finished",
		"requested", res.TotalRequested,
		"created", len(res.CreatedRefs),
		"failed", len(res.Failures),
		"duration_ms", res.ExecutionTimeMs,
	)
	return res, nil
}
