package ops_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/scenebridge/internal/geom"
	"github.com/mattjoyce/scenebridge/internal/ops"
	"github.com/mattjoyce/scenebridge/internal/registry"
	"github.com/mattjoyce/scenebridge/internal/scene"
)

const (
	unitCube = "/Test/UnitCube"
	wall     = "/Game/ModularOldTown/Meshes/Walls/SM_FlatWall_3m"
	marker   = "/Test/Marker"
)

func testCatalog() []scene.Asset {
	return append(scene.DefaultCatalog(), scene.Asset{
		Path:    unitCube,
		Type:    "StaticMesh",
		Extent:  geom.Vec3{X: 0.5, Y: 0.5, Z: 0.5},
		Sockets: []scene.Socket{{Name: "anchor", Local: geom.Identity()}},
	}, scene.Asset{
		Path: marker,
		Type: "StaticMesh",
	})
}

func place(t *testing.T, s *scene.Scene, name, asset string, loc geom.Vec3) scene.Object {
	t.Helper()
	o, err := s.Create(scene.CreateSpec{
		Name:      name,
		Asset:     asset,
		Transform: geom.Transform{Location: loc, Scale: geom.One},
	})
	require.NoError(t, err)
	return o
}

type fakeRestarter struct {
	calls int
	err   error
}

func (f *fakeRestarter) Restart() <-chan error {
	f.calls++
	ch := make(chan error, 1)
	ch <- f.err
	return ch
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	scene       *scene.Scene
	reg         *registry.Registry
	restarter   *fakeRestarter
	snapshotDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		scene:       scene.New(testCatalog()),
		reg:         registry.New(),
		restarter:   &fakeRestarter{},
		snapshotDir: t.TempDir(),
	}
	require.NoError(t, ops.Register(h.reg, ops.Env{
		Host:        h.scene,
		Restarter:   h.restarter,
		Project:     ops.Project{Name: "TestProject", Version: "dev", Engine: "sim"},
		SnapshotDir: h.snapshotDir,
	}))
	return h
}

func (h *harness) call(t *testing.T, name, params string) (any, error) {
	t.Helper()
	cmd, ok := h.reg.Lookup(name)
	require.True(t, ok, "command %s not registered", name)
	return cmd.Invoke(context.Background(), json.RawMessage(params))
}

func (h *harness) mustCall(t *testing.T, name, params string) map[string]any {
	t.Helper()
	out, err := h.call(t, name, params)
	require.NoError(t, err)
	m, ok := out.(map[string]any)
	require.True(t, ok, "result of %s is %T", name, out)
	return m
}

func TestRegisterRequiresHost(t *testing.T) {
	err := ops.Register(registry.New(), ops.Env{})
	require.Error(t, err)
}

func TestRegisterAddsAliases(t *testing.T) {
	h := newHarness(t)
	for alias, want := range map[string]string{
		"system.test_connection": "test_connection",
		"actor.spawn":            "actor_spawn",
		"actor.batch_spawn":      "actor_batch_spawn",
		"placement.validate":     "placement_validate",
		"viewport.fit":           "viewport_fit",
		"batch.operations":       "batch_operations",
	} {
		got, ok := h.reg.Resolve(alias)
		if assert.True(t, ok, alias) {
			assert.Equal(t, want, got)
		}
	}
}

func TestBatchSpawnCollectsFailuresAndRefreshesOnce(t *testing.T) {
	s := scene.New(testCatalog())
	before := s.Refreshes()

	res := ops.BatchSpawn(s, ops.BatchSpawnParams{
		Actors: []ops.SpawnSpec{
			{AssetPath: unitCube, Location: geom.Vec3{X: 0}},
			{AssetPath: unitCube, Location: geom.Vec3{X: 10}},
			{AssetPath: "/Game/Missing/SM_Nope", Location: geom.Vec3{X: 20}},
			{AssetPath: unitCube, Location: geom.Vec3{X: 30}},
			{AssetPath: unitCube, Location: geom.Vec3{X: 40}},
		},
		CommonFolder: "Batch",
	})

	assert.Len(t, res.CreatedRefs, 4)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 3, res.Failures[0].Index)
	assert.Equal(t, "/Game/Missing/SM_Nope", res.Failures[0].AssetPath)
	assert.Equal(t, 5, res.TotalRequested)
	assert.Equal(t, before+1, s.Refreshes())

	for _, name := range res.CreatedRefs {
		o, err := s.Find(name)
		require.NoError(t, err)
		assert.Equal(t, "Batch", o.Folder)
	}
}

type panickingHost struct {
	*scene.Scene
}

func (h panickingHost) Create(spec scene.CreateSpec) (scene.Object, error) {
	if spec.Name == "boom" {
		panic("host crashed")
	}
	return h.Scene.Create(spec)
}

func TestBatchSpawnResumesRefreshAfterPanic(t *testing.T) {
	s := scene.New(testCatalog())
	before := s.Refreshes()

	require.Panics(t, func() {
		ops.BatchSpawn(panickingHost{s}, ops.BatchSpawnParams{Actors: []ops.SpawnSpec{
			{AssetPath: unitCube, Name: "ok"},
			{AssetPath: unitCube, Name: "boom"},
		}})
	})
	assert.Equal(t, before+1, s.Refreshes(), "suspended refresh was not resumed")

	place(t, s, "after", unitCube, geom.Vec3{X: 5})
	assert.Equal(t, before+2, s.Refreshes())
}

func TestBatchSpawnDuplicateNameFailsLaterSpec(t *testing.T) {
	s := scene.New(testCatalog())
	res := ops.BatchSpawn(s, ops.BatchSpawnParams{
		Actors: []ops.SpawnSpec{
			{AssetPath: unitCube, Name: "Twin"},
			{AssetPath: unitCube, Name: "Twin"},
			{Name: "NoAsset"},
		},
		Validate: true,
	})
	assert.Equal(t, []string{"Twin"}, res.CreatedRefs)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, 2, res.Failures[0].Index)
	assert.Contains(t, res.Failures[0].Error, "already in use")
	assert.Equal(t, 3, res.Failures[1].Index)
	assert.Equal(t, "missing assetPath", res.Failures[1].Error)
}

func TestBatchSpawnHandlerThroughRegistry(t *testing.T) {
	h := newHarness(t)
	out, err := h.call(t, "actor.batch_spawn", `{"actors":[{"assetPath":"/Test/UnitCube","location":[1,2,3]}]}`)
	require.NoError(t, err)
	res, ok := out.(ops.BatchSpawnResult)
	require.True(t, ok)
	require.Len(t, res.CreatedRefs, 1)

	_, err = h.call(t, "actor_batch_spawn", `{}`)
	require.ErrorIs(t, err, registry.ErrInvalidParams)
}

func ptr[T any](v T) *T { return &v }

func TestPlacementTouchingCubesOverlapAtZero(t *testing.T) {
	s := scene.New(testCatalog())
	place(t, s, "A", unitCube, geom.Vec3{})
	place(t, s, "B", unitCube, geom.Vec3{X: 1})

	res, err := ops.PlacementValidate(s, ops.PlacementParams{
		Actors:           []string{"A", "B"},
		OverlapTolerance: ptr(0.0),
		CheckAlignment:   ptr(false),
	}, ops.DefaultGridUnit)
	require.NoError(t, err)

	require.Len(t, res.Overlaps, 1)
	assert.InDelta(t, 0, res.Overlaps[0].Amount, 1e-9)
	assert.Equal(t, "x", res.Overlaps[0].Axis)
	assert.Equal(t, "minor", res.Overlaps[0].Severity)
	assert.Empty(t, res.Gaps)
	assert.Equal(t, "issues-found", res.Summary.Status)
	assert.Equal(t, "minor_issues", res.Summary.Overall)
}

func TestPlacementGapBetweenCubes(t *testing.T) {
	s := scene.New(testCatalog())
	place(t, s, "A", unitCube, geom.Vec3{})
	place(t, s, "B", unitCube, geom.Vec3{X: 10})

	res, err := ops.PlacementValidate(s, ops.PlacementParams{
		Actors:         []string{"A", "B"},
		GapTolerance:   ptr(1.0),
		CheckAlignment: ptr(false),
	}, ops.DefaultGridUnit)
	require.NoError(t, err)

	require.Len(t, res.Gaps, 1)
	g := res.Gaps[0]
	assert.InDelta(t, 9, g.Distance, 1e-9)
	assert.Equal(t, "x", g.Axis)
	assert.Equal(t, [2]string{"A", "B"}, g.Actors)
	assert.InDelta(t, 5, g.Location.X, 1e-9)
	assert.Empty(t, res.Overlaps)
}

func TestPlacementDiagonalGapUsesNearestAxis(t *testing.T) {
	s := scene.New(testCatalog())
	place(t, s, "A", unitCube, geom.Vec3{})
	place(t, s, "B", unitCube, geom.Vec3{X: 1.5, Y: 1.5})
	place(t, s, "C", unitCube, geom.Vec3{X: 3, Y: 4})

	res, err := ops.PlacementValidate(s, ops.PlacementParams{
		Actors:         []string{"A", "B", "C"},
		GapTolerance:   ptr(0.6),
		CheckAlignment: ptr(false),
	}, ops.DefaultGridUnit)
	require.NoError(t, err)

	// A-B is 0.5 apart on X and Y: within tolerance even though the boxes
	// are 0.707 apart corner to corner. B-C is 0.5 on X and 1.5 on Y, also
	// within. A-C is 2 on X and 3 on Y.
	require.Len(t, res.Gaps, 1)
	g := res.Gaps[0]
	assert.Equal(t, [2]string{"A", "C"}, g.Actors)
	assert.InDelta(t, 2, g.Distance, 1e-9)
	assert.Equal(t, "x", g.Axis)
	assert.InDelta(t, 3, g.PerAxis.Y, 1e-9)
}

func TestPlacementCoincidentMarkersOverlap(t *testing.T) {
	for name, tolerance := range map[string]*float64{
		"default tolerance": nil,
		"zero tolerance":    ptr(0.0),
	} {
		t.Run(name, func(t *testing.T) {
			s := scene.New(testCatalog())
			place(t, s, "P1", marker, geom.Vec3{X: 3})
			place(t, s, "P2", marker, geom.Vec3{X: 3})

			res, err := ops.PlacementValidate(s, ops.PlacementParams{
				Actors:           []string{"P1", "P2"},
				OverlapTolerance: tolerance,
				CheckAlignment:   ptr(false),
			}, ops.DefaultGridUnit)
			require.NoError(t, err)

			require.Len(t, res.Overlaps, 1)
			assert.Equal(t, 0.0, res.Overlaps[0].Amount)
			assert.Empty(t, res.Gaps)
			assert.Equal(t, "issues-found", res.Summary.Status)
		})
	}
}

func TestPlacementAlignmentAndSeverity(t *testing.T) {
	s := scene.New(testCatalog())
	place(t, s, "W1", wall, geom.Vec3{})
	place(t, s, "W2", wall, geom.Vec3{X: 200, Y: 0, Z: 0})

	res, err := ops.PlacementValidate(s, ops.PlacementParams{
		Actors:   []string{"W1", "W2"},
		GridUnit: 300,
	}, ops.DefaultGridUnit)
	require.NoError(t, err)

	require.Len(t, res.Overlaps, 1)
	// 100 deep on X but only 20 on Y; the shallower axis is the penetration.
	assert.InDelta(t, 20, res.Overlaps[0].Amount, 1e-9)
	assert.Equal(t, "y", res.Overlaps[0].Axis)
	assert.Equal(t, "minor", res.Overlaps[0].Severity)

	require.Len(t, res.AlignmentIssues, 1)
	issue := res.AlignmentIssues[0]
	assert.Equal(t, "W2", issue.Actor)
	assert.Equal(t, "x", issue.Axis)
	assert.InDelta(t, 300, issue.Suggested.X, 1e-9)
}

func TestPlacementErrors(t *testing.T) {
	s := scene.New(testCatalog())
	place(t, s, "A", unitCube, geom.Vec3{})

	_, err := ops.PlacementValidate(s, ops.PlacementParams{Actors: []string{"A"}}, ops.DefaultGridUnit)
	require.Error(t, err)

	_, err = ops.PlacementValidate(s, ops.PlacementParams{Actors: []string{"A", "Ghost"}}, ops.DefaultGridUnit)
	require.ErrorIs(t, err, scene.ErrNotFound)
	assert.Contains(t, err.Error(), "Ghost")
}

func TestPlacementCleanLayoutIsGood(t *testing.T) {
	s := scene.New(testCatalog())
	place(t, s, "W1", wall, geom.Vec3{})
	place(t, s, "W2", wall, geom.Vec3{X: 300})

	res, err := ops.PlacementValidate(s, ops.PlacementParams{
		Actors:           []string{"W1", "W2"},
		OverlapTolerance: ptr(1.0),
	}, ops.DefaultGridUnit)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Summary.Status)
	assert.Equal(t, "good", res.Summary.Overall)
	assert.Equal(t, 2, res.Summary.TotalActors)
}

func TestSnapIdentitySocketMatchesTarget(t *testing.T) {
	s := scene.New(testCatalog())
	place(t, s, "Src", unitCube, geom.Vec3{X: -40, Y: 7})
	_, err := s.Create(scene.CreateSpec{
		Name:  "Dst",
		Asset: unitCube,
		Transform: geom.Transform{
			Location: geom.Vec3{X: 100, Y: 200, Z: 50},
			Rotation: geom.Rotator{Yaw: 45},
			Scale:    geom.One,
		},
	})
	require.NoError(t, err)

	res, err := ops.SnapToSocket(s, ops.SnapParams{
		SourceActor:  "Src",
		TargetActor:  "Dst",
		TargetSocket: "anchor",
		Validate:     true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Validated)
	assert.True(t, *res.Validated)

	src, _ := s.Find("Src")
	dst, _ := s.Find("Dst")
	assert.True(t, src.Transform.Location.ApproxEqual(dst.Transform.Location, 1e-6), "location %v", src.Transform.Location)
	assert.True(t, src.Transform.Rotation.ApproxEqual(dst.Transform.Rotation, 1e-6), "rotation %v", src.Transform.Rotation)
}

func TestSnapRotatedSocketAndOffset(t *testing.T) {
	s := scene.New(testCatalog())
	place(t, s, "Door", unitCube, geom.Vec3{})
	_, err := s.Create(scene.CreateSpec{
		Name:      "Wall",
		Asset:     wall,
		Transform: geom.Transform{Location: geom.Vec3{X: 1000}, Rotation: geom.Rotator{Yaw: 90}, Scale: geom.One},
	})
	require.NoError(t, err)

	res, err := ops.SnapToSocket(s, ops.SnapParams{
		SourceActor:  "Door",
		TargetActor:  "Wall",
		TargetSocket: "right",
		Offset:       ops.SnapOffset{Location: geom.Vec3{Z: 10}},
	})
	require.NoError(t, err)
	// "right" is +150 on local X; yawed 90 that is +150 on world Y.
	assert.True(t, res.NewLocation.ApproxEqual(geom.Vec3{X: 1000, Y: 150, Z: 10}, 1e-6), "got %v", res.NewLocation)
	assert.InDelta(t, 90, res.NewRotation.Yaw, 1e-6)
}

func TestSnapUnknownSocketLeavesSourceUntouched(t *testing.T) {
	s := scene.New(testCatalog())
	src := place(t, s, "Src", unitCube, geom.Vec3{X: 3, Y: 4, Z: 5})
	place(t, s, "Dst", wall, geom.Vec3{X: 100})

	_, err := ops.SnapToSocket(s, ops.SnapParams{SourceActor: "Src", TargetActor: "Dst", TargetSocket: "nope"})
	require.ErrorIs(t, err, scene.ErrSocketNotFound)

	var sockErr *scene.SocketError
	require.True(t, errors.As(err, &sockErr))
	assert.Contains(t, err.Error(), "left")

	after, _ := s.Find("Src")
	assert.Equal(t, src.Transform, after.Transform)
}

func TestSnapOffsetAcceptsArrayOrObject(t *testing.T) {
	var p ops.SnapParams
	require.NoError(t, json.Unmarshal([]byte(`{"offset":[1,2,3]}`), &p))
	assert.Equal(t, geom.Vec3{X: 1, Y: 2, Z: 3}, p.Offset.Location)

	p = ops.SnapParams{}
	require.NoError(t, json.Unmarshal([]byte(`{"offset":{"location":[0,0,5],"rotation":[0,0,90]}}`), &p))
	assert.Equal(t, 5.0, p.Offset.Location.Z)
	assert.Equal(t, 90.0, p.Offset.Rotation.Yaw)

	require.Error(t, json.Unmarshal([]byte(`{"offset":{"bogus":1}}`), &p))
}

func TestActorLifecycle(t *testing.T) {
	h := newHarness(t)

	out := h.mustCall(t, "actor_spawn", `{"assetPath":"/Engine/BasicShapes/Cube","name":"Box","location":[100,0,0],"validate":true}`)
	assert.Equal(t, "Box", out["actorName"])
	assert.Equal(t, true, out["validated"])

	out = h.mustCall(t, "actor_modify", `{"actorName":"Box","location":[0,300,0],"rotation":[0,0,90],"validate":true}`)
	assert.Equal(t, true, out["validated"])
	box, err := h.scene.Find("Box")
	require.NoError(t, err)
	assert.Equal(t, geom.Vec3{Y: 300}, box.Transform.Location)
	assert.Equal(t, 90.0, box.Transform.Rotation.Yaw)

	_, err = h.call(t, "actor_modify", `{"actorName":"Box"}`)
	require.Error(t, err)

	out = h.mustCall(t, "actor_duplicate", `{"sourceName":"Box","offset":[0,0,100]}`)
	dup, err := h.scene.Find("Box_Copy")
	require.NoError(t, err, "result %v", out)
	assert.Equal(t, geom.Vec3{Y: 300, Z: 100}, dup.Transform.Location)

	h.mustCall(t, "actor_organize", `{"pattern":"Box","folder":"Props"}`)
	dup, _ = h.scene.Find("Box_Copy")
	assert.Equal(t, "Props", dup.Folder)

	out = h.mustCall(t, "actor_get_state", `{"actorName":"Box"}`)
	assert.Contains(t, out, "bounds")

	h.mustCall(t, "actor_delete", `{"actorName":"Box","validate":true}`)
	_, err = h.scene.Find("Box")
	require.ErrorIs(t, err, scene.ErrNotFound)

	_, err = h.call(t, "actor_delete", `{"actorName":"Box"}`)
	require.ErrorIs(t, err, scene.ErrNotFound)
}

func TestActorSpawnRejectsUnknownParams(t *testing.T) {
	h := newHarness(t)
	_, err := h.call(t, "actor_spawn", `{"assetPath":"/Engine/BasicShapes/Cube","colour":"red"}`)
	require.ErrorIs(t, err, registry.ErrInvalidParams)
	assert.Empty(t, h.scene.List(scene.Filter{}))
}

func TestSystemCommands(t *testing.T) {
	h := newHarness(t)

	out := h.mustCall(t, "test_connection", `{}`)
	assert.Equal(t, "connected", out["status"])
	assert.Equal(t, "TestProject", out["project"])
	assert.Equal(t, false, out["mainContext"])

	out = h.mustCall(t, "help", `{"category":"viewport"}`)
	cmds := out["commands"].(map[string][]map[string]string)
	assert.Len(t, cmds["viewport"], 5)

	got, err := h.call(t, "help", `{"tool":"actor.spawn"}`)
	require.NoError(t, err)
	assert.Equal(t, "actor_spawn", got.(*registry.Command).Name)

	_, err = h.call(t, "help", `{"category":"nope"}`)
	require.Error(t, err)

	out = h.mustCall(t, "system.restart", `{}`)
	assert.Equal(t, true, out["scheduled"])
	assert.Equal(t, "session.failed", out["failureEvent"])
	assert.Equal(t, 1, h.restarter.calls)

	out = h.mustCall(t, "project_info", `{}`)
	assert.Equal(t, ops.DefaultGridUnit, out["gridUnit"])
}

func TestRestartFailureIsReported(t *testing.T) {
	var logs syncBuffer
	restarter := &fakeRestarter{err: errors.New("restart gave up after 10 ticks")}
	reg := registry.New()
	require.NoError(t, ops.Register(reg, ops.Env{
		Host:      scene.New(testCatalog()),
		Restarter: restarter,
		Logger:    slog.New(slog.NewJSONHandler(&logs, nil)),
	}))

	cmd, ok := reg.Lookup("restart_listener")
	require.True(t, ok)
	_, err := cmd.Invoke(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		out := logs.String()
		return strings.Contains(out, "Listener restart failed") && strings.Contains(out, "gave up after 10 ticks")
	}, time.Second, 5*time.Millisecond)
}

func TestLevelCommands(t *testing.T) {
	h := newHarness(t)
	place(t, h.scene, "Floor_A", "/Game/ModularOldTown/Meshes/Floors/SM_Floor_3m", geom.Vec3{})
	place(t, h.scene, "Floor_B", "/Game/ModularOldTown/Meshes/Floors/SM_Floor_3m", geom.Vec3{X: 300})
	place(t, h.scene, "Loose", unitCube, geom.Vec3{})
	require.NoError(t, h.scene.SetFolder("Floor_A", "House/Ground"))
	require.NoError(t, h.scene.SetFolder("Floor_B", "House"))

	out := h.mustCall(t, "level_actors", `{"filter":"floor","limit":1}`)
	assert.Equal(t, 2, out["totalCount"])
	assert.Equal(t, true, out["truncated"])

	out = h.mustCall(t, "level_outliner", `{}`)
	outliner := out["outliner"].(map[string]any)
	stats := outliner["stats"].(map[string]int)
	assert.Equal(t, 3, stats["totalActors"])
	assert.Equal(t, 2, stats["organizedActors"])
	assert.Equal(t, 1, stats["unorganizedActors"])

	saved, err := h.call(t, "level_save", `{"name":"checkpoint"}`)
	require.NoError(t, err)
	res := saved.(*scene.SaveResult)
	assert.Equal(t, filepath.Join(h.snapshotDir, "checkpoint.yaml"), res.Path)
	assert.Equal(t, 3, res.Objects)
	assert.FileExists(t, res.Path)

	_, err = h.call(t, "level_save", `{"name":"../escape"}`)
	require.Error(t, err)
}

func TestAssetCommands(t *testing.T) {
	h := newHarness(t)

	out := h.mustCall(t, "asset_list", `{"path":"/Engine/BasicShapes"}`)
	assert.Equal(t, 5, out["totalCount"])

	out = h.mustCall(t, "asset_info", `{"assetPath":"/Game/ModularOldTown/Meshes/Walls/SM_FlatWall_3m"}`)
	bounds := out["bounds"].(map[string]geom.Vec3)
	assert.Equal(t, geom.Vec3{X: 300, Y: 20, Z: 300}, bounds["size"])

	_, err := h.call(t, "asset_info", `{"assetPath":"/Game/Nope"}`)
	require.ErrorIs(t, err, scene.ErrAssetNotFound)
}

func TestViewportCommands(t *testing.T) {
	h := newHarness(t)
	place(t, h.scene, "Box", "/Engine/BasicShapes/Cube", geom.Vec3{X: 1000})

	h.mustCall(t, "viewport_camera", `{"location":[1,2,3],"rotation":[0,-10,0]}`)
	cam := h.scene.Camera()
	assert.Equal(t, geom.Vec3{X: 1, Y: 2, Z: 3}, cam.Location)
	assert.Equal(t, -10.0, cam.Rotation.Pitch)

	_, err := h.call(t, "viewport_camera", `{}`)
	require.Error(t, err)

	h.mustCall(t, "viewport_camera", `{"focusActor":"Box","distance":100}`)
	cam = h.scene.Camera()
	assert.True(t, cam.Location.ApproxEqual(geom.Vec3{X: 930, Z: 70}, 1e-9), "camera at %v", cam.Location)
	fwd := cam.Rotation.Forward()
	toTarget := geom.Vec3{X: 1000}.Sub(cam.Location)
	assert.InDelta(t, 1, fwd.Dot(toTarget.Scale(1/toTarget.Len())), 1e-6)

	h.mustCall(t, "viewport_focus", `{"actorName":"Box"}`)
	cam = h.scene.Camera()
	// Cube extent is 50, so the focus distance is 150.
	assert.True(t, cam.Location.ApproxEqual(geom.Vec3{X: 850, Y: -75, Z: 75}, 1e-9), "camera at %v", cam.Location)

	out := h.mustCall(t, "viewport_render_mode", `{"mode":"wireframe"}`)
	assert.Equal(t, "wireframe", out["mode"])
	_, err = h.call(t, "viewport_render_mode", `{"mode":"ultraviolet"}`)
	require.ErrorIs(t, err, scene.ErrInvalidMode)

	out = h.mustCall(t, "viewport_bounds", `{}`)
	assert.Equal(t, 5000.0, out["viewDistance"])

	out = h.mustCall(t, "viewport_fit", `{"actors":["Box"],"padding":0}`)
	assert.Equal(t, 1, out["fittedActors"])
	cam = h.scene.Camera()
	dist := geom.Distance(cam.Location, geom.Vec3{X: 1000})
	assert.InDelta(t, 100, dist, 1e-6)

	_, err = h.call(t, "viewport_fit", `{"filter":"Nothing"}`)
	require.ErrorIs(t, err, scene.ErrNotFound)
}

func TestBatchOperations(t *testing.T) {
	h := newHarness(t)
	before := h.scene.Refreshes()

	out, err := h.call(t, "batch_operations", `{"operations":[
		{"id":"a","operation":"actor_spawn","params":{"assetPath":"/Test/UnitCube","name":"One"}},
		{"id":"b","operation":"actor.spawn","params":{"assetPath":"/Test/UnitCube","name":"Two"}},
		{"id":"c","operation":"actor_modify","params":{"actorName":"One","location":[5,0,0]}},
		{"id":"d","operation":"level_save","params":{}},
		{"id":"e","operation":"actor_delete","params":{"actorName":"Ghost"}}
	]}`)
	require.NoError(t, err)
	res := out.(*ops.BatchOpsResult)

	assert.False(t, res.Success)
	assert.Equal(t, 3, res.SuccessCount)
	assert.Equal(t, 2, res.FailureCount)
	require.Len(t, res.Results, 5)
	assert.Equal(t, "c", res.Results[2].ID)
	assert.True(t, res.Results[2].Success)
	assert.Contains(t, res.Results[3].Error, "unsupported")
	assert.False(t, res.Results[4].Success)
	assert.Equal(t, before+1, h.scene.Refreshes())

	one, err := h.scene.Find("One")
	require.NoError(t, err)
	assert.Equal(t, 5.0, one.Transform.Location.X)
}

func TestLookAtFromFocusIsNoseDown(t *testing.T) {
	r := geom.LookAt(geom.Vec3{X: -70, Z: 70}, geom.Vec3{})
	assert.InDelta(t, 45, r.Pitch, 1e-9)
	assert.InDelta(t, 0, math.Abs(r.Yaw), 1e-9)
}
