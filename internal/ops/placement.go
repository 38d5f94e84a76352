package ops

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mattjoyce/scenebridge/internal/geom"
	"github.com/mattjoyce/scenebridge/internal/scene"
)

// PlacementParams configures placement_validate. Tolerance and ModularSize
// are the older names for the three tolerances and GridUnit.
type PlacementParams struct {
	Actors             []string `json:"actors" cmd:"required"`
	GapTolerance       *float64 `json:"gapTolerance"`
	OverlapTolerance   *float64 `json:"overlapTolerance"`
	AlignmentTolerance *float64 `json:"alignmentTolerance"`
	GridUnit           float64  `json:"gridUnit"`
	CheckAlignment     *bool    `json:"checkAlignment"`

	Tolerance   *float64 `json:"tolerance" desc:"sets every tolerance not given explicitly (default 10)"`
	ModularSize float64  `json:"modularSize"`
}

// Gap is a pair of objects whose boxes are apart by more than the tolerance.
type Gap struct {
	Actors   [2]string `json:"actors"`
	Distance float64   `json:"distance"`
	Axis     string    `json:"direction"`
	Location geom.Vec3 `json:"location"`
	PerAxis  geom.Vec3 `json:"perAxis"`
}

// Overlap is a pair of objects whose boxes intersect or touch.
type Overlap struct {
	Actors   [2]string `json:"actors"`
	Amount   float64   `json:"amount"`
	Axis     string    `json:"direction"`
	Location geom.Vec3 `json:"location"`
	Severity string    `json:"severity"`
}

// AlignmentIssue is one origin axis off the modular grid.
type AlignmentIssue struct {
	Actor     string    `json:"actor"`
	Axis      string    `json:"axis"`
	Current   geom.Vec3 `json:"currentLocation"`
	Suggested geom.Vec3 `json:"suggestedLocation"`
	Offset    float64   `json:"offset"`
}

type PlacementSummary struct {
	Status              string  `json:"status"`
	Overall             string  `json:"overall"`
	TotalIssues         int     `json:"totalIssues"`
	GapCount            int     `json:"gapCount"`
	OverlapCount        int     `json:"overlapCount"`
	AlignmentIssueCount int     `json:"alignmentIssueCount"`
	CriticalOverlaps    int     `json:"criticalOverlaps"`
	MajorOverlaps       int     `json:"majorOverlaps"`
	TotalActors         int     `json:"totalActors"`
	GridUnit            float64 `json:"gridUnit"`
	ExecutionTimeMs     float64 `json:"executionTimeMs"`
}

type PlacementResult struct {
	Gaps            []Gap            `json:"gaps"`
	Overlaps        []Overlap        `json:"overlaps"`
	AlignmentIssues []AlignmentIssue `json:"alignmentIssues"`
	Summary         PlacementSummary `json:"summary"`
}

// gapThreshold is how many gaps a layout may have before it counts as a
// major issue.
const gapThreshold = 3

// PlacementValidate checks every unordered pair of the named objects.
// Boxes whose projections overlap or touch on all three axes are an Overlap
// of the smallest penetration depth, reported when it reaches
// OverlapTolerance. Other pairs are a Gap of their Euclidean box distance,
// reported when it exceeds GapTolerance.
func PlacementValidate(host scene.Host, p PlacementParams, defaultGrid float64) (*PlacementResult, error) {
	start := time.Now()

	tol := 10.0
	if p.Tolerance != nil {
		tol = *p.Tolerance
	}
	pick := func(v *float64) float64 {
		if v != nil {
			return *v
		}
		return tol
	}
	gapTol, overlapTol, alignTol := pick(p.GapTolerance), pick(p.OverlapTolerance), pick(p.AlignmentTolerance)
	grid := p.GridUnit
	if grid <= 0 {
		grid = p.ModularSize
	}
	if grid <= 0 {
		grid = defaultGrid
	}
	checkAlignment := p.CheckAlignment == nil || *p.CheckAlignment

	if len(p.Actors) < 2 {
		return nil, fmt.Errorf("at least 2 actors are required for placement validation")
	}
	type placed struct {
		name   string
		origin geom.Vec3
		bounds geom.BoundingVolume
	}
	var objects []placed
	var missing []string
	for _, name := range p.Actors {
		o, err := host.Find(name)
		if err != nil {
			missing = append(missing, name)
			continue
		}
		b, err := host.Bounds(name)
		if err != nil {
			return nil, fmt.Errorf("bounds of %s: %w", name, err)
		}
		objects = append(objects, placed{name: name, origin: o.Transform.Location, bounds: b})
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("actors not found: %s: %w", strings.Join(missing, ", "), scene.ErrNotFound)
	}

	res := &PlacementResult{Gaps: []Gap{}, Overlaps: []Overlap{}, AlignmentIssues: []AlignmentIssue{}}
	for i := 0; i < len(objects); i++ {
		for j := i + 1; j < len(objects); j++ {
			a, b := objects[i], objects[j]
			sep := geom.Separate(a.bounds, b.bounds)
			pair := [2]string{a.name, b.name}
			where := contactPoint(a.bounds, b.bounds)

			if sep.Intersecting() {
				depth := sep.Penetration()
				// Coincident points have no depth to measure but still share a spot.
				coincident := a.bounds.Degenerate() && b.bounds.Degenerate() && a.bounds.Origin == b.bounds.Origin
				if coincident || depth >= overlapTol {
					res.Overlaps = append(res.Overlaps, Overlap{
						Actors:   pair,
						Amount:   depth,
						Axis:     geom.AxisName(sep.DominantAxis()),
						Location: where,
						Severity: overlapSeverity(depth, grid),
					})
				}
				continue
			}
			if gap, axis, ok := sep.NearestGap(); ok && gap > gapTol {
				res.Gaps = append(res.Gaps, Gap{
					Actors:   pair,
					Distance: gap,
					Axis:     geom.AxisName(axis),
					Location: where,
					PerAxis:  geom.Vec3{X: math.Max(sep.PerAxis[0], 0), Y: math.Max(sep.PerAxis[1], 0), Z: math.Max(sep.PerAxis[2], 0)},
				})
			}
		}
	}

	if checkAlignment {
		for _, o := range objects {
			for axis := 0; axis < 3; axis++ {
				snapped, residual := geom.NearestMultiple(o.origin.Axis(axis), grid)
				if math.Abs(residual) <= alignTol {
					continue
				}
				res.AlignmentIssues = append(res.AlignmentIssues, AlignmentIssue{
					Actor:     o.name,
					Axis:      geom.AxisName(axis),
					Current:   o.origin,
					Suggested: withAxis(o.origin, axis, snapped),
					Offset:    residual,
				})
			}
		}
	}

	s := &res.Summary
	s.GapCount = len(res.Gaps)
	s.OverlapCount = len(res.Overlaps)
	s.AlignmentIssueCount = len(res.AlignmentIssues)
	s.TotalIssues = s.GapCount + s.OverlapCount + s.AlignmentIssueCount
	for _, o := range res.Overlaps {
		switch o.Severity {
		case "critical":
			s.CriticalOverlaps++
		case "major":
			s.MajorOverlaps++
		}
	}
	s.Status = "ok"
	if s.TotalIssues > 0 {
		s.Status = "issues-found"
	}
	switch {
	case s.CriticalOverlaps > 0:
		s.Overall = "critical_issues"
	case s.MajorOverlaps > 0 || s.GapCount > gapThreshold:
		s.Overall = "major_issues"
	case s.TotalIssues > 0:
		s.Overall = "minor_issues"
	default:
		s.Overall = "good"
	}
	s.TotalActors = len(objects)
	s.GridUnit = grid
	s.ExecutionTimeMs = elapsedMs(start)
	return res, nil
}

// overlapSeverity grades an overlap against the modular grid size.
func overlapSeverity(depth, grid float64) string {
	switch {
	case depth > grid*0.25:
		return "critical"
	case depth > grid*0.1:
		return "major"
	default:
		return "minor"
	}
}

// contactPoint is the centre of the region between two boxes: the shared
// volume when they overlap, the gap between facing sides when apart.
func contactPoint(a, b geom.BoundingVolume) geom.Vec3 {
	amin, amax, bmin, bmax := a.Min(), a.Max(), b.Min(), b.Max()
	var out [3]float64
	for i := 0; i < 3; i++ {
		lo := math.Max(amin.Axis(i), bmin.Axis(i))
		hi := math.Min(amax.Axis(i), bmax.Axis(i))
		out[i] = (lo + hi) / 2
	}
	return geom.Vec3{X: out[0], Y: out[1], Z: out[2]}
}

func withAxis(v geom.Vec3, axis int, value float64) geom.Vec3 {
	switch axis {
	case 0:
		v.X = value
	case 1:
		v.Y = value
	default:
		v.Z = value
	}
	return v
}

func (h *handlers) placementValidate(_ context.Context, p PlacementParams) (any, error) {
	return PlacementValidate(h.env.Host, p, h.env.GridUnit)
}
