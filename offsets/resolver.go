package offsets

import (
	"cmp"
	"slices"

	"go.uber.org/zap"
)

// DefaultIgnoreThreshold is duration (seconds) below which parts are treated
// as filler.
const DefaultIgnoreThreshold = 600

// Part is a single part of published video.
type Part struct {
	CID      int64  `yaml:"cid"`
	Index    int    `yaml:"page"`
	Count    int    `yaml:"count,omitempty"`
	Title    string `yaml:"part"`
	Duration int    `yaml:"duration"`
}

// Placement is a part included into variant output together with its start
// on the master timeline.
type Placement struct {
	Part      Part
	Offset    int
	Variant   int
	VariantID string
	Marker    string
}

// Jump is "skip opening" anchor for the first part of a variant.
type Jump struct {
	Placement Placement
	Seconds   int
	Desc      string
}

// Result of offsets resolution for a single video.
type Result struct {
	Placements []Placement
	Jumps      []Jump
	// Unassigned parts matched no variant.
	Unassigned []Part
	// Ignored parts were shorter than threshold.
	Ignored []Part
	// Skipped parts were explicitly excluded by their variant.
	Skipped []Part
}

type cursor struct {
	running int
	next    int
	started bool
}

// Resolver assigns parts to variants and computes local offsets.
type Resolver struct {
	variants  []Variant
	threshold int
	log       *zap.Logger
}

// NewResolver creates resolver for configured variants.
func NewResolver(variants []Variant, threshold int, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		variants:  slices.Clone(variants),
		threshold: threshold,
		log:       log.Named("offsets"),
	}
}

// Match returns index of variant the title belongs to: first specific match
// in configuration order, otherwise first wildcard, otherwise -1.
func (r *Resolver) Match(title string) int {
	wildcard := -1
	for i, v := range r.variants {
		if v.Wildcard() {
			if wildcard < 0 {
				wildcard = i
			}
			continue
		}
		if v.Matches(title) {
			return i
		}
	}
	return wildcard
}

// Resolve processes parts in ascending index order. Cursors live only for
// the duration of the call.
func (r *Resolver) Resolve(parts []Part) Result {
	parts = slices.Clone(parts)
	slices.SortStableFunc(parts, func(a, b Part) int { return cmp.Compare(a.Index, b.Index) })

	r.checkOffsets(len(parts))

	var res Result
	cursors := make([]cursor, len(r.variants))
	for _, p := range parts {
		if p.Duration < r.threshold {
			r.log.Debug("Ignoring short part", zap.Int("index", p.Index), zap.String("title", p.Title), zap.Int("duration", p.Duration))
			res.Ignored = append(res.Ignored, p)
			continue
		}

		vi := r.Match(p.Title)
		if vi < 0 {
			r.log.Warn("Part does not belong to any variant", zap.Int("index", p.Index), zap.String("title", p.Title))
			res.Unassigned = append(res.Unassigned, p)
			continue
		}
		v, cur := r.variants[vi], &cursors[vi]

		spec := Auto()
		if cur.next < len(v.Offsets) {
			spec = v.Offsets[cur.next]
		}
		cur.next++

		var offset int
		switch spec.Mode() {
		case ModeExplicit:
			offset = spec.Seconds()
		case ModeAuto:
			offset = cur.running
		case ModeSkip:
			r.log.Debug("Skipping part", zap.Int("index", p.Index), zap.String("variant", VariantID(v, vi)))
			res.Skipped = append(res.Skipped, p)
			continue
		}
		cur.running = offset + p.Duration

		pl := Placement{Part: p, Offset: offset, Variant: vi, VariantID: VariantID(v, vi), Marker: v.Marker}
		if !cur.started {
			cur.started = true
			if len(v.JumpOpDesc) > 0 {
				res.Jumps = append(res.Jumps, Jump{Placement: pl, Seconds: max(0, -offset), Desc: v.JumpOpDesc})
			}
		}
		r.log.Debug("Part placed",
			zap.Int("index", p.Index),
			zap.String("variant", pl.VariantID),
			zap.Stringer("offset", spec),
			zap.Int("start", offset))
		res.Placements = append(res.Placements, pl)
	}
	return res
}

// checkOffsets warns when configured offsets do not add up to number of
// parts, usually an indication of a typo in configuration.
func (r *Resolver) checkOffsets(parts int) {
	total := 0
	for _, v := range r.variants {
		total += len(v.Offsets)
	}
	if total > 0 && total != parts {
		r.log.Warn("Number of configured offsets differs from number of parts", zap.Int("offsets", total), zap.Int("parts", parts))
	}
}
