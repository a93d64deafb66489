// -----------------------------------------------------------------------
// Progress Counters - Per-variant segment tallies and encode progress
// -----------------------------------------------------------------------

package state

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ternarybob/streamtrack/internal/models"
)

// DeltaKind identifies a counter mutation
type DeltaKind int

const (
	SegmentQueued DeltaKind = iota + 1
	SegmentStarted
	SegmentSucceeded
	SegmentFailed
	VariantTotalSet
	VariantEncodeProgress
	VariantEncodeComplete
)

func (k DeltaKind) String() string {
	switch k {
	case SegmentQueued:
		return "segment_queued"
	case SegmentStarted:
		return "segment_started"
	case SegmentSucceeded:
		return "segment_succeeded"
	case SegmentFailed:
		return "segment_failed"
	case VariantTotalSet:
		return "variant_total_set"
	case VariantEncodeProgress:
		return "variant_encode_progress"
	case VariantEncodeComplete:
		return "variant_encode_complete"
	}
	return "unknown"
}

// Delta is one mutation scoped to a single variant
type Delta struct {
	Kind    DeltaKind
	Segment int     // segment deltas
	Total   int     // VariantTotalSet
	Percent float64 // VariantEncodeProgress
}

// SegmentDelta maps a reported segment state to its delta kind
func SegmentDelta(state models.SegmentState, segment int) (Delta, error) {
	switch state {
	case models.SegmentPending:
		return Delta{Kind: SegmentQueued, Segment: segment}, nil
	case models.SegmentUploading:
		return Delta{Kind: SegmentStarted, Segment: segment}, nil
	case models.SegmentCompleted:
		return Delta{Kind: SegmentSucceeded, Segment: segment}, nil
	case models.SegmentFailed:
		return Delta{Kind: SegmentFailed, Segment: segment}, nil
	}
	return Delta{}, fmt.Errorf("%w: unknown segment state %q", models.ErrInvalidEvent, state)
}

// Outcome describes how a delta was applied
type Outcome int

const (
	// Applied means the counters changed
	Applied Outcome = iota
	// Duplicate means the delta was already reflected; nothing changed
	Duplicate
)

// Variant holds the mutable counters of one variant
type Variant struct {
	index       int
	name        string
	description string

	encodePct  float64
	encodeDone bool

	total      int
	totalFixed bool

	segments map[int]models.SegmentState
	counts   map[models.SegmentState]int
}

func newVariant(index int, name string) *Variant {
	return &Variant{
		index:    index,
		name:     name,
		segments: make(map[int]models.SegmentState),
		counts:   make(map[models.SegmentState]int),
	}
}

// Index returns the 1-based variant position, or 0 for an upload group
func (v *Variant) Index() int { return v.index }

// Name returns the variant name
func (v *Variant) Name() string { return v.name }

// Tally returns the segment tally.
// Pending is derived from the fixed total so the sum invariant holds by construction.
func (v *Variant) Tally() models.SegmentTally {
	t := models.SegmentTally{
		Completed: v.counts[models.SegmentCompleted],
		Failed:    v.counts[models.SegmentFailed],
		Uploading: v.counts[models.SegmentUploading],
	}
	if v.totalFixed {
		t.Total = v.total
		t.Pending = v.total - t.Completed - t.Failed - t.Uploading
	} else {
		t.Pending = v.counts[models.SegmentPending]
	}
	return t
}

func (v *Variant) apply(d Delta) (Outcome, error) {
	switch d.Kind {
	case SegmentQueued, SegmentStarted, SegmentSucceeded, SegmentFailed:
		return v.moveSegment(d)
	case VariantTotalSet:
		return v.setTotal(d.Total)
	case VariantEncodeProgress:
		if v.encodeDone || d.Percent <= v.encodePct {
			return Duplicate, nil
		}
		if d.Percent < 0 || d.Percent > 100 {
			return Duplicate, fmt.Errorf("%w: encode percent %.2f out of range", models.ErrInvalidEvent, d.Percent)
		}
		v.encodePct = d.Percent
		return Applied, nil
	case VariantEncodeComplete:
		if v.encodeDone {
			return Duplicate, nil
		}
		v.encodeDone = true
		v.encodePct = 100
		return Applied, nil
	}
	return Duplicate, fmt.Errorf("%w: unknown delta kind %d", models.ErrInvalidEvent, d.Kind)
}

// moveSegment advances a segment along pending -> uploading -> {completed, failed}.
// States never move backward, so counters cannot go below zero.
func (v *Variant) moveSegment(d Delta) (Outcome, error) {
	if d.Segment < 0 {
		return Duplicate, fmt.Errorf("%w: negative segment index %d", models.ErrInvalidEvent, d.Segment)
	}
	if v.totalFixed && d.Segment >= v.total {
		return Duplicate, fmt.Errorf("%w: segment %d outside total %d for variant %q",
			models.ErrInvalidEvent, d.Segment, v.total, v.name)
	}

	var target models.SegmentState
	switch d.Kind {
	case SegmentQueued:
		target = models.SegmentPending
	case SegmentStarted:
		target = models.SegmentUploading
	case SegmentSucceeded:
		target = models.SegmentCompleted
	case SegmentFailed:
		target = models.SegmentFailed
	}

	current, seen := v.segments[d.Segment]
	if seen && rank(current) >= rank(target) {
		return Duplicate, nil
	}
	if seen {
		v.counts[current]--
	}
	v.segments[d.Segment] = target
	v.counts[target]++
	return Applied, nil
}

func (v *Variant) setTotal(n int) (Outcome, error) {
	if n < 0 {
		return Duplicate, fmt.Errorf("%w: negative segment total %d", models.ErrInvalidEvent, n)
	}
	if v.totalFixed {
		if n == v.total {
			return Duplicate, nil
		}
		return Duplicate, &models.ConfigurationConflictError{
			Field:     "segment total",
			Variant:   v.name,
			Current:   v.total,
			Requested: n,
		}
	}
	for segment := range v.segments {
		if segment >= n {
			return Duplicate, &models.ConfigurationConflictError{
				Field:     "segment total (highest tracked segment + 1)",
				Variant:   v.name,
				Current:   segment + 1,
				Requested: n,
			}
		}
	}
	v.total = n
	v.totalFixed = true
	return Applied, nil
}

// rank orders segment states; terminal states share the highest rank so a
// completed segment is never re-marked failed or the reverse.
func rank(s models.SegmentState) int {
	switch s {
	case models.SegmentPending:
		return 1
	case models.SegmentUploading:
		return 2
	case models.SegmentCompleted, models.SegmentFailed:
		return 3
	}
	return 0
}

// Counters owns every variant of one job. Not safe for concurrent use; the
// aggregator serializes access under the per-job lock.
//
// Upload groups hold segments reported under a label that names no encoded
// variant (an uploader reporting "all", say). They count toward segment totals
// but never toward encoding progress, and carry index 0.
type Counters struct {
	variants      []*Variant
	groups        []*Variant
	totalVariants int

	// encoding is the variant that last received encode activity
	encoding *Variant
}

// NewCounters creates empty counters
func NewCounters() *Counters {
	return &Counters{}
}

// TotalVariants returns the fixed variant count, or 0 while unknown
func (c *Counters) TotalVariants() int {
	return c.totalVariants
}

// Count returns the number of known variants and upload groups
func (c *Counters) Count() int {
	return len(c.variants) + len(c.groups)
}

// SetTotalVariants fixes the variant count once. Zero is ignored.
func (c *Counters) SetTotalVariants(n int) (Outcome, error) {
	if n <= 0 {
		return Duplicate, nil
	}
	if c.totalVariants == 0 {
		c.totalVariants = n
		return Applied, nil
	}
	if c.totalVariants == n {
		return Duplicate, nil
	}
	return Duplicate, &models.ConfigurationConflictError{
		Field:     "total variants",
		Current:   c.totalVariants,
		Requested: n,
	}
}

// ByIndex returns the variant at index, creating it when unseen.
// A name is recorded the first time one is supplied.
func (c *Counters) ByIndex(index int, name string) *Variant {
	for _, v := range c.variants {
		if v.index == index {
			if v.name == "" && name != "" {
				v.name = name
			}
			return v
		}
	}
	v := newVariant(index, name)
	c.insert(v)
	return v
}

// StartEncoding resolves the variant at index and makes it the one whose
// encode progress drives the encoding phase.
func (c *Counters) StartEncoding(index int, name string) *Variant {
	v := c.ByIndex(index, name)
	c.encoding = v
	return v
}

// ByLabel resolves an uploader label: by variant name, then by a numeric index
// within the variant count, then by upload group name. Anything else opens a
// new upload group under that label.
func (c *Counters) ByLabel(label string) *Variant {
	label = strings.TrimSpace(label)
	for _, v := range c.variants {
		if strings.EqualFold(v.name, label) {
			return v
		}
	}
	if idx, err := strconv.Atoi(label); err == nil && idx > 0 {
		for _, v := range c.variants {
			if v.index == idx {
				return v
			}
		}
		if idx <= c.totalVariants {
			return c.ByIndex(idx, "")
		}
	}
	for _, g := range c.groups {
		if strings.EqualFold(g.name, label) {
			return g
		}
	}
	g := newVariant(0, label)
	c.groups = append(c.groups, g)
	return g
}

func (c *Counters) insert(v *Variant) {
	c.variants = append(c.variants, v)
	sort.Slice(c.variants, func(i, j int) bool {
		return c.variants[i].index < c.variants[j].index
	})
}

// Apply applies one delta to v. On error nothing changes.
func (c *Counters) Apply(v *Variant, d Delta) (Outcome, error) {
	outcome, err := v.apply(d)
	if err == nil && v.index > 0 && (d.Kind == VariantEncodeProgress || d.Kind == VariantEncodeComplete) {
		c.encoding = v
	}
	return outcome, err
}

// EncodeRatio is the completed fraction of the variant currently encoding.
// Unknown until a variant has started encoding.
func (c *Counters) EncodeRatio() (float64, bool) {
	if c.encoding == nil {
		return 0, false
	}
	return c.encoding.encodePct / 100, true
}

// Totals sums the tallies of every variant and upload group. Recomputed on each call.
func (c *Counters) Totals() models.SegmentTally {
	var t models.SegmentTally
	for _, v := range c.variants {
		t = t.Add(v.Tally())
	}
	for _, g := range c.groups {
		t = t.Add(g.Tally())
	}
	return t
}

// AnyTotalFixed reports whether at least one variant has a fixed segment total
func (c *Counters) AnyTotalFixed() bool {
	for _, v := range c.variants {
		if v.totalFixed {
			return true
		}
	}
	for _, g := range c.groups {
		if g.totalFixed {
			return true
		}
	}
	return false
}

// Variants returns value copies of every encoded variant in index order
func (c *Counters) Variants() []models.VariantProgress {
	return c.progress(c.variants)
}

// Groups returns value copies of every upload group in arrival order
func (c *Counters) Groups() []models.VariantProgress {
	if len(c.groups) == 0 {
		return nil
	}
	return c.progress(c.groups)
}

func (c *Counters) progress(list []*Variant) []models.VariantProgress {
	out := make([]models.VariantProgress, 0, len(list))
	for _, v := range list {
		out = append(out, models.VariantProgress{
			Index:            v.index,
			TotalVariants:    c.totalVariants,
			Name:             v.name,
			Description:      v.description,
			EncodePercentage: v.encodePct,
			EncodeComplete:   v.encodeDone,
			TotalFixed:       v.totalFixed,
			Segments:         v.Tally(),
		})
	}
	return out
}

// Ledger returns a deep copy of every tracked variant segment state keyed by variant index
func (c *Counters) Ledger() map[int]map[int]models.SegmentState {
	out := make(map[int]map[int]models.SegmentState, len(c.variants))
	for _, v := range c.variants {
		if len(v.segments) == 0 {
			continue
		}
		out[v.index] = copySegments(v.segments)
	}
	return out
}

// GroupLedger returns a deep copy of every upload group segment state keyed by label
func (c *Counters) GroupLedger() map[string]map[int]models.SegmentState {
	if len(c.groups) == 0 {
		return nil
	}
	out := make(map[string]map[int]models.SegmentState, len(c.groups))
	for _, g := range c.groups {
		out[g.name] = copySegments(g.segments)
	}
	return out
}

func copySegments(in map[int]models.SegmentState) map[int]models.SegmentState {
	out := make(map[int]models.SegmentState, len(in))
	for k, s := range in {
		out[k] = s
	}
	return out
}

// RestoreCounters rebuilds counters from a persisted snapshot and its segment ledgers.
// The current variant of the snapshot resumes as the encoding variant.
func RestoreCounters(snap *models.JobProgress, ledger map[int]map[int]models.SegmentState, groupLedger map[string]map[int]models.SegmentState) *Counters {
	c := &Counters{totalVariants: snap.TotalVariants}
	for _, vp := range snap.Variants {
		v := restoreVariant(vp, ledger[vp.Index])
		c.insert(v)
		if vp.Index == snap.CurrentVariant {
			c.encoding = v
		}
	}
	for _, gp := range snap.UploadGroups {
		c.groups = append(c.groups, restoreVariant(gp, groupLedger[gp.Name]))
	}
	return c
}

func restoreVariant(vp models.VariantProgress, segments map[int]models.SegmentState) *Variant {
	v := newVariant(vp.Index, vp.Name)
	v.description = vp.Description
	v.encodePct = vp.EncodePercentage
	v.encodeDone = vp.EncodeComplete
	v.totalFixed = vp.TotalFixed
	v.total = vp.Segments.Total
	for segment, s := range segments {
		v.segments[segment] = s
		v.counts[s]++
	}
	return v
}
