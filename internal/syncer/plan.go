package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

// Filter narrows a run. Zero values select everything.
type Filter struct {
	Source  catalog.Source
	Segment string
}

func (f Filter) matches(seg catalog.Segment) bool {
	if f.Source != "" && !strings.EqualFold(string(f.Source), string(seg.Source)) {
		return false
	}
	if f.Segment != "" && f.Segment != seg.ID {
		return false
	}
	return true
}

var sourceOrder = []catalog.Source{catalog.SourceCardrush, catalog.SourceLimitless}

// Plan merges configured segments with the store's registry. A configured
// segment replaces a registered one with the same source and id. The result is
// grouped by source and ordered by segment id.
func Plan(ctx context.Context, registry catalog.SegmentStore, configured []catalog.Segment, filter Filter) ([]catalog.Segment, error) {
	type key struct {
		source catalog.Source
		id     string
	}
	merged := make(map[key]catalog.Segment)

	if registry != nil {
		for _, src := range sourceOrder {
			if filter.Source != "" && filter.Source != src {
				continue
			}
			segs, err := registry.LoadSegments(ctx, src)
			if err != nil {
				return nil, fmt.Errorf("load %s segments: %w", src, err)
			}
			for _, seg := range segs {
				merged[key{seg.Source, seg.ID}] = seg
			}
		}
	}
	for _, seg := range configured {
		src, err := catalog.ParseSource(string(seg.Source))
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", seg.ID, err)
		}
		seg.Source = src
		seg.BaseAddress = strings.TrimSpace(seg.BaseAddress)
		if strings.TrimSpace(seg.ID) == "" || seg.BaseAddress == "" {
			return nil, fmt.Errorf("segment %q: id and base_address are required", seg.ID)
		}
		merged[key{seg.Source, seg.ID}] = seg
	}

	out := make([]catalog.Segment, 0, len(merged))
	for _, seg := range merged {
		if filter.matches(seg) {
			out = append(out, seg)
		}
	}
	rank := func(s catalog.Source) int {
		for i, src := range sourceOrder {
			if src == s {
				return i
			}
		}
		return len(sourceOrder)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return rank(out[i].Source) < rank(out[j].Source)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
