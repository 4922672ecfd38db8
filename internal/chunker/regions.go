package chunker

import (
	"regexp"
	"sort"
)

// RegionKind names the structure a preserve region was detected from.
type RegionKind string

const (
	RegionList    RegionKind = "list"
	RegionSection RegionKind = "section"
	RegionSteps   RegionKind = "steps"
)

// PreserveRegion is a span [Start, End) of a document that must not be split.
// Offsets are byte offsets into the source text.
type PreserveRegion struct {
	Start   int
	End     int
	Content string
	Kind    RegionKind
}

// lineRun matches a contiguous run of lines that each start with marker.
// Leading whitespace, blank lines included, belongs to the run.
func lineRun(line string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^(?:\s*` + line + `\n?)+`)
}

var (
	numberedListPatterns = []*regexp.Regexp{
		lineRun(`\d+\.[ \t]+\S.*`),
		lineRun(`\d+\)[ \t]+\S.*`),
		lineRun(`\(\d+\)[ \t]+\S.*`),
	}
	stepPatterns = []*regexp.Regexp{
		lineRun(`Step[ \t]+\d+[:.)][ \t]*\S.*`),
		lineRun(`(?:First|Second|Third|Finally),?[ \t]+\S.*`),
		lineRun(`\d+\.[ \t]+[A-Z].*`),
	}
	headingPattern = regexp.MustCompile(`\*\*(.*?)\*\*:`)
)

// FindRegions returns every list, section and step region in text, unmerged
// and sorted by start offset.
func FindRegions(text string) []PreserveRegion {
	var regions []PreserveRegion
	regions = append(regions, matchRuns(text, numberedListPatterns, RegionList)...)
	regions = append(regions, sections(text)...)
	regions = append(regions, matchRuns(text, stepPatterns, RegionSteps)...)
	sortRegions(regions)
	return regions
}

func matchRuns(text string, patterns []*regexp.Regexp, kind RegionKind) []PreserveRegion {
	var out []PreserveRegion
	for _, re := range patterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if loc[0] == loc[1] {
				continue
			}
			out = append(out, PreserveRegion{Start: loc[0], End: loc[1], Content: text[loc[0]:loc[1]], Kind: kind})
		}
	}
	return out
}

// sections spans each bold "**Heading**:" up to the next heading or the end of text.
func sections(text string) []PreserveRegion {
	headings := headingPattern.FindAllStringIndex(text, -1)
	out := make([]PreserveRegion, 0, len(headings))
	for i, loc := range headings {
		end := len(text)
		if i+1 < len(headings) {
			end = headings[i+1][0]
		}
		out = append(out, PreserveRegion{Start: loc[0], End: end, Content: text[loc[0]:end], Kind: RegionSection})
	}
	return out
}

// MergeRegions folds overlapping or touching regions into one, returning a sorted,
// disjoint sequence. Merged content is re-sliced from text so it never repeats
// the overlapped bytes.
func MergeRegions(text string, regions []PreserveRegion) []PreserveRegion {
	if len(regions) == 0 {
		return nil
	}
	sorted := append([]PreserveRegion(nil), regions...)
	sortRegions(sorted)

	merged := []PreserveRegion{sorted[0]}
	for _, cur := range sorted[1:] {
		prev := &merged[len(merged)-1]
		if cur.Start <= prev.End {
			if cur.End > prev.End {
				prev.End = cur.End
				prev.Content = text[prev.Start:prev.End]
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

func sortRegions(regions []PreserveRegion) {
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Start == regions[j].Start {
			return regions[i].End > regions[j].End
		}
		return regions[i].Start < regions[j].Start
	})
}
