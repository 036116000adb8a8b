package cpad

import "regexp"

// continuationRe matches the continuation marker at the end of a line whose
// trailing comment has already been stripped: whitespace, the _ marker and
// optional trailing whitespace. Matching against the stripped text keeps an
// underscore inside a comment from being mistaken for a marker.
var continuationRe = regexp.MustCompile(`\s_\s*$`)

// Join merges physically continued lines into logical lines.
//
// The returned continuation map records, for every logical line index, the
// ordered original line indices that were merged into it (a singleton when
// the line was not continued). Every original index appears in exactly one
// record and the lists are contiguous ranges.
//
// A continuation marker on the final line of the document is not honored:
// there is no line to continue into, so the line is emitted literally. No
// errors are raised here; malformed continuations are left for downstream
// checks.
func Join(lines []string) (logical []string, continuations map[int][]int) {
	logical = make([]string, 0, len(lines))
	continuations = make(map[int][]int, len(lines))

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		sources := []int{i}

		for {
			stripped := stripTrailingComment(line)
			loc := continuationRe.FindStringIndex(stripped)
			if loc == nil || i+1 >= len(lines) {
				break
			}
			// Cut at the marker, keeping the whitespace before it so
			// joined text stays token-separated.
			line = stripped[:loc[0]+1] + lines[i+1]
			i++
			sources = append(sources, i)
		}

		continuations[len(logical)] = sources
		logical = append(logical, line)
	}

	return logical, continuations
}
