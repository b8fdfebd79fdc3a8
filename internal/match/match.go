// Package match joins authoritative and crowd-sourced boundary records on
// their municipality identifier.
package match

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/boundary-compare/internal/boundary"
)

// Side names one of the two populations.
type Side string

// Populations.
const (
	Authoritative Side = "authoritative"
	Crowd         Side = "crowd-sourced"
)

// Pair is one identifier present in both populations.
type Pair struct {
	ID            int
	Name          string
	Authoritative boundary.Record
	Crowd         boundary.Record
}

// Duplicate reports an identifier seen more than once within one population.
// Only the first record is matched; the rest are ignored.
type Duplicate struct {
	Side  Side
	ID    int
	Count int
}

// NameDifference reports a matched identifier whose names disagree after
// Unicode normalisation and case folding.
type NameDifference struct {
	ID                int
	AuthoritativeName string
	CrowdName         string
}

// Outcome is the result of joining two populations.
type Outcome struct {
	Pairs                  []Pair
	UnmatchedAuthoritative []boundary.Ref
	UnmatchedCrowd         []boundary.Ref
	Duplicates             []Duplicate
	NameDifferences        []NameDifference
}

// Match joins authoritative and crowd-sourced records on ID. All lists in the
// outcome are sorted by identifier.
func Match(authoritative, crowd []boundary.Record) Outcome {
	var out Outcome

	auth, dupA := index(authoritative, Authoritative)
	osm, dupC := index(crowd, Crowd)
	out.Duplicates = append(dupA, dupC...)

	for id, a := range auth {
		c, ok := osm[id]
		if !ok {
			out.UnmatchedAuthoritative = append(out.UnmatchedAuthoritative, a.Ref())
			continue
		}
		out.Pairs = append(out.Pairs, Pair{ID: id, Name: a.Name, Authoritative: a, Crowd: c})
		if !SameName(a.Name, c.Name) {
			out.NameDifferences = append(out.NameDifferences, NameDifference{
				ID:                id,
				AuthoritativeName: a.Name,
				CrowdName:         c.Name,
			})
		}
	}
	for id, c := range osm {
		if _, ok := auth[id]; !ok {
			out.UnmatchedCrowd = append(out.UnmatchedCrowd, c.Ref())
		}
	}

	sort.Slice(out.Pairs, func(i, j int) bool { return out.Pairs[i].ID < out.Pairs[j].ID })
	sortRefs(out.UnmatchedAuthoritative)
	sortRefs(out.UnmatchedCrowd)
	sort.Slice(out.Duplicates, func(i, j int) bool {
		if out.Duplicates[i].Side != out.Duplicates[j].Side {
			return out.Duplicates[i].Side < out.Duplicates[j].Side
		}
		return out.Duplicates[i].ID < out.Duplicates[j].ID
	})
	sort.Slice(out.NameDifferences, func(i, j int) bool { return out.NameDifferences[i].ID < out.NameDifferences[j].ID })

	return out
}

// index maps ID to the first record seen and counts repeats.
func index(recs []boundary.Record, side Side) (map[int]boundary.Record, []Duplicate) {
	m := make(map[int]boundary.Record, len(recs))
	counts := make(map[int]int)
	for _, r := range recs {
		if _, ok := m[r.ID]; ok {
			counts[r.ID]++
			continue
		}
		m[r.ID] = r
	}

	var dups []Duplicate
	for id, extra := range counts {
		dups = append(dups, Duplicate{Side: side, ID: id, Count: extra + 1})
	}
	return m, dups
}

func sortRefs(refs []boundary.Ref) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
}

// SameName compares two municipality names ignoring Unicode composition,
// case and surrounding whitespace.
func SameName(a, b string) bool {
	return normalizeName(a) == normalizeName(b)
}

func normalizeName(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}
