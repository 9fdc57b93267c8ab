package collection

import "github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"

// withinProximity reports whether document id contains all want query
// terms and every one of them has some occurrence within slop words of an
// occurrence of another matched term. A term needs one close neighbour,
// not closeness to all of the others.
func withinProximity(id index.DocumentID, matched []*index.Term, want, slop int) bool {
	if len(matched) < want {
		return false
	}
	for i, t1 := range matched {
		near := false
		for j, t2 := range matched {
			if i == j {
				continue
			}
			if closeOccurrences(t1.OccurrencesIn(id), t2.OccurrencesIn(id), slop) {
				near = true
				break
			}
		}
		if !near {
			return false
		}
	}
	return true
}

// closeOccurrences reports whether some pair from a and b is at most slop
// words apart. Both must be sorted by word index.
func closeOccurrences(a, b []index.Occurrence, slop int) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		d := a[i].WordIndex - b[j].WordIndex
		if d <= slop && d >= -slop {
			return true
		}
		if d < 0 {
			i++
		} else {
			j++
		}
	}
	return false
}
