package magik

import "reflect"

// selectNext picks the block for the next hop. Precedence: explicit
// override tag, then capability-label overlap with the active tag set, then
// registration order. A pending fork restricts the candidate set for this
// one decision before anything else applies.
func (r *registry) selectNext(valType reflect.Type, scope *TagScope) (*registeredBlock, error) {
	cands := r.candidates(valType)

	fork := scope.takeFork()
	if len(fork) > 0 {
		allowed := make(map[*registeredBlock]bool, len(fork))
		for _, ref := range fork {
			if rb, ok := r.resolve(ref); ok {
				allowed[rb] = true
			}
		}
		kept := cands[:0:0]
		for _, c := range cands {
			if allowed[c] {
				kept = append(kept, c)
			}
		}
		cands = kept
	}

	if len(cands) == 0 {
		return nil, &NoCandidateError{Value: valType, Fork: fork}
	}

	if label, ok := scope.firstWithPrefix(TagOverridePrefix); ok {
		ref := label[len(TagOverridePrefix):]
		if rb, ok := r.resolve(ref); ok {
			for _, c := range cands {
				if c == rb {
					// Consumed so the override steers exactly one hop.
					scope.remove(label)
					return rb, nil
				}
			}
		}
	}

	current := scope.Current()
	best := cands[0]
	bestScore := capScore(best, current)
	for _, c := range cands[1:] {
		// Strict comparison: equal scores resolve to the lowest index, and
		// cands is already in registration order.
		if sc := capScore(c, current); sc > bestScore {
			best, bestScore = c, sc
		}
	}
	return best, nil
}

// capScore counts the block's capability labels present in the active tag
// set.
func capScore(rb *registeredBlock, active []string) int {
	n := 0
	for _, l := range active {
		if _, ok := rb.caps[l]; ok {
			n++
		}
	}
	return n
}
