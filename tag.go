package magik

import "sync"

// Label prefixes for the tags the engine itself reads and writes. Plain
// capability labels carry no prefix.
const (
	// TagOverridePrefix marks an explicit routing override. The suffix names
	// a registered block by name or by registry index; the tag is consumed
	// after it steers exactly one hop.
	TagOverridePrefix = "goto:"
	// TagForwardPrefix marks a soft forward hint naming a block registered
	// later in authoring order.
	TagForwardPrefix = "next:"
	// TagProvenancePrefix marks the block that executed the previous
	// pull-mode step.
	TagProvenancePrefix = "did:"
	// TagForkPrefix marks a one-shot candidate restriction for the next
	// hop. All fork labels are consumed together by the next selection.
	TagForkPrefix = "fork:"
)

// OverrideTag builds an override label for a block name or index.
func OverrideTag(block string) string { return TagOverridePrefix + block }

// ForwardTag builds the forward-hint label for a block name.
func ForwardTag(block string) string { return TagForwardPrefix + block }

// ProvenanceTag builds the provenance label for a block name.
func ProvenanceTag(block string) string { return TagProvenancePrefix + block }

// ForkTag builds the fork label for a block name.
func ForkTag(block string) string { return TagForkPrefix + block }

type tagRecord struct {
	label string
	epoch uint64
}

type tagFrame struct {
	parent  *tagFrame
	records []tagRecord
}

// TagScope is the mutable label set of one ritual. It is stack-scoped:
// BeginScope pushes a frame whose labels vanish at EndScope, and Current is
// the union along the active stack. An epoch fence at each step boundary
// separates labels emitted by the most recent block from inherited ones.
//
// A scope belongs to exactly one ritual and flows with it across suspension
// points; concurrently running rituals never share a scope.
type TagScope struct {
	mu    sync.Mutex
	top   *tagFrame
	epoch uint64
}

func newTagScope(seed ...string) *TagScope {
	s := &TagScope{top: &tagFrame{}}
	s.Add(seed...)
	return s
}

// Add records labels on the active frame. A label already visible is not
// duplicated, but re-adding it re-stamps it at the current epoch: re-emitting
// an inherited label counts as a fresh emission.
func (s *TagScope) Add(labels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range labels {
		if l == "" {
			continue
		}
		if r := s.findLocked(l); r != nil {
			r.epoch = s.epoch
			continue
		}
		s.top.records = append(s.top.records, tagRecord{label: l, epoch: s.epoch})
	}
}

// Has reports whether a label is visible anywhere on the active stack.
func (s *TagScope) Has(label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasLocked(label)
}

func (s *TagScope) hasLocked(label string) bool {
	return s.findLocked(label) != nil
}

func (s *TagScope) findLocked(label string) *tagRecord {
	for f := s.top; f != nil; f = f.parent {
		for i := range f.records {
			if f.records[i].label == label {
				return &f.records[i]
			}
		}
	}
	return nil
}

// Current returns every visible label, oldest frame first, in insertion
// order.
func (s *TagScope) Current() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(func(tagRecord) bool { return true })
}

// CurrentEpoch returns only the labels added since the most recent fence,
// i.e. those emitted by the last executed block.
func (s *TagScope) CurrentEpoch() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	epoch := s.epoch
	return s.collectLocked(func(r tagRecord) bool { return r.epoch == epoch })
}

func (s *TagScope) collectLocked(keep func(tagRecord) bool) []string {
	var frames []*tagFrame
	for f := s.top; f != nil; f = f.parent {
		frames = append(frames, f)
	}
	var out []string
	for i := len(frames) - 1; i >= 0; i-- {
		for _, r := range frames[i].records {
			if keep(r) {
				out = append(out, r.label)
			}
		}
	}
	return out
}

// BeginScope pushes a nested frame. Labels added until the matching
// EndScope are discarded with it.
func (s *TagScope) BeginScope() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.top = &tagFrame{parent: s.top}
}

// EndScope pops the active frame. Popping the root frame is a programming
// error and panics.
func (s *TagScope) EndScope() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.top.parent == nil {
		panic("magik: EndScope without matching BeginScope")
	}
	s.top = s.top.parent
}

// Override requests that the named block (by name or registry index) be
// selected on the next hop, regardless of capability scores. The request is
// consumed after one hop.
func (s *TagScope) Override(block string) {
	s.Add(OverrideTag(block))
}

// Fork restricts the next hop to the named candidate blocks. The
// restriction applies to exactly one selection; unrestricted selection
// resumes afterwards. Fork labels persist through branch tag state, so in
// pull mode the restriction reaches the next externally-driven step.
func (s *TagScope) Fork(blocks ...string) {
	for _, b := range blocks {
		s.Add(ForkTag(b))
	}
}

// fence starts a new epoch. Called by the board at every step boundary.
func (s *TagScope) fence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
}

// takeFork returns and clears the pending fork restriction, if any. The
// returned names have the fork prefix stripped.
func (s *TagScope) takeFork() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for f := s.top; f != nil; f = f.parent {
		kept := f.records[:0]
		for _, r := range f.records {
			if len(r.label) > len(TagForkPrefix) && r.label[:len(TagForkPrefix)] == TagForkPrefix {
				names = append(names, r.label[len(TagForkPrefix):])
				continue
			}
			kept = append(kept, r)
		}
		f.records = kept
	}
	return names
}

// remove deletes every visible occurrence of a label.
func (s *TagScope) remove(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for f := s.top; f != nil; f = f.parent {
		kept := f.records[:0]
		for _, r := range f.records {
			if r.label != label {
				kept = append(kept, r)
			}
		}
		f.records = kept
	}
}

// firstWithPrefix returns the oldest visible label carrying the prefix.
func (s *TagScope) firstWithPrefix(prefix string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.collectLocked(func(tagRecord) bool { return true }) {
		if len(l) > len(prefix) && l[:len(prefix)] == prefix {
			return l, true
		}
	}
	return "", false
}
