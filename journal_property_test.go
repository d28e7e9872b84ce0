//go:build property

package magik

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestJournalProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("positions are 1-based, gap-free and ordered", prop.ForAll(
		func(vals []int) bool {
			j := NewJournal[int]()
			ctx := context.Background()
			for i, v := range vals {
				pos, err := j.Write(ctx, v)
				if err != nil || pos != uint64(i)+1 {
					return false
				}
			}
			return j.Len() == uint64(len(vals))
		},
		gen.SliceOf(gen.Int()),
	))

	properties.Property("backward read is the exact reverse of the writes", prop.ForAll(
		func(vals []int) bool {
			j := NewJournal[int]()
			ctx := context.Background()
			for _, v := range vals {
				if _, err := j.Write(ctx, v); err != nil {
					return false
				}
			}
			entries, err := j.ReadBackward(ctx, 0)
			if err != nil || len(entries) != len(vals) {
				return false
			}
			for i, e := range entries {
				idx := len(vals) - 1 - i
				if e.Value != vals[idx] || e.Position != uint64(idx)+1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int()),
	))

	properties.Property("tail after a position yields exactly the suffix", prop.ForAll(
		func(vals []int, after uint64) bool {
			j := NewJournal[int]()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			for _, v := range vals {
				if _, err := j.Write(ctx, v); err != nil {
					return false
				}
			}
			if after > uint64(len(vals)) {
				after = uint64(len(vals))
			}

			want := vals[after:]
			if len(want) == 0 {
				return true // nothing to drain, Tail would block for new writes
			}
			got := make([]int, 0, len(want))
			for pos, e := range j.Tail(ctx, after) {
				if pos != after+uint64(len(got))+1 {
					return false
				}
				got = append(got, e)
				if len(got) == len(want) {
					break
				}
			}
			if len(got) != len(want) {
				return false
			}
			for i := range want {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int()),
		gen.UInt64Range(0, 64),
	))

	properties.TestingRun(t)
}

func TestSelectionProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("highest overlap wins, ties to the lowest index", prop.ForAll(
		func(tagged []bool) bool {
			if len(tagged) == 0 {
				return true
			}
			b := NewBoardBuilder()
			for i := range tagged {
				RegisterFunc(b, func(ctx context.Context, n int) (int, error) {
					return n, nil
				}, WithName(blockName(i)))
			}
			board, err := b.Build()
			if err != nil {
				return false
			}

			var active []string
			want := -1
			for i, on := range tagged {
				if on {
					active = append(active, blockName(i))
					if want < 0 {
						want = i
					}
				}
			}
			if want < 0 {
				want = 0 // no overlap anywhere: pure registration order
			}

			rb, err := board.reg.selectNext(reflect.TypeFor[int](), newTagScope(active...))
			return err == nil && rb.index == want
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func blockName(i int) string {
	return fmt.Sprintf("Step%02d", i)
}
