//go:build property
// +build property

package timeline

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genBatch() gopter.Gen {
	genEvent := gopter.CombineGens(
		gen.RegexMatch("[a-z]{1,6}"),
		gen.Int64Range(0, 1_000_000),
	).Map(func(vals []interface{}) Event {
		return Event{
			ID:          vals[0].(string),
			OrderingKey: vals[1].(int64),
		}
	})
	return gen.SliceOf(genEvent)
}

func TestUpsertIdempotenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("upsert(B); upsert(B) == upsert(B)", prop.ForAll(
		func(batch []Event) bool {
			s := NewStore(50)
			s.Upsert(batch, UpsertOptions{})
			once := s.OrderedView()
			s.Upsert(batch, UpsertOptions{})
			twice := s.OrderedView()
			return reflect.DeepEqual(once, twice)
		},
		genBatch(),
	))

	properties.Property("store size bounded after every merge", prop.ForAll(
		func(a, b []Event) bool {
			s := NewStore(10)
			s.Upsert(a, UpsertOptions{})
			if s.Len() > 10 {
				return false
			}
			s.Upsert(b, UpsertOptions{RestampNew: true})
			return s.Len() <= 10
		},
		genBatch(),
		genBatch(),
	))

	properties.Property("ordering keys immutable across merges", prop.ForAll(
		func(a, b []Event) bool {
			s := NewStore(1000)
			s.Upsert(a, UpsertOptions{})

			before := make(map[string]int64)
			for _, ev := range s.OrderedView() {
				before[ev.ID] = ev.OrderingKey
			}

			s.Upsert(b, UpsertOptions{RestampNew: true})

			for _, ev := range s.OrderedView() {
				if key, ok := before[ev.ID]; ok && key != ev.OrderingKey {
					return false
				}
			}
			return true
		},
		genBatch(),
		genBatch(),
	))

	properties.TestingRun(t)
}
