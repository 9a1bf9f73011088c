package timeline

import "sort"

// orderEvents sorts a snapshot of the map into presentation order. The order
// is total, so identical store states always yield identical sequences
// regardless of how the snapshot was iterated.
func orderEvents(events map[string]Event) []Event {
	view := make([]Event, 0, len(events))
	for _, ev := range events {
		view = append(view, ev)
	}

	keys := effectiveKeys(view)

	sort.Slice(view, func(i, j int) bool {
		a, b := view[i], view[j]
		ka, kb := keys[a.ID], keys[b.ID]
		if ka != kb {
			return ka < kb
		}
		switch {
		case a.CausalSeq == nil && b.CausalSeq != nil:
			return true
		case a.CausalSeq != nil && b.CausalSeq == nil:
			return false
		case a.CausalSeq != nil && b.CausalSeq != nil && *a.CausalSeq != *b.CausalSeq:
			return *a.CausalSeq < *b.CausalSeq
		}
		return a.ID < b.ID
	})
	return view
}

// effectiveKeys places every event on a single wall-clock axis.
//
// A causal sequence is a dispatcher-assigned ordinal, so among events that
// carry one it outranks wall-clock keys: producer clocks and ingestion
// pipelines can disagree even when true dispatch order is known server-side.
// Comparing raw keys for some pairs and ordinals for others is not
// transitive once sequenced and unsequenced events mix, so the sequenced
// events are walked in dispatch order and each takes the highest ordering
// key seen so far along that walk. A dispatch whose producer clock ran
// behind is pulled up beside its causal predecessor instead of sliding back
// between unrelated events, and the resulting keys compare transitively
// against everything else. Unsequenced events keep their own key.
func effectiveKeys(view []Event) map[string]int64 {
	keys := make(map[string]int64, len(view))

	var sequenced []Event
	for _, ev := range view {
		if ev.CausalSeq == nil {
			keys[ev.ID] = ev.OrderingKey
			continue
		}
		sequenced = append(sequenced, ev)
	}

	sort.Slice(sequenced, func(i, j int) bool {
		a, b := sequenced[i], sequenced[j]
		if *a.CausalSeq != *b.CausalSeq {
			return *a.CausalSeq < *b.CausalSeq
		}
		if a.OrderingKey != b.OrderingKey {
			return a.OrderingKey < b.OrderingKey
		}
		return a.ID < b.ID
	})

	var floor int64
	for _, ev := range sequenced {
		if ev.OrderingKey > floor {
			floor = ev.OrderingKey
		}
		keys[ev.ID] = floor
	}
	return keys
}
