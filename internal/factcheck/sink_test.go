package factcheck

import "testing"

func TestMultiSinkDeliversToEverySinkInOrder(t *testing.T) {
	var order []string
	m := MultiSink{
		SinkFunc(func(v Verdict) { order = append(order, "store:"+v.ClaimID) }),
		SinkFunc(func(v Verdict) { order = append(order, "hub:"+v.ClaimID) }),
		SinkFunc(func(v Verdict) { order = append(order, "alert:"+v.ClaimID) }),
	}

	m.Deliver(Verdict{ClaimID: "c1"})

	want := []string{"store:c1", "hub:c1", "alert:c1"}
	if len(order) != len(want) {
		t.Fatalf("delivered to %d sinks, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("delivery %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestEmptyMultiSinkIsSafe(t *testing.T) {
	var m MultiSink
	m.Deliver(Verdict{ClaimID: "c1"})
}
