package progress

import (
	"testing"
	"time"
)

func TestScale(t *testing.T) {
	var got []int
	report := Scale(Func(func(id, percent int) {
		if id != 9 {
			t.Errorf("id = %v; want 9", id)
		}
		got = append(got, percent)
	}), 9, 10, 50)

	for _, p := range []int{-5, 0, 50, 100, 150} {
		report(p)
	}
	want := []int{10, 10, 30, 50, 50}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("#%v = %v; want %v", i, got[i], want[i])
		}
	}
}

func TestScaleNilSink(t *testing.T) {
	// Must not panic.
	Scale(nil, 1, 0, 100)(40)
}

func TestTracker(t *testing.T) {
	tr := NewTracker(16, 16)
	defer tr.Close()

	tr.Notify(1, 10)
	tr.Notify(1, 55)
	tr.Notify(2, 100)

	deadline := time.Now().Add(time.Second)
	for {
		p1, ok1 := tr.Percent(1)
		p2, ok2 := tr.Percent(2)
		if ok1 && ok2 && p1 == 55 && p2 == 100 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Percent(1), Percent(2) = (%v, %v), (%v, %v)", p1, ok1, p2, ok2)
		}
		time.Sleep(time.Millisecond)
	}

	if _, ok := tr.Percent(3); ok {
		t.Error("Percent(3) ok = true")
	}
}

func TestTrackerNeverBlocks(t *testing.T) {
	tr := NewTracker(0, 8)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			tr.Notify(i, 100)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked")
	}
	tr.Close()
	tr.Close()
	tr.Notify(1, 1)
}

func TestTrackerForgetsOldestIDs(t *testing.T) {
	tr := NewTracker(16, 2)
	defer tr.Close()

	// Applied directly so the order is fixed.
	tr.set(update{id: 1, percent: 100})
	tr.set(update{id: 2, percent: 100})
	tr.set(update{id: 1, percent: 10})
	tr.set(update{id: 3, percent: 50})

	for _, test := range []struct {
		desc   string
		id     int
		want   int
		wantOk bool
	}{
		{desc: "refreshed id is kept", id: 1, want: 10, wantOk: true},
		{desc: "least recently updated id is dropped", id: 2},
		{desc: "newest id is kept", id: 3, want: 50, wantOk: true},
	} {
		got, ok := tr.Percent(test.id)
		if got != test.want || ok != test.wantOk {
			t.Errorf("%v: Percent(%v) = %v, %v; want %v, %v", test.desc, test.id, got, ok, test.want, test.wantOk)
		}
	}
	if n := len(tr.latest); n != 2 {
		t.Errorf("tracking %v ids; want 2", n)
	}
}
