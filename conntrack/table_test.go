package conntrack

import "testing"

func TestInsertGetDelete(t *testing.T) {
	tbl := New[*int]()
	v := 42
	key := PortPair{Local: 1024, Remote: 80}

	tbl.Insert(key, &v)

	got, ok := tbl.Get(1024, 80)
	if !ok || *got != 42 {
		t.Fatalf("Get = %v, %v; want 42, true", got, ok)
	}

	tbl.Delete(key)
	if _, ok := tbl.Get(1024, 80); ok {
		t.Fatal("connection still present after Delete")
	}
}

func TestAscendOrdered(t *testing.T) {
	tbl := New[*int]()
	a, b, c := 1, 2, 3
	tbl.Insert(PortPair{Local: 3000, Remote: 1}, &c)
	tbl.Insert(PortPair{Local: 1000, Remote: 1}, &a)
	tbl.Insert(PortPair{Local: 2000, Remote: 1}, &b)

	var seen []uint16
	tbl.Ascend(func(key PortPair, value *int) bool {
		seen = append(seen, key.Local)
		return true
	})

	want := []uint16{1000, 2000, 3000}
	for i, w := range want {
		if seen[i] != w {
			t.Fatalf("Ascend order = %v, want %v", seen, want)
		}
	}
}
