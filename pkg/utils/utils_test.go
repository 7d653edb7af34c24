package utils

import (
	"slices"
	"strconv"
	"testing"
)

func TestUnique(t *testing.T) {
	got := Unique([]int64{3, 1, 3, 2, 1})
	if !slices.Equal(got, []int64{3, 1, 2}) {
		t.Fatalf("Unique = %v", got)
	}
	if got := Unique[string](nil); got == nil || len(got) != 0 {
		t.Fatalf("Unique(nil) = %#v", got)
	}
}

func TestMap(t *testing.T) {
	got := Map([]int{1, 2}, strconv.Itoa)
	if !slices.Equal(got, []string{"1", "2"}) {
		t.Fatalf("Map = %v", got)
	}
	if got := Map[int, string](nil, strconv.Itoa); got == nil {
		t.Fatal("Map(nil) returned nil")
	}
}
