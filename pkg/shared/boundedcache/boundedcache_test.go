package boundedcache

import (
	"fmt"
	"testing"
)

func TestSet_EvictsOldest(t *testing.T) {
	set := NewSet[string](100)

	for i := 0; i <= 100; i++ {
		set.Add(fmt.Sprintf("msg%d", i))
	}

	if set.Len() != 100 {
		t.Errorf("Expected size 100, got %d", set.Len())
	}
	if set.Has("msg0") {
		t.Error("Oldest entry should have been evicted")
	}
	for i := 1; i <= 100; i++ {
		if !set.Has(fmt.Sprintf("msg%d", i)) {
			t.Errorf("msg%d should still be present", i)
		}
	}
}

func TestSet_AddExistingKeepsPosition(t *testing.T) {
	set := NewSet[string](2)

	set.Add("a")
	set.Add("b")
	set.Add("a")
	set.Add("c")

	if set.Has("a") {
		t.Error("Re-adding a should not refresh its position")
	}
	if !set.Has("b") || !set.Has("c") {
		t.Error("b and c should be present")
	}
}

func TestSet_HasAny(t *testing.T) {
	set := NewSet[string](10)
	set.Add("x")

	if !set.HasAny("a", "x") {
		t.Error("Expected HasAny to find x")
	}
	if set.HasAny() {
		t.Error("HasAny with no keys should be false")
	}
	if set.HasAny("a", "b") {
		t.Error("HasAny should be false for absent keys")
	}
}

func TestMap_EvictsOldest(t *testing.T) {
	m := NewMap[string, int](50)

	var evictedKeys []string
	for i := 0; i <= 50; i++ {
		if evicted, ok := m.Put(fmt.Sprintf("in%d", i), i); ok {
			evictedKeys = append(evictedKeys, evicted)
		}
	}

	if m.Len() != 50 {
		t.Errorf("Expected size 50, got %d", m.Len())
	}
	if len(evictedKeys) != 1 || evictedKeys[0] != "in0" {
		t.Errorf("Expected only in0 to be evicted, got %v", evictedKeys)
	}
	if _, ok := m.Get("in0"); ok {
		t.Error("in0 should be absent")
	}
	if v, ok := m.Get("in50"); !ok || v != 50 {
		t.Errorf("Expected in50=50, got %d (present=%v)", v, ok)
	}
}

func TestMap_OverwriteKeepsPosition(t *testing.T) {
	m := NewMap[string, string](2)

	m.Put("a", "1")
	m.Put("b", "2")
	m.Put("a", "3")

	if v, _ := m.Get("a"); v != "3" {
		t.Errorf("Expected overwritten value 3, got %q", v)
	}

	m.Put("c", "4")
	if m.Has("a") {
		t.Error("a should be evicted first despite the overwrite")
	}
}

func TestMap_DeleteAndClear(t *testing.T) {
	m := NewMap[string, int](3)
	m.Put("a", 1)
	m.Put("b", 2)

	m.Delete("a")
	if m.Has("a") || m.Len() != 1 {
		t.Errorf("Expected a to be deleted, len=%d", m.Len())
	}

	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Expected empty map after clear, got %d", m.Len())
	}
}

func TestMap_ZeroCapacity(t *testing.T) {
	m := NewMap[int, int](0)
	if m.Capacity() != 1 {
		t.Errorf("Expected capacity 1, got %d", m.Capacity())
	}
}

func TestMap_Concurrent(t *testing.T) {
	m := NewMap[string, int](1000)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				m.Put(fmt.Sprintf("key%d", id), j)
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if m.Len() != 10 {
		t.Errorf("Expected size 10, got %d", m.Len())
	}
}
