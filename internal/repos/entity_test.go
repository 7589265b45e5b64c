package repos

import (
	"reflect"
	"testing"
)

func TestMentionTermsDedupesAndDropsEmpty(t *testing.T) {
	terms := mentionTerms("Wudu", []string{"Woudou", "Wudu", "", "Ablutions"})
	want := []string{"Wudu", "Woudou", "Ablutions"}
	if !reflect.DeepEqual(terms, want) {
		t.Fatalf("terms: want=%v got=%v", want, terms)
	}
}

func TestUnionAliasesGrowsOnlyOnNewEntries(t *testing.T) {
	merged, grew := unionAliases([]string{"Woudou"}, []string{"Ablutions"})
	if !grew {
		t.Fatalf("expected union to grow")
	}
	want := []string{"Woudou", "Ablutions"}
	if !reflect.DeepEqual(merged, want) {
		t.Fatalf("merged: want=%v got=%v", want, merged)
	}

	merged, grew = unionAliases([]string{"Woudou", "Ablutions"}, []string{"Ablutions", ""})
	if grew {
		t.Fatalf("expected no growth for already-known aliases")
	}
	if !reflect.DeepEqual(merged, want) {
		t.Fatalf("merged after no-op: want=%v got=%v", want, merged)
	}
}

func TestUnionAliasesKeepsExistingOrder(t *testing.T) {
	merged, _ := unionAliases([]string{"b", "a"}, []string{"c", "a"})
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(merged, want) {
		t.Fatalf("merged: want=%v got=%v", want, merged)
	}
}
