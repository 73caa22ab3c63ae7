package keywords

import (
	"reflect"
	"testing"
)

func TestExtractPrefersLongerPhrase(t *testing.T) {
	got := Extract("escalation handling")
	want := []string{"escalation handling"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Extract = %v, want %v", got, want)
	}
}

func TestExtractDropsStopwordsAndShortTokens(t *testing.T) {
	got := Extract("please focus on the empathy of it")
	want := []string{"empathy", "focus"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Extract = %v, want %v", got, want)
	}
}

func TestExtractEmptyAndAllStopwords(t *testing.T) {
	if got := Extract(""); len(got) != 0 {
		t.Fatalf("Extract(\"\") = %v, want empty", got)
	}
	if got := Extract("the and of to"); len(got) != 0 {
		t.Fatalf("all-stopword input = %v, want empty", got)
	}
}

func TestExtractDeterministicOrder(t *testing.T) {
	a := Extract("refund policy compliance during angry customer calls")
	b := Extract("refund policy compliance during angry customer calls")
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("non-deterministic output: %v vs %v", a, b)
	}
	for i := 1; i < len(a); i++ {
		if a[i-1] > a[i] {
			t.Fatalf("output not sorted: %v", a)
		}
	}
}
