package qdrant

import "testing"

func TestEncodeSparseQueryDeterministic(t *testing.T) {
	v1 := encodeSparseQuery("Operating margin for FY2022")
	v2 := encodeSparseQuery("Operating margin for FY2022")
	if len(v1.Indices) != len(v2.Indices) || len(v1.Values) != len(v2.Values) {
		t.Fatalf("vector sizes mismatch: v1=%d/%d v2=%d/%d", len(v1.Indices), len(v1.Values), len(v2.Indices), len(v2.Values))
	}
	for i := range v1.Indices {
		if v1.Indices[i] != v2.Indices[i] {
			t.Fatalf("indices mismatch at %d: %d vs %d", i, v1.Indices[i], v2.Indices[i])
		}
		if v1.Values[i] != v2.Values[i] {
			t.Fatalf("values mismatch at %d: %f vs %f", i, v1.Values[i], v2.Values[i])
		}
	}
}

func TestEncodeSparseQuerySortsIndices(t *testing.T) {
	v := encodeSparseQuery("liquidity capital resources debt")
	if len(v.Indices) != 4 {
		t.Fatalf("expected 4 terms, got %d", len(v.Indices))
	}
	for i := 1; i < len(v.Indices); i++ {
		if v.Indices[i-1] > v.Indices[i] {
			t.Fatalf("indices not sorted at %d: %d > %d", i, v.Indices[i-1], v.Indices[i])
		}
	}
}

func TestEncodeSparseQueryDropsStopwords(t *testing.T) {
	v := encodeSparseQuery("What is the revenue")
	if len(v.Indices) != 1 || v.Indices[0] != hashToken("revenue") {
		t.Fatalf("expected only the revenue term, got %+v", v)
	}
}

func TestEncodeSparseQueryEmptyNoiseInput(t *testing.T) {
	v := encodeSparseQuery("___---!!!")
	if len(v.Indices) != 0 || len(v.Values) != 0 {
		t.Fatalf("expected empty sparse vector, got %+v", v)
	}
}

func TestEncodeSparseDocumentBoostsTitleTerms(t *testing.T) {
	plain := encodeSparseDocument("tax credits reduced expense", "")
	titled := encodeSparseDocument("tax credits reduced expense", "Tax Credits")

	weight := func(v sparseVector, token string) float32 {
		idx := hashToken(token)
		for i, got := range v.Indices {
			if got == idx {
				return v.Values[i]
			}
		}
		return 0
	}
	if weight(titled, "credits") <= weight(plain, "credits") {
		t.Fatalf("expected title terms to weigh more")
	}
}

func TestTermFreqToSparseKeepsHeaviestTerms(t *testing.T) {
	tf := make(map[uint32]float64, maxSparseTerms+10)
	for i := 1; i <= maxSparseTerms+10; i++ {
		tf[uint32(i)] = 1
	}
	tf[uint32(maxSparseTerms+10)] = 5

	v := termFreqToSparse(tf, docBM25K1)
	if len(v.Indices) != maxSparseTerms {
		t.Fatalf("expected %d terms, got %d", maxSparseTerms, len(v.Indices))
	}
	if v.Indices[len(v.Indices)-1] != uint32(maxSparseTerms+10) {
		t.Fatalf("expected heaviest term to survive truncation")
	}
}

func TestSparseTokensSplitsFilingText(t *testing.T) {
	tokens := sparseTokens("ITEM 1A. Risk-Factors of the Company (FY2023)")
	want := []string{"item", "item1a", "1a", "risk", "factors", "company", "fy2023"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("tokens = %v, want %v", tokens, want)
		}
	}
}

func TestEncodeSparseQueryMatchesJoinedItemToken(t *testing.T) {
	v := encodeSparseQuery("Item 7 liquidity")
	found := false
	for _, idx := range v.Indices {
		if idx == hashToken("item7") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected joined item7 term in %+v", v)
	}
}
