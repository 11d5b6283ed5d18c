package announce

import "testing"

func TestExtractTicker(t *testing.T) {
	title := "[이벤트] 디센트럴랜드(MANA) 원화마켓 오픈 이벤트 - MANA TOP 트레이딩 이벤트"
	code, ok := ExtractTicker(title)
	if !ok || code != "MANA" {
		t.Fatalf("ExtractTicker(%q) = %q, %v", title, code, ok)
	}
}

func TestExtractTickerNoMatch(t *testing.T) {
	if _, ok := ExtractTicker("no ticker here"); ok {
		t.Fatal("expected no match")
	}
}

func TestHasListingKeyword(t *testing.T) {
	if !HasListingKeyword("New coin (ABC) lists on exchange") {
		t.Error("expected keyword match")
	}
	if HasListingKeyword("scheduled maintenance") {
		t.Error("expected no keyword match")
	}
}
