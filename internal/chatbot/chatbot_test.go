package chatbot

import "testing"

func TestExtractEndpointSymbolsBTC(t *testing.T) {
	text := "Upbit Endpoint #12: BTC-ATOM added, also see XRP/BTC"
	got := extractEndpointSymbols(text, "Upbit Endpoint #", reSlashBTC, reDashBTC)
	if !got["ATOM"] || !got["XRP"] {
		t.Fatalf("expected ATOM and XRP, got %v", got)
	}
}

func TestExtractEndpointSymbolsRequiresMarker(t *testing.T) {
	got := extractEndpointSymbols("BTC-ATOM with no marker", "Upbit Endpoint #", reDashBTC)
	if got != nil {
		t.Fatalf("expected nil without marker, got %v", got)
	}
}

func TestExtractKeywordSymbols(t *testing.T) {
	text := "업비트 원화 마켓에 신규 이벤트 상장 (ATOM)"
	got := extractKeywordSymbols(text)
	if !got["ATOM"] {
		t.Fatalf("expected ATOM, got %v", got)
	}
}

func TestExtractKeywordSymbolsRequiresKeyword(t *testing.T) {
	got := extractKeywordSymbols("just a regular message (ATOM)")
	if got != nil {
		t.Fatalf("expected nil without keyword, got %v", got)
	}
}

func TestBlacklistFilter(t *testing.T) {
	symbols := map[string]bool{"ATOM": true, "XRP": true}
	black := map[string]bool{"XRP": true}
	got := blacklistFilter(symbols, black)
	if !got["ATOM"] || got["XRP"] {
		t.Fatalf("expected ATOM only, got %v", got)
	}
}

func TestWhitelistFilter(t *testing.T) {
	symbols := map[string]bool{"ATOM": true, "XRP": true}
	white := map[string]bool{"ATOM": true}
	got := whitelistFilter(symbols, white)
	if !got["ATOM"] || got["XRP"] {
		t.Fatalf("expected ATOM only, got %v", got)
	}
}
