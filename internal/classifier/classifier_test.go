package classifier

import "testing"

func TestGateContentLengthBareThresholdBoundary(t *testing.T) {
	exactly50 := make([]byte, 50)
	for i := range exactly50 {
		exactly50[i] = 'a'
	}

	if err := gateContentLength(string(exactly50), StructuredInput{}, "acme"); err != nil {
		t.Fatalf("expected exactly 50 chars with no hints to pass the gate, got %v", err)
	}

	below50 := string(exactly50[:49])
	if err := gateContentLength(below50, StructuredInput{}, "acme"); err == nil {
		t.Fatalf("expected 49 chars with no hints to fail the gate")
	}
}

func TestGateContentLengthWithHintsThresholdBoundary(t *testing.T) {
	exactly20 := make([]byte, 20)
	for i := range exactly20 {
		exactly20[i] = 'a'
	}
	hinted := StructuredInput{Title: "Senior Data Engineer"}

	if err := gateContentLength(string(exactly20), hinted, "acme"); err != nil {
		t.Fatalf("expected exactly 20 chars with hints to pass the gate, got %v", err)
	}

	below20 := string(exactly20[:19])
	if err := gateContentLength(below20, hinted, "acme"); err == nil {
		t.Fatalf("expected 19 chars with hints to fail the gate")
	}
}
