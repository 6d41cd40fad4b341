package fx

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestValidate_AllRatesAvailable(t *testing.T) {
	provider := &fakeProvider{quotes: map[string]Quote{
		"IDRUSD": {Average: dec("1.2"), Spot: dec("1.25")},
	}}
	asOf := time.Date(2025, 8, 7, 0, 0, 0, 0, time.UTC)
	reqs := []Requirement{
		{Pair: "idrusd", Methods: []Method{MethodAverage, MethodSpot}},
	}
	res, err := Validate(context.Background(), provider, asOf, reqs)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected no gaps, got %+v", res.Gaps)
	}
	if res.Checked != 1 {
		t.Fatalf("expected 1 pair checked, got %d", res.Checked)
	}
	if !res.Available["IDRUSD"].Average.Equal(dec("1.2")) {
		t.Fatalf("unexpected quote stored: %+v", res.Available["IDRUSD"])
	}
}

func TestValidate_AcceptsReversePair(t *testing.T) {
	provider := &fakeProvider{quotes: map[string]Quote{
		"USDCHF": {Average: dec("1.25"), Spot: dec("1.25")},
	}}
	res, err := Validate(context.Background(), provider, jan31, RequirementsFor("USD", []string{"CHF", "usd", "chf"}))
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !res.OK() || res.Checked != 1 {
		t.Fatalf("expected CHFUSD covered by reverse quote, got %+v", res)
	}
	if !res.Available["CHFUSD"].Spot.Equal(dec("0.8")) {
		t.Fatalf("expected inverted spot 0.8 got %s", res.Available["CHFUSD"].Spot)
	}
}

func TestValidate_MissingAverageAndSpot(t *testing.T) {
	res, err := Validate(context.Background(), &fakeProvider{}, jan31, []Requirement{{Pair: "IDRUSD", Methods: []Method{MethodAverage, MethodSpot}}})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(res.Gaps) != 1 {
		t.Fatalf("expected one gap, got %d", len(res.Gaps))
	}
	gap := res.Gaps[0]
	if gap.Pair != "IDRUSD" || len(gap.Methods) != 2 {
		t.Fatalf("unexpected gap %+v", gap)
	}
	if _, ok := res.Available["IDRUSD"]; ok {
		t.Fatalf("fully missing pair must not be reported as available")
	}
}

func TestValidate_PartialMissing(t *testing.T) {
	provider := &fakeProvider{quotes: map[string]Quote{
		"IDRUSD": {Spot: dec("1.3")},
	}}
	res, err := Validate(context.Background(), provider, jan31, []Requirement{{Pair: "IDRUSD", Methods: []Method{MethodAverage, MethodSpot}}})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(res.Gaps) != 1 {
		t.Fatalf("expected one gap, got %d", len(res.Gaps))
	}
	if methods := res.Gaps[0].Methods; len(methods) != 1 || methods[0] != MethodAverage {
		t.Fatalf("unexpected missing methods: %+v", methods)
	}
}

func TestValidate_InvalidRequirement(t *testing.T) {
	_, err := Validate(context.Background(), &fakeProvider{}, jan31, []Requirement{{Pair: "", Methods: []Method{MethodAverage}}})
	if err == nil {
		t.Fatalf("expected error for empty pair")
	}
}

func TestValidate_UnsupportedMethod(t *testing.T) {
	_, err := Validate(context.Background(), &fakeProvider{}, jan31, []Requirement{{Pair: "IDRUSD", Methods: []Method{"CLOSING"}}})
	if err == nil {
		t.Fatalf("expected error for unsupported method")
	}
}

func TestValidate_PropagatesProviderError(t *testing.T) {
	wantErr := errors.New("boom")
	_, err := Validate(context.Background(), &fakeProvider{err: wantErr}, jan31, []Requirement{{Pair: "IDRUSD", Methods: []Method{MethodAverage}}})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestValidate_RequiresProviderAndDate(t *testing.T) {
	reqs := []Requirement{{Pair: "IDRUSD", Methods: []Method{MethodAverage}}}
	if _, err := Validate(context.Background(), nil, jan31, reqs); !errors.Is(err, ErrProviderRequired) {
		t.Fatalf("expected ErrProviderRequired, got %v", err)
	}
	if _, err := Validate(context.Background(), &fakeProvider{}, time.Time{}, reqs); err == nil {
		t.Fatalf("expected error when date empty")
	}
}
