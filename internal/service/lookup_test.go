package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/carkeep/internal/api/dvla"
	"github.com/langchou/carkeep/internal/api/mot"
)

func newLookupFixture(t *testing.T, dvlaHandler, motHandler http.HandlerFunc) (*LookupService, func()) {
	t.Helper()

	dvlaServer := httptest.NewServer(dvlaHandler)
	motServer := httptest.NewServer(motHandler)

	svc := NewLookupService(
		zap.NewNop(),
		dvla.NewClient(dvlaServer.URL, "test-key"),
		mot.NewClient(motServer.URL, "test-key"),
	)

	return svc, func() {
		dvlaServer.Close()
		motServer.Close()
	}
}

func TestDetailsMergesBothSources(t *testing.T) {
	svc, cleanup := newLookupFixture(t,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if r.Header.Get("x-api-key") != "test-key" {
				t.Errorf("missing api key header")
			}
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["registrationNumber"] != "AB12CDE" {
				t.Errorf("unexpected registration %q", body["registrationNumber"])
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"registrationNumber": "AB12CDE",
				"make":               "FORD",
				"colour":             "BLUE",
				"yearOfManufacture":  2017,
				"engineCapacity":     998,
				"taxDueDate":         "2026-03-01",
				"motExpiryDate":      "2026-07-11",
			})
		},
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("registration") != "AB12CDE" {
				t.Errorf("unexpected registration query %q", r.URL.Query().Get("registration"))
			}
			json.NewEncoder(w).Encode([]map[string]interface{}{{
				"registration":  "AB12CDE",
				"make":          "FORD",
				"model":         "FIESTA",
				"firstUsedDate": "2017.07.11",
				"primaryColour": "Blue",
			}})
		},
	)
	defer cleanup()

	details, err := svc.Details(context.Background(), "AB12CDE")
	if err != nil {
		t.Fatalf("Details returned error: %v", err)
	}

	if details.Make != "FORD" || details.Model != "FIESTA" {
		t.Fatalf("unexpected make/model: %s %s", details.Make, details.Model)
	}
	if details.Year != 2017 || details.EngineSize != 998 || details.Color != "BLUE" {
		t.Fatalf("unexpected dvla fields: %+v", details)
	}
	if details.Registered == nil || !details.Registered.Equal(time.Date(2017, 7, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected registered date: %v", details.Registered)
	}
	if details.TaxDate == nil || details.MotDate == nil {
		t.Fatalf("expected tax and mot dates, got %+v", details)
	}
}

func TestDetailsEstimatesRegisteredWithoutMotHistory(t *testing.T) {
	svc, cleanup := newLookupFixture(t,
		func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"registrationNumber": "XY99ZZZ",
				"make":               "MINI",
				"motExpiryDate":      "2027-05-20",
			})
		},
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	)
	defer cleanup()

	details, err := svc.Details(context.Background(), "XY99ZZZ")
	if err != nil {
		t.Fatalf("Details returned error: %v", err)
	}

	// 首次使用日期缺失时按 MOT 到期日倒推三年
	want := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	if details.Registered == nil || !details.Registered.Equal(want) {
		t.Fatalf("expected registered %v, got %v", want, details.Registered)
	}
	if details.Model != "" {
		t.Fatalf("expected no model without mot history, got %q", details.Model)
	}
}

func TestDetailsUnknownRegistration(t *testing.T) {
	svc, cleanup := newLookupFixture(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	)
	defer cleanup()

	_, err := svc.Details(context.Background(), "NOPE123")
	if !errors.Is(err, ErrVehicleNotFound) {
		t.Fatalf("expected ErrVehicleNotFound, got %v", err)
	}
}

func TestParseDateAcceptsBothFormats(t *testing.T) {
	if d := parseDate("2020-01-02"); d == nil || d.Day() != 2 {
		t.Fatalf("dash format: %v", d)
	}
	if d := parseDate("2020.01.02"); d == nil || d.Day() != 2 {
		t.Fatalf("dot format: %v", d)
	}
	if d := parseDate(""); d != nil {
		t.Fatalf("empty string should parse to nil, got %v", d)
	}
	if d := parseDate("not-a-date"); d != nil {
		t.Fatalf("garbage should parse to nil, got %v", d)
	}
}
