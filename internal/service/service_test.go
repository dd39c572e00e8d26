package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fleet-resale-pricer/internal/config"
	"fleet-resale-pricer/internal/inventory"
	"fleet-resale-pricer/internal/pricing"
	"fleet-resale-pricer/internal/storage"
)

type fakeSource struct {
	pages   []inventory.Page
	calls   int
	failAt  int
	cursors []string
}

func (f *fakeSource) FetchDevices(ctx context.Context, cursor string) (inventory.Page, error) {
	f.cursors = append(f.cursors, cursor)
	f.calls++
	if f.failAt > 0 && f.calls >= f.failAt {
		return inventory.Page{}, errors.New("inventory unavailable")
	}
	if f.calls > len(f.pages) {
		return inventory.Page{}, errors.New("no more pages")
	}
	return f.pages[f.calls-1], nil
}

type fakeDeviceStore struct {
	devices map[string]storage.DeviceRecord
	order   []string
	failOn  string
}

func newFakeDeviceStore() *fakeDeviceStore {
	return &fakeDeviceStore{devices: map[string]storage.DeviceRecord{}}
}

func (f *fakeDeviceStore) UpsertDevice(ctx context.Context, device storage.DeviceRecord) error {
	if f.failOn != "" && device.Serial == f.failOn {
		return errors.New("write failed")
	}
	if _, seen := f.devices[device.Serial]; !seen {
		f.order = append(f.order, device.Serial)
	}
	f.devices[device.Serial] = device
	return nil
}

func (f *fakeDeviceStore) GetDevice(ctx context.Context, serial string) (*storage.DeviceRecord, error) {
	device, ok := f.devices[serial]
	if !ok {
		return nil, nil
	}
	return &device, nil
}

func (f *fakeDeviceStore) ListDevices(ctx context.Context) ([]storage.DeviceRecord, error) {
	records := make([]storage.DeviceRecord, 0, len(f.order))
	for _, serial := range f.order {
		records = append(records, f.devices[serial])
	}
	return records, nil
}

func (f *fakeDeviceStore) CountDevices(ctx context.Context) (int64, error) {
	return int64(len(f.devices)), nil
}

type emptyCatalog struct{}

func (emptyCatalog) FindEntries(ctx context.Context, provider pricing.Provider, filter pricing.CatalogFilter) ([]pricing.CatalogEntry, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{Interval: time.Hour},
		Valuation: config.ValuationConfig{DefaultRegion: "US"},
	}
}

func newTestService(t *testing.T, source inventory.DeviceSource, devices storage.DeviceStore) *Service {
	t.Helper()
	logger := zerolog.Nop()
	engine := pricing.NewEngine(
		pricing.NewChain(pricing.NewMatcher(emptyCatalog{}), logger),
		pricing.NewEstimator(),
		pricing.NewConverter(pricing.DefaultRates()),
		nil,
		logger,
	)
	return New(testConfig(), nil, source, devices, engine, logger)
}

func strPtr(s string) *string { return &s }

func TestSyncWalksAllPages(t *testing.T) {
	added := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{pages: []inventory.Page{
		{
			Devices: []inventory.Device{
				{Serial: "C02AAA", ProductFamily: "Mac", Storage: "512GB", AddedAt: &added},
				{Serial: "F4GBBB", ProductFamily: "iPhone"},
			},
			NextCursor: "cur-2",
		},
		{
			Devices: []inventory.Device{{Serial: "GG7CCC", ProductFamily: "iPad"}},
		},
	}}
	store := newFakeDeviceStore()
	svc := newTestService(t, source, store)

	stats, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if stats.Pages != 2 || stats.Devices != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if got := source.cursors; len(got) != 2 || got[0] != "" || got[1] != "cur-2" {
		t.Fatalf("unexpected cursors %v", got)
	}
	record, ok := store.devices["C02AAA"]
	if !ok {
		t.Fatal("device C02AAA not stored")
	}
	if record.Storage == nil || *record.Storage != "512GB" {
		t.Fatalf("storage not mapped: %+v", record)
	}
	if !record.AddedAt.Equal(added) {
		t.Fatalf("source added timestamp should be kept, got %v", record.AddedAt)
	}
}

func TestSyncPropagatesSourceError(t *testing.T) {
	source := &fakeSource{failAt: 1}
	svc := newTestService(t, source, newFakeDeviceStore())
	if _, err := svc.Sync(context.Background()); err == nil {
		t.Fatal("source failure should abort the sync")
	}
}

func TestConditionFromAge(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		age  string
		date time.Time
		want pricing.Condition
	}{
		{"one year", now.AddDate(-1, 0, 0), pricing.ConditionExcellent},
		{"just under two years", now.AddDate(-2, 0, 1), pricing.ConditionExcellent},
		{"two and a half years", now.AddDate(-2, -6, 0), pricing.ConditionGood},
		{"four years", now.AddDate(-4, 0, 0), pricing.ConditionFair},
		{"six years", now.AddDate(-6, 0, 0), pricing.ConditionPoor},
	}
	for _, tc := range cases {
		if got := ConditionFromAge(&tc.date, now); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.age, tc.want, got)
		}
	}
	if got := ConditionFromAge(nil, now); got != pricing.ConditionGood {
		t.Fatalf("missing purchase date should grade GOOD, got %s", got)
	}
}

func TestValueFleetGradesByPurchaseAge(t *testing.T) {
	store := newFakeDeviceStore()
	recent := time.Now().AddDate(-1, 0, 0)
	if err := store.UpsertDevice(context.Background(), storage.DeviceRecord{
		Serial:        "C02AAA",
		ProductFamily: strPtr("Mac"),
		DeviceModel:   strPtr("MacBook Pro M3"),
		Storage:       strPtr("512GB"),
		PurchaseDate:  &recent,
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	svc := newTestService(t, nil, store)
	stats, err := svc.ValueFleet(context.Background())
	if err != nil {
		t.Fatalf("value fleet: %v", err)
	}
	if stats.Devices != 1 || stats.Valued != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	result := svc.ValueDevice(context.Background(), store.devices["C02AAA"])
	if result.Condition != pricing.ConditionExcellent {
		t.Fatalf("a one year old device should grade EXCELLENT, got %s", result.Condition)
	}
	if result.MatchLevel != pricing.MatchNone {
		t.Fatalf("empty catalog should fall through to the estimator, got %s", result.MatchLevel)
	}
}

func TestValueSerialUnknownDevice(t *testing.T) {
	svc := newTestService(t, nil, newFakeDeviceStore())
	if _, err := svc.ValueSerial(context.Background(), "NOPE"); err == nil {
		t.Fatal("unknown serial should return an error")
	}
}

func TestProcessTickWithoutSourceStillValues(t *testing.T) {
	store := newFakeDeviceStore()
	for i := 0; i < 3; i++ {
		serial := fmt.Sprintf("SER%03d", i)
		if err := store.UpsertDevice(context.Background(), storage.DeviceRecord{Serial: serial}); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	svc := newTestService(t, nil, store)
	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick without inventory source should succeed: %v", err)
	}
}
