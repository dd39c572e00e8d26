package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"fleet-resale-pricer/internal/pricing"
)

// DeviceRecord is a persisted snapshot of one managed device, keyed by
// serial number. Snapshots are refreshed on every inventory sync so
// valuation and reporting never re-hit the inventory API.
type DeviceRecord struct {
	Serial        string
	ProductFamily *string
	DeviceModel   *string
	ProductType   *string
	Storage       *string
	Color         *string
	Status        *string
	PurchaseDate  *time.Time
	AddedAt       time.Time
	UpdatedAt     time.Time
}

// DeviceValuation joins a device snapshot with its current valuation
// result, if one exists.
type DeviceValuation struct {
	Device DeviceRecord
	Result *pricing.Result
}

// FamilyValue aggregates current fleet resale value for one product
// family.
type FamilyValue struct {
	Family  string
	Devices int64
	Total   decimal.Decimal
}

// FleetStats summarises the fleet for reporting.
type FleetStats struct {
	TotalDevices int64
	Valued       int64
	TotalValue   decimal.Decimal
}
