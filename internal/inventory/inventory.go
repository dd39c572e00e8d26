package inventory

import (
	"context"
	"time"
)

// Device is one managed device as reported by the inventory API.
type Device struct {
	Serial        string
	ProductFamily string
	DeviceModel   string
	ProductType   string
	Storage       string
	Color         string
	Status        string
	PurchaseDate  *time.Time
	AddedAt       *time.Time
	UpdatedAt     *time.Time
}

// Page is one page of devices plus the cursor for the next one. An
// empty cursor means the listing is exhausted.
type Page struct {
	Devices    []Device
	NextCursor string
}

// DeviceSource lists an organisation's devices page by page.
type DeviceSource interface {
	FetchDevices(ctx context.Context, cursor string) (Page, error)
}
