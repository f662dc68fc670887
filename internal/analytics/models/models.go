// Package models defines the analytics projection rows. Each row remembers
// the sequence of the last event applied to it, which is how stale
// out-of-order updates are detected and refused.
package models

import (
	"time"

	"shopstream/pkg/domain"
)

// Order is the projected state of one order.
type Order struct {
	ID                int64
	TenantID          domain.TenantID
	ExternalID        domain.ExternalID
	OrderNumber       string
	TotalCents        int64
	Currency          string
	FinancialStatus   string
	FulfillmentStatus string
	CustomerID        domain.ExternalID
	Cancelled         bool
	LastSequence      int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Customer is the projected state of one customer, including aggregates
// maintained from order events.
type Customer struct {
	ID              int64
	TenantID        domain.TenantID
	ExternalID      domain.ExternalID
	Email           string
	FirstName       string
	LastName        string
	OrdersCount     int64
	TotalSpentCents int64
	LastSequence    int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Product is the projected state of one product.
type Product struct {
	ID           int64
	TenantID     domain.TenantID
	ExternalID   domain.ExternalID
	Title        string
	Vendor       string
	ProductType  string
	Status       string
	LastSequence int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
