package domain

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseStatus is the lifecycle status of a purchase.
type PurchaseStatus string

const (
	PurchaseStatusValid      PurchaseStatus = "valid"
	PurchaseStatusRefunded   PurchaseStatus = "refunded"
	PurchaseStatusRestricted PurchaseStatus = "restricted"
)

func (s PurchaseStatus) IsValid() bool {
	switch s {
	case PurchaseStatusValid, PurchaseStatusRefunded, PurchaseStatusRestricted:
		return true
	}
	return false
}

// Purchase links a user to a product, optionally backed by a merchant
// charge. Refund processing transitions Status exactly once; redelivered
// refund events are no-ops.
type Purchase struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	ProductID        uuid.UUID
	MerchantChargeID *uuid.UUID
	Status           PurchaseStatus
	CreatedAt        time.Time
}

// Merchant entity status values. Integer enum shared by all merchant
// entity types: 0 = inactive, 1 = active.
const (
	MerchantStatusInactive = 0
	MerchantStatusActive   = 1
)

// MerchantAccount maps the platform to one account at the external
// payment processor.
type MerchantAccount struct {
	ID         uuid.UUID
	Label      string
	Identifier string
	Status     int
	CreatedAt  time.Time
}

// MerchantCustomer maps an internal user to a processor-side customer.
// Always references an existing user and an existing MerchantAccount;
// (MerchantAccountID, Identifier) is unique.
type MerchantCustomer struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	MerchantAccountID uuid.UUID
	Identifier        string
	Status            int
	CreatedAt         time.Time
}

// MerchantProduct maps an internal product to a processor-side product.
type MerchantProduct struct {
	ID                uuid.UUID
	ProductID         uuid.UUID
	MerchantAccountID uuid.UUID
	Identifier        string
	Status            int
	CreatedAt         time.Time
}

// MerchantPrice maps a processor-side price to a merchant product.
type MerchantPrice struct {
	ID                uuid.UUID
	MerchantProductID uuid.UUID
	MerchantAccountID uuid.UUID
	Identifier        string
	Status            int
	CreatedAt         time.Time
}

// MerchantCharge records one processor-side charge for a customer.
type MerchantCharge struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	MerchantAccountID  uuid.UUID
	MerchantCustomerID uuid.UUID
	MerchantProductID  uuid.UUID
	Identifier         string
	Status             int
	CreatedAt          time.Time
}
