package domain

import (
	"strings"
	"time"
)

// PaymentStatus enumerates the payment lifecycle of an order.
type PaymentStatus string

const (
	// PaymentStatusUnpaid marks a freshly created order or one awaiting gateway verification.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusPaid marks an order whose payment the gateway confirmed. Terminal.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed marks an order whose verification was rejected. A new
	// payment request may re-issue an authority for it.
	PaymentStatusFailed PaymentStatus = "failed"
)

// OrderLine is a single purchased product with its captured unit price.
type OrderLine struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name,omitempty"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
}

// Order is the persisted order record. Amounts are integer currency minor units.
type Order struct {
	// ID is the internal storage identifier.
	ID string `firestore:"-"`
	// Code is the external, gateway-routable order identifier used in callbacks.
	Code string `firestore:"code"`
	// UserID references the owning user; empty for anonymous checkout.
	UserID string `firestore:"userId,omitempty"`

	Shipping map[string]string `firestore:"shipping"`
	Items    []OrderLine       `firestore:"items"`

	Subtotal    int64 `firestore:"subtotal"`
	ShippingFee int64 `firestore:"shippingFee"`
	Total       int64 `firestore:"total"`

	// PaymentAuthority is the gateway token for the current payment attempt,
	// empty until a payment has been requested.
	PaymentAuthority string        `firestore:"paymentAuthority,omitempty"`
	PaymentStatus    PaymentStatus `firestore:"paymentStatus"`
	// PaymentRefID is the gateway settlement reference, present only once paid.
	PaymentRefID string `firestore:"paymentRefId,omitempty"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`

	// LastSyncTime mirrors the document update time read from the store and is
	// used as an optimistic precondition when writing the record back.
	LastSyncTime time.Time `firestore:"-"`
}

// Anonymous reports whether the order has no owning user.
func (o Order) Anonymous() bool {
	return strings.TrimSpace(o.UserID) == ""
}

// Paid reports whether the order reached the terminal paid state.
func (o Order) Paid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// AuthorityIssued reports whether a gateway authority is attached.
func (o Order) AuthorityIssued() bool {
	return strings.TrimSpace(o.PaymentAuthority) != ""
}
