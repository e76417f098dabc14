package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProductKind string

const (
	ProductScreening   ProductKind = "screening"
	ProductTestPremium ProductKind = "test_premium"
)

func (k ProductKind) Valid() bool {
	return k == ProductScreening || k == ProductTestPremium
}

type PaymentEventKind string

const (
	PaymentCheckoutCreated PaymentEventKind = "checkout_created"
	PaymentVerified        PaymentEventKind = "verified"
	PaymentPending         PaymentEventKind = "pending"
)

// PaymentEvent is an audit record of a checkout or verification attempt.
type PaymentEvent struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind    PaymentEventKind   `bson:"kind" json:"kind"`
	Product ProductKind        `bson:"product" json:"product"`

	SessionID string `bson:"session_id,omitempty" json:"session_id,omitempty"`
	TestID    string `bson:"test_id,omitempty" json:"test_id,omitempty"`
	OwnerID   string `bson:"owner_id" json:"owner_id"`

	CheckoutID string `bson:"checkout_id,omitempty" json:"checkout_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
