package model

import "time"

// Listing status values.  Only active listings accept new connections.
const (
	ListingActive  = "active"
	ListingSold    = "sold"
	ListingRemoved = "removed"
)

// Listing represents a ticket or merch listing as stored in the
// `listings` table.  The marketplace owns listing CRUD; this service only
// reads listings and flips the lock column.
//
// Fields:
//  ID                   – primary key identifier.
//  Kind                 – ticket or merch.
//  SellerID             – user who posted the listing.
//  Title                – display title.
//  Status               – active, sold or removed.
//  LockedByConnectionID – connection currently holding the lock (nullable).
type Listing struct {
	ID                   uint64
	Kind                 Kind
	SellerID             uint64
	Title                string
	Status               string
	LockedByConnectionID *uint64
	CreatedAt            time.Time
}

// Available reports whether a new connection may lock this listing.
func (l Listing) Available() bool {
	return l.Status == ListingActive && l.LockedByConnectionID == nil
}

// BondingQuestion is one community-trust prompt from `bonding_questions`.
type BondingQuestion struct {
	ID     uint64
	Prompt string
	Active bool
}

// BondingAnswer is one party's answer to one question of a connection.
type BondingAnswer struct {
	ConnectionID uint64
	Role         Role
	QuestionID   uint64
	Answer       string
	CreatedAt    time.Time
}

// Profile mirrors the public part of a row in `profiles`.  Instagram and
// Twitter are only revealed once both parties agreed to share socials.
type Profile struct {
	UserID      uint64
	DisplayName string
	Bias        string
	ArmySince   *int
	Instagram   string
	Twitter     string
}
