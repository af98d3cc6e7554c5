package models

import "time"

// ConsignmentStatus is the workflow state of a consignment.
type ConsignmentStatus string

const (
	ConsignmentPending   ConsignmentStatus = "pending"
	ConsignmentApproved  ConsignmentStatus = "approved"
	ConsignmentRejected  ConsignmentStatus = "rejected"
	ConsignmentActive    ConsignmentStatus = "active"
	ConsignmentCompleted ConsignmentStatus = "completed"
)

// IsValidConsignmentStatus checks if a status value is known.
func IsValidConsignmentStatus(s ConsignmentStatus) bool {
	switch s {
	case ConsignmentPending, ConsignmentApproved, ConsignmentRejected, ConsignmentActive, ConsignmentCompleted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is permitted.
func (s ConsignmentStatus) IsTerminal() bool {
	return s == ConsignmentRejected || s == ConsignmentCompleted
}

// OwnerContact identifies the third party offering the vehicle.
type OwnerContact struct {
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
	Phone string `bson:"phone" json:"phone"`
}

// VehicleDescriptor is the vehicle as described by the submitter.
type VehicleDescriptor struct {
	Brand       string   `bson:"brand" json:"brand"`
	Model       string   `bson:"model" json:"model"`
	Year        int      `bson:"year" json:"year"`
	Category    string   `bson:"category" json:"category"`
	Capacity    int      `bson:"capacity" json:"capacity"`
	Condition   string   `bson:"condition" json:"condition"`
	Mileage     int      `bson:"mileage" json:"mileage"`
	Price       float64  `bson:"price" json:"price"`
	DailyRate   float64  `bson:"daily_rate" json:"daily_rate"`
	Description string   `bson:"description" json:"description"`
	Photos      []string `bson:"photos" json:"photos"`
}

// Consignment represents a third party's offer of a vehicle for the fleet.
type Consignment struct {
	ID              string            `bson:"_id" json:"id"`
	Owner           OwnerContact      `bson:"owner" json:"owner"`
	Vehicle         VehicleDescriptor `bson:"vehicle" json:"vehicle"`
	Status          ConsignmentStatus `bson:"status" json:"status"`
	RejectionReason string            `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	AdminNotes      string            `bson:"admin_notes,omitempty" json:"admin_notes,omitempty"`
	VehicleID       string            `bson:"vehicle_id,omitempty" json:"vehicle_id,omitempty"`
	SubmittedAt     time.Time         `bson:"submitted_at" json:"submitted_at"`
	ApprovedAt      *time.Time        `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	RejectedAt      *time.Time        `bson:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	ActivatedAt     *time.Time        `bson:"activated_at,omitempty" json:"activated_at,omitempty"`
	CompletedAt     *time.Time        `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	UpdatedAt       time.Time         `bson:"updated_at" json:"updated_at"`
}

// ConsignmentUpdate is the set of fields changed by one workflow step.
// Nil pointers are left untouched.
type ConsignmentUpdate struct {
	Status          ConsignmentStatus
	RejectionReason *string
	AdminNotes      *string
	VehicleID       *string
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	ActivatedAt     *time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// Apply copies the update onto c.
func (u ConsignmentUpdate) Apply(c *Consignment) {
	c.Status = u.Status
	if u.RejectionReason != nil {
		c.RejectionReason = *u.RejectionReason
	}
	if u.AdminNotes != nil {
		c.AdminNotes = *u.AdminNotes
	}
	if u.VehicleID != nil {
		c.VehicleID = *u.VehicleID
	}
	if u.ApprovedAt != nil {
		c.ApprovedAt = u.ApprovedAt
	}
	if u.RejectedAt != nil {
		c.RejectedAt = u.RejectedAt
	}
	if u.ActivatedAt != nil {
		c.ActivatedAt = u.ActivatedAt
	}
	if u.CompletedAt != nil {
		c.CompletedAt = u.CompletedAt
	}
	c.UpdatedAt = u.UpdatedAt
}
