package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VehicleStatus is the rental availability of a fleet vehicle.
type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "available"
	VehicleRented      VehicleStatus = "rented"
	VehicleMaintenance VehicleStatus = "maintenance"
)

// VehicleSource records how a vehicle entered the fleet.
type VehicleSource string

const (
	SourceOwned     VehicleSource = "owned"
	SourceConsigned VehicleSource = "consigned"
)

// ApprovalApproved is the approval status of every rentable vehicle.
const ApprovalApproved = "approved"

// StandardDocuments is the document checklist attached to new fleet vehicles.
var StandardDocuments = []string{"registration", "insurance_policy", "technical_inspection"}

// VehicleFeatures describes optional equipment.
type VehicleFeatures struct {
	SupplementaryCabin bool `bson:"supplementary_cabin" json:"supplementary_cabin"`
	OpenBed            bool `bson:"open_bed" json:"open_bed"`
	Restroom           bool `bson:"restroom" json:"restroom"`
}

// FleetVehicle represents a rentable fleet asset.
type FleetVehicle struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Brand          string             `bson:"brand" json:"brand"`
	Model          string             `bson:"model" json:"model"`
	Year           int                `bson:"year" json:"year"`
	Plate          string             `bson:"plate" json:"plate"`
	Category       string             `bson:"category" json:"category"`
	Capacity       int                `bson:"capacity" json:"capacity"`
	DailyRate      float64            `bson:"daily_rate" json:"daily_rate"`
	WeeklyRate     float64            `bson:"weekly_rate" json:"weekly_rate"`
	MonthlyRate    float64            `bson:"monthly_rate" json:"monthly_rate"`
	Status         VehicleStatus      `bson:"status" json:"status"`
	Source         VehicleSource      `bson:"source" json:"source"`
	ApprovalStatus string             `bson:"approval_status" json:"approval_status"`
	Description    string             `bson:"description" json:"description"`
	Photos         []string           `bson:"photos" json:"photos"`
	Features       VehicleFeatures    `bson:"features" json:"features"`
	Documents      []string           `bson:"documents" json:"documents"`
	ConsignmentID  string             `bson:"consignment_id,omitempty" json:"consignment_id,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// CreateVehicleRequest is the body of a direct fleet addition by staff.
type CreateVehicleRequest struct {
	Brand       string          `json:"brand" validate:"required"`
	Model       string          `json:"model" validate:"required"`
	Year        int             `json:"year" validate:"required,gte=1990"`
	Plate       string          `json:"plate" validate:"required"`
	Category    string          `json:"category" validate:"required"`
	Capacity    int             `json:"capacity" validate:"gte=0"`
	DailyRate   float64         `json:"daily_rate" validate:"gt=0"`
	WeeklyRate  float64         `json:"weekly_rate" validate:"gte=0"`
	MonthlyRate float64         `json:"monthly_rate" validate:"gte=0"`
	Description string          `json:"description"`
	Photos      []string        `json:"photos"`
	Features    VehicleFeatures `json:"features"`
}
