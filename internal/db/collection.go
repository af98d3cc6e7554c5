package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/fleet-rental/internal/models"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrStatusConflict = errors.New("record status changed concurrently")
	ErrNilCollection  = errors.New("mongo collection is nil")
)

// ConsignmentFilter narrows consignment listings. Empty fields match all.
type ConsignmentFilter struct {
	Status     models.ConsignmentStatus
	OwnerEmail string
	Limit      int64
}

// ConsignmentCollection defines the interface for consignment data operations.
type ConsignmentCollection interface {
	InsertConsignment(ctx context.Context, c models.Consignment) error
	FindConsignmentByID(ctx context.Context, id string) (*models.Consignment, error)
	FindConsignments(ctx context.Context, filter ConsignmentFilter) ([]models.Consignment, error)
	// UpdateConsignment applies update only while the stored status still
	// equals from. It returns ErrStatusConflict when the status moved on and
	// ErrNotFound when the record does not exist.
	UpdateConsignment(ctx context.Context, id string, from models.ConsignmentStatus, update models.ConsignmentUpdate) error
}

// VehicleCollection defines the interface for fleet vehicle data operations.
// Plates are unique; InsertVehicle returns ErrDuplicateKey on collision.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, vehicle *models.FleetVehicle) error
	FindVehicleByID(ctx context.Context, id string) (*models.FleetVehicle, error)
	FindVehicleByPlate(ctx context.Context, plate string) (*models.FleetVehicle, error)
	DeleteVehicle(ctx context.Context, id string) error
}

// UserCollection defines the interface for user directory operations
type UserCollection interface {
	InsertUser(ctx context.Context, user *models.UserAccount) error
	FindUserByID(ctx context.Context, id string) (*models.UserAccount, error)
	FindUserByEmail(ctx context.Context, email string) (*models.UserAccount, error)
	UpdateUserFields(ctx context.Context, id string, fields UserFields) (*models.UserAccount, error)
	DeleteUser(ctx context.Context, id string) error
	UpdateLastLogin(ctx context.Context, id string) error
}

// UserFields lists the mutable user attributes. Nil pointers are left untouched.
type UserFields struct {
	Role        *models.Role
	Banned      *bool
	// BannedUntil is written whenever Banned is set; nil clears it.
	BannedUntil *time.Time
	// Metadata keys are merged into the stored metadata.
	Metadata map[string]interface{}
}
