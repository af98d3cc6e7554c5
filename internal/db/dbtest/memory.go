// Package dbtest provides in-memory collections for tests. They honor the
// same contracts as the Mongo collections: unique plates and emails, and
// status compare-and-set on consignment updates.
package dbtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ukydev/fleet-rental/internal/db"
	"github.com/ukydev/fleet-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store holds every collection behind one lock.
type Store struct {
	mu           sync.Mutex
	consignments map[string]models.Consignment
	vehicles     map[primitive.ObjectID]models.FleetVehicle
	users        map[primitive.ObjectID]models.UserAccount

	// Fail, when set, is returned by the named operation instead of running it.
	Fail map[string]error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		consignments: map[string]models.Consignment{},
		vehicles:     map[primitive.ObjectID]models.FleetVehicle{},
		users:        map[primitive.ObjectID]models.UserAccount{},
		Fail:         map[string]error{},
	}
}

func (s *Store) failure(op string) error {
	return s.Fail[op]
}

// Consignments returns the consignment collection view.
func (s *Store) Consignments() db.ConsignmentCollection { return consignments{s} }

// Vehicles returns the vehicle collection view.
func (s *Store) Vehicles() db.VehicleCollection { return vehicles{s} }

// Users returns the user collection view.
func (s *Store) Users() db.UserCollection { return users{s} }

// VehicleCount returns the number of stored vehicles.
func (s *Store) VehicleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vehicles)
}

type consignments struct{ s *Store }

func (c consignments) InsertConsignment(_ context.Context, doc models.Consignment) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.failure("InsertConsignment"); err != nil {
		return err
	}
	if _, ok := c.s.consignments[doc.ID]; ok {
		return db.ErrDuplicateKey
	}
	c.s.consignments[doc.ID] = doc
	return nil
}

func (c consignments) FindConsignmentByID(_ context.Context, id string) (*models.Consignment, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.failure("FindConsignmentByID"); err != nil {
		return nil, err
	}
	doc, ok := c.s.consignments[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &doc, nil
}

func (c consignments) FindConsignments(_ context.Context, filter db.ConsignmentFilter) ([]models.Consignment, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.failure("FindConsignments"); err != nil {
		return nil, err
	}
	out := []models.Consignment{}
	for _, doc := range c.s.consignments {
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.OwnerEmail != "" && !strings.EqualFold(doc.Owner.Email, filter.OwnerEmail) {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if filter.Limit > 0 && int64(len(out)) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (c consignments) UpdateConsignment(_ context.Context, id string, from models.ConsignmentStatus, update models.ConsignmentUpdate) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.failure("UpdateConsignment"); err != nil {
		return err
	}
	doc, ok := c.s.consignments[id]
	if !ok {
		return db.ErrNotFound
	}
	if doc.Status != from {
		return db.ErrStatusConflict
	}
	update.Apply(&doc)
	c.s.consignments[id] = doc
	return nil
}

type vehicles struct{ s *Store }

func (v vehicles) InsertVehicle(_ context.Context, vehicle *models.FleetVehicle) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if err := v.s.failure("InsertVehicle"); err != nil {
		return err
	}
	for _, existing := range v.s.vehicles {
		if existing.Plate == vehicle.Plate {
			return db.ErrDuplicateKey
		}
	}
	vehicle.ID = primitive.NewObjectID()
	v.s.vehicles[vehicle.ID] = *vehicle
	return nil
}

func (v vehicles) FindVehicleByID(_ context.Context, id string) (*models.FleetVehicle, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, db.ErrNotFound
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	doc, ok := v.s.vehicles[oid]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &doc, nil
}

func (v vehicles) FindVehicleByPlate(_ context.Context, plate string) (*models.FleetVehicle, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if err := v.s.failure("FindVehicleByPlate"); err != nil {
		return nil, err
	}
	for _, doc := range v.s.vehicles {
		if doc.Plate == plate {
			found := doc
			return &found, nil
		}
	}
	return nil, db.ErrNotFound
}

func (v vehicles) DeleteVehicle(_ context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return db.ErrNotFound
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if err := v.s.failure("DeleteVehicle"); err != nil {
		return err
	}
	if _, ok := v.s.vehicles[oid]; !ok {
		return db.ErrNotFound
	}
	delete(v.s.vehicles, oid)
	return nil
}

type users struct{ s *Store }

func (u users) InsertUser(_ context.Context, user *models.UserAccount) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, existing := range u.s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return db.ErrDuplicateKey
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	u.s.users[user.ID] = *user
	return nil
}

func (u users) FindUserByID(_ context.Context, id string) (*models.UserAccount, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, db.ErrNotFound
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.failure("FindUserByID"); err != nil {
		return nil, err
	}
	doc, ok := u.s.users[oid]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &doc, nil
}

func (u users) FindUserByEmail(_ context.Context, email string) (*models.UserAccount, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, doc := range u.s.users {
		if strings.EqualFold(doc.Email, email) {
			found := doc
			return &found, nil
		}
	}
	return nil, db.ErrNotFound
}

func (u users) UpdateUserFields(_ context.Context, id string, fields db.UserFields) (*models.UserAccount, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, db.ErrNotFound
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.failure("UpdateUserFields"); err != nil {
		return nil, err
	}
	doc, ok := u.s.users[oid]
	if !ok {
		return nil, db.ErrNotFound
	}
	if fields.Role != nil {
		doc.Role = *fields.Role
	}
	if fields.Banned != nil {
		doc.Banned = *fields.Banned
		doc.BannedUntil = fields.BannedUntil
	}
	if len(fields.Metadata) > 0 {
		if doc.Metadata == nil {
			doc.Metadata = map[string]interface{}{}
		}
		for k, val := range fields.Metadata {
			doc.Metadata[k] = val
		}
	}
	doc.UpdatedAt = time.Now().UTC()
	u.s.users[oid] = doc
	return &doc, nil
}

func (u users) DeleteUser(_ context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return db.ErrNotFound
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.failure("DeleteUser"); err != nil {
		return err
	}
	if _, ok := u.s.users[oid]; !ok {
		return db.ErrNotFound
	}
	delete(u.s.users, oid)
	return nil
}

func (u users) UpdateLastLogin(_ context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return db.ErrNotFound
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	doc, ok := u.s.users[oid]
	if !ok {
		return db.ErrNotFound
	}
	now := time.Now().UTC()
	doc.LastLogin = &now
	u.s.users[oid] = doc
	return nil
}
