package consignment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-rental/internal/apperr"
	"github.com/ukydev/fleet-rental/internal/db"
	"github.com/ukydev/fleet-rental/internal/events"
	"github.com/ukydev/fleet-rental/internal/models"
	"github.com/ukydev/fleet-rental/internal/policy"
)

const maxIDAttempts = 3

// TransitionRequest asks to move a consignment to Status. A request whose
// Status equals the current status only updates the notes.
type TransitionRequest struct {
	Status          models.ConsignmentStatus `json:"status"`
	RejectionReason *string                  `json:"rejection_reason,omitempty"`
	AdminNotes      *string                  `json:"admin_notes,omitempty"`
}

// Service runs the consignment workflow against the record store.
type Service struct {
	consignments db.ConsignmentCollection
	vehicles     db.VehicleCollection
	publisher    events.Publisher
	validator    *Validator
	now          func() time.Time
	log          *logrus.Entry
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates a workflow service.
func NewService(consignments db.ConsignmentCollection, vehicles db.VehicleCollection, log *logrus.Entry, opts ...Option) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Service{
		consignments: consignments,
		vehicles:     vehicles,
		publisher:    events.NopPublisher{},
		now:          time.Now,
		log:          log.WithField("component", "consignment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = NewValidator(s.now)
	return s
}

// Submit validates req and stores a new pending consignment. Nothing is
// stored when any field is invalid.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Consignment, error) {
	c, err := s.validator.Validate(req)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c.Status = models.ConsignmentPending
	c.SubmittedAt = now
	c.UpdatedAt = now

	for attempt := 1; ; attempt++ {
		c.ID = NewID(now)
		err = s.consignments.InsertConsignment(ctx, *c)
		if err == nil {
			break
		}
		if !errors.Is(err, db.ErrDuplicateKey) || attempt == maxIDAttempts {
			s.log.WithError(err).Error("Failed to store consignment")
			return nil, apperr.Storage("insert consignment", err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"consignment_id": c.ID,
		"brand":          c.Vehicle.Brand,
		"model":          c.Vehicle.Model,
	}).Info("Consignment submitted")
	s.publish(ctx, events.Event{Type: events.ConsignmentSubmitted, ConsignmentID: c.ID, Status: string(c.Status), At: now})
	return c, nil
}

// Get returns a consignment the principal may read. Staff read every
// consignment, other principals only those submitted with their email.
// A consignment the caller may not read is reported as not found.
func (s *Service) Get(ctx context.Context, p *models.Principal, id string) (*models.Consignment, error) {
	if p == nil {
		return nil, apperr.Unauthenticated()
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	own := policy.Ownership{EmailMatches: p.Email != "" && strings.EqualFold(p.Email, c.Owner.Email)}
	if d := policy.Decide(p, policy.KindConsignment, policy.ActionReadOwn, own); !d.Allowed {
		s.logDenied(p, policy.ActionReadOwn, d)
		return nil, apperr.NotFound("consignment")
	}
	return c, nil
}

// List returns consignments visible to the principal, newest first.
func (s *Service) List(ctx context.Context, p *models.Principal, filter db.ConsignmentFilter) ([]models.Consignment, error) {
	if p == nil {
		return nil, apperr.Unauthenticated()
	}
	if d := policy.Decide(p, policy.KindConsignment, policy.ActionReview, policy.Ownership{}); !d.Allowed {
		if p.Email == "" {
			return []models.Consignment{}, nil
		}
		filter.OwnerEmail = strings.ToLower(p.Email)
	}
	list, err := s.consignments.FindConsignments(ctx, filter)
	if err != nil {
		return nil, apperr.Storage("list consignments", err)
	}
	return list, nil
}

// Transition applies the workflow step leading to req.Status.
func (s *Service) Transition(ctx context.Context, p *models.Principal, id string, req TransitionRequest) (*models.Consignment, error) {
	if !models.IsValidConsignmentStatus(req.Status) {
		return nil, apperr.Validation(map[string]string{"status": "is not a valid status"})
	}
	if err := s.authorize(p, policy.ActionReview); err != nil {
		return nil, err
	}

	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Status == c.Status {
		return s.annotate(ctx, c, req)
	}

	action, ok := ActionFor(req.Status)
	if !ok {
		return nil, apperr.InvalidTransition(string(c.Status), "return to "+string(req.Status))
	}
	if err := s.authorize(p, action.PolicyAction()); err != nil {
		return nil, err
	}

	next, ok := Next(c.Status, action)
	if !ok {
		return nil, apperr.InvalidTransition(string(c.Status), string(action))
	}
	if action == ActionPromote {
		if _, err := s.promote(ctx, p, c); err != nil {
			return nil, err
		}
		return c, nil
	}
	if req.RejectionReason != nil && next != models.ConsignmentRejected {
		return nil, apperr.Validation(map[string]string{"rejection_reason": "is only allowed when rejecting"})
	}

	now := s.now().UTC()
	update := models.ConsignmentUpdate{
		Status:     next,
		AdminNotes: req.AdminNotes,
		UpdatedAt:  now,
	}
	switch next {
	case models.ConsignmentApproved:
		if c.ApprovedAt == nil {
			update.ApprovedAt = &now
		}
	case models.ConsignmentRejected:
		update.RejectionReason = req.RejectionReason
		if c.RejectedAt == nil {
			update.RejectedAt = &now
		}
	case models.ConsignmentCompleted:
		if c.CompletedAt == nil {
			update.CompletedAt = &now
		}
	}

	if err := s.update(ctx, c, update); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"consignment_id": c.ID,
		"status":         c.Status,
		"actor_id":       p.ID,
	}).Info("Consignment transitioned")
	s.publish(ctx, events.Event{Type: events.ConsignmentReviewed, ConsignmentID: c.ID, Status: string(c.Status), ActorID: p.ID, At: now})
	return c, nil
}

// annotate updates notes without changing the status or any timestamp.
func (s *Service) annotate(ctx context.Context, c *models.Consignment, req TransitionRequest) (*models.Consignment, error) {
	if req.RejectionReason != nil && c.Status != models.ConsignmentRejected {
		return nil, apperr.Validation(map[string]string{"rejection_reason": "is only allowed when rejecting"})
	}
	if req.AdminNotes == nil && req.RejectionReason == nil {
		return c, nil
	}

	update := models.ConsignmentUpdate{
		Status:          c.Status,
		AdminNotes:      req.AdminNotes,
		RejectionReason: req.RejectionReason,
		UpdatedAt:       s.now().UTC(),
	}
	if err := s.update(ctx, c, update); err != nil {
		return nil, err
	}
	return c, nil
}

// Promote materializes the fleet vehicle of an approved consignment and
// moves it to active. Replaying the call returns the same vehicle.
func (s *Service) Promote(ctx context.Context, p *models.Principal, id string) (*models.FleetVehicle, error) {
	if err := s.authorize(p, policy.ActionPromote); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.promote(ctx, p, c)
}

func (s *Service) promote(ctx context.Context, p *models.Principal, c *models.Consignment) (*models.FleetVehicle, error) {
	plate := PlateFor(c.ID)

	switch c.Status {
	case models.ConsignmentApproved:
	case models.ConsignmentActive, models.ConsignmentCompleted:
		return s.promotedVehicle(ctx, c, plate)
	default:
		return nil, apperr.InvalidTransition(string(c.Status), string(ActionPromote))
	}

	now := s.now().UTC()
	vehicle, created, err := s.materialize(ctx, c, plate, now)
	if err != nil {
		return nil, err
	}

	vehicleID := vehicle.ID.Hex()
	update := models.ConsignmentUpdate{
		Status:    models.ConsignmentActive,
		VehicleID: &vehicleID,
		UpdatedAt: now,
	}
	if c.ActivatedAt == nil {
		update.ActivatedAt = &now
	}

	err = s.consignments.UpdateConsignment(ctx, c.ID, models.ConsignmentApproved, update)
	if errors.Is(err, db.ErrStatusConflict) {
		// A concurrent promotion may have finished first.
		current, loadErr := s.load(ctx, c.ID)
		if loadErr == nil && current.Status == models.ConsignmentActive && current.VehicleID == vehicleID {
			*c = *current
			return vehicle, nil
		}
		s.rollback(ctx, vehicle, created)
		return nil, apperr.Conflict("consignment was modified concurrently")
	}
	if err != nil {
		s.rollback(ctx, vehicle, created)
		s.log.WithError(err).WithField("consignment_id", c.ID).Error("Failed to activate consignment")
		return nil, apperr.Storage("activate consignment", err)
	}
	update.Apply(c)

	fields := logrus.Fields{"consignment_id": c.ID, "vehicle_id": vehicleID, "plate": plate}
	if p != nil {
		fields["actor_id"] = p.ID
	}
	s.log.WithFields(fields).Info("Consignment promoted to fleet vehicle")

	ev := events.Event{Type: events.VehiclePromoted, ConsignmentID: c.ID, Status: string(c.Status), VehicleID: vehicleID, At: now}
	if p != nil {
		ev.ActorID = p.ID
	}
	s.publish(ctx, ev)
	return vehicle, nil
}

// materialize returns the vehicle carrying plate, inserting it when absent.
// created reports whether this call inserted it.
func (s *Service) materialize(ctx context.Context, c *models.Consignment, plate string, now time.Time) (*models.FleetVehicle, bool, error) {
	existing, err := s.vehicles.FindVehicleByPlate(ctx, plate)
	switch {
	case err == nil:
		return s.checkOwner(existing, c)
	case !errors.Is(err, db.ErrNotFound):
		return nil, false, apperr.Storage("find vehicle by plate", err)
	}

	vehicle := VehicleFromConsignment(c, now)
	err = s.vehicles.InsertVehicle(ctx, &vehicle)
	if err == nil {
		return &vehicle, true, nil
	}
	if !errors.Is(err, db.ErrDuplicateKey) {
		return nil, false, apperr.Storage("insert vehicle", err)
	}

	// Lost an insert race; the winner's vehicle is the answer.
	existing, err = s.vehicles.FindVehicleByPlate(ctx, plate)
	if err != nil {
		return nil, false, apperr.Storage("find vehicle after conflict", err)
	}
	return s.checkOwner(existing, c)
}

func (s *Service) checkOwner(v *models.FleetVehicle, c *models.Consignment) (*models.FleetVehicle, bool, error) {
	if v.ConsignmentID != c.ID {
		return nil, false, apperr.Conflict(fmt.Sprintf("plate %s belongs to another vehicle", v.Plate))
	}
	return v, false, nil
}

func (s *Service) promotedVehicle(ctx context.Context, c *models.Consignment, plate string) (*models.FleetVehicle, error) {
	v, err := s.vehicles.FindVehicleByPlate(ctx, plate)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("fleet vehicle")
	}
	if err != nil {
		return nil, apperr.Storage("find vehicle by plate", err)
	}
	v, _, err = s.checkOwner(v, c)
	return v, err
}

// rollback removes a vehicle inserted by a promotion that could not
// advance the consignment.
func (s *Service) rollback(ctx context.Context, v *models.FleetVehicle, created bool) {
	if !created {
		return
	}
	if err := s.vehicles.DeleteVehicle(ctx, v.ID.Hex()); err != nil {
		s.log.WithError(err).WithField("vehicle_id", v.ID.Hex()).Error("Failed to roll back promoted vehicle")
	}
}

// VehicleFromConsignment builds the fleet vehicle for an approved consignment.
func VehicleFromConsignment(c *models.Consignment, now time.Time) models.FleetVehicle {
	weekly, monthly := RatesFromDaily(c.Vehicle.DailyRate)
	photos := make([]string, len(c.Vehicle.Photos))
	copy(photos, c.Vehicle.Photos)
	documents := make([]string, len(models.StandardDocuments))
	copy(documents, models.StandardDocuments)

	return models.FleetVehicle{
		Brand:          c.Vehicle.Brand,
		Model:          c.Vehicle.Model,
		Year:           c.Vehicle.Year,
		Plate:          PlateFor(c.ID),
		Category:       c.Vehicle.Category,
		Capacity:       c.Vehicle.Capacity,
		DailyRate:      c.Vehicle.DailyRate,
		WeeklyRate:     weekly,
		MonthlyRate:    monthly,
		Status:         models.VehicleAvailable,
		Source:         models.SourceConsigned,
		ApprovalStatus: models.ApprovalApproved,
		Description:    c.Vehicle.Description,
		Photos:         photos,
		Features:       models.VehicleFeatures{},
		Documents:      documents,
		ConsignmentID:  c.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *Service) authorize(p *models.Principal, action policy.Action) error {
	d := policy.Decide(p, policy.KindConsignment, action, policy.Ownership{})
	if d.Allowed {
		return nil
	}
	s.logDenied(p, action, d)
	if d.Reason == policy.ReasonUnauthenticated {
		return apperr.Unauthenticated()
	}
	return apperr.Forbidden(string(d.Reason))
}

func (s *Service) load(ctx context.Context, id string) (*models.Consignment, error) {
	c, err := s.consignments.FindConsignmentByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("consignment")
	}
	if err != nil {
		return nil, apperr.Storage("find consignment", err)
	}
	return c, nil
}

// update stores u when c still has its loaded status, then applies u to c.
func (s *Service) update(ctx context.Context, c *models.Consignment, u models.ConsignmentUpdate) error {
	err := s.consignments.UpdateConsignment(ctx, c.ID, c.Status, u)
	switch {
	case err == nil:
		u.Apply(c)
		return nil
	case errors.Is(err, db.ErrStatusConflict):
		return apperr.Conflict("consignment was modified concurrently")
	case errors.Is(err, db.ErrNotFound):
		return apperr.NotFound("consignment")
	default:
		s.log.WithError(err).WithField("consignment_id", c.ID).Error("Failed to update consignment")
		return apperr.Storage("update consignment", err)
	}
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithField("event", ev.Type).Warn("Failed to publish event")
	}
}

func (s *Service) logDenied(p *models.Principal, action policy.Action, d policy.Decision) {
	fields := logrus.Fields{"kind": policy.KindConsignment, "action": action, "reason": d.Reason}
	if p != nil {
		fields["principal_id"] = p.ID
	}
	s.log.WithFields(fields).Info("Access denied")
}
