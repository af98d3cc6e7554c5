package consignment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-rental/internal/apperr"
	"github.com/ukydev/fleet-rental/internal/db"
	"github.com/ukydev/fleet-rental/internal/db/dbtest"
	"github.com/ukydev/fleet-rental/internal/events"
	"github.com/ukydev/fleet-rental/internal/models"
	"github.com/ukydev/fleet-rental/internal/policy"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

var (
	admin   = &models.Principal{ID: "admin-1", Email: "admin@fleet.example", Role: models.RoleAdmin}
	manager = &models.Principal{ID: "manager-1", Email: "manager@fleet.example", Role: models.RoleManager}
	client  = &models.Principal{ID: "client-1", Email: "ana@example.com", Role: models.RoleClient}
	other   = &models.Principal{ID: "client-2", Email: "bob@example.com", Role: models.RoleClient}
)

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func newTestService(t *testing.T) (*Service, *dbtest.Store, *recordingPublisher) {
	t.Helper()
	store := dbtest.NewStore()
	pub := &recordingPublisher{}
	svc := NewService(store.Consignments(), store.Vehicles(), quietLogger(),
		WithClock(func() time.Time { return fixedNow }),
		WithPublisher(pub),
	)
	return svc, store, pub
}

func submitValid(t *testing.T, svc *Service) *models.Consignment {
	t.Helper()
	c, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	return c
}

func approve(t *testing.T, svc *Service, id string) {
	t.Helper()
	_, err := svc.Transition(context.Background(), admin, id, TransitionRequest{Status: models.ConsignmentApproved})
	require.NoError(t, err)
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func TestService_Submit(t *testing.T) {
	svc, store, pub := newTestService(t)

	c := submitValid(t, svc)
	assert.Regexp(t, `^CSG-`, c.ID)
	assert.Equal(t, models.ConsignmentPending, c.Status)
	assert.Equal(t, fixedNow, c.SubmittedAt)

	stored, err := store.Consignments().FindConsignmentByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", stored.Owner.Email)
	assert.Equal(t, []events.Type{events.ConsignmentSubmitted}, pub.types())
}

func TestService_Submit_InvalidStoresNothing(t *testing.T) {
	svc, store, _ := newTestService(t)

	req := validRequest()
	req.Year = "1899"
	_, err := svc.Submit(context.Background(), req)
	requireKind(t, err, apperr.KindValidation)

	list, err := store.Consignments().FindConsignments(context.Background(), db.ConsignmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_Submit_StorageFailure(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.Fail["InsertConsignment"] = errors.New("connection reset")

	_, err := svc.Submit(context.Background(), validRequest())
	requireKind(t, err, apperr.KindStorage)
}

func TestService_Submit_PublishFailureIsNotFatal(t *testing.T) {
	svc, _, pub := newTestService(t)
	pub.err = errors.New("broker down")

	_, err := svc.Submit(context.Background(), validRequest())
	assert.NoError(t, err)
}

func TestService_Get(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := submitValid(t, svc)
	ctx := context.Background()

	got, err := svc.Get(ctx, client, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = svc.Get(ctx, manager, c.ID)
	assert.NoError(t, err)

	_, err = svc.Get(ctx, other, c.ID)
	requireKind(t, err, apperr.KindNotFound)

	_, err = svc.Get(ctx, nil, c.ID)
	requireKind(t, err, apperr.KindAuthentication)

	_, err = svc.Get(ctx, admin, "CSG-MISSING")
	requireKind(t, err, apperr.KindNotFound)
}

func TestService_List(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	submitValid(t, svc)
	req := validRequest()
	req.OwnerEmail = "bob@example.com"
	_, err := svc.Submit(ctx, req)
	require.NoError(t, err)

	all, err := svc.List(ctx, admin, db.ConsignmentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := svc.List(ctx, client, db.ConsignmentFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "ana@example.com", own[0].Owner.Email)

	pending, err := svc.List(ctx, admin, db.ConsignmentFilter{Status: models.ConsignmentApproved})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestService_Transition_Approve(t *testing.T) {
	svc, _, pub := newTestService(t)
	c := submitValid(t, svc)

	notes := "looks good"
	got, err := svc.Transition(context.Background(), manager, c.ID, TransitionRequest{
		Status:     models.ConsignmentApproved,
		AdminNotes: &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ConsignmentApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.Equal(t, "looks good", got.AdminNotes)
	assert.Contains(t, pub.types(), events.ConsignmentReviewed)
}

func TestService_Transition_Reject(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := submitValid(t, svc)
	reason := "photos missing"

	got, err := svc.Transition(context.Background(), admin, c.ID, TransitionRequest{
		Status:          models.ConsignmentRejected,
		RejectionReason: &reason,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ConsignmentRejected, got.Status)
	assert.Equal(t, reason, got.RejectionReason)
	require.NotNil(t, got.RejectedAt)

	_, err = svc.Transition(context.Background(), admin, c.ID, TransitionRequest{Status: models.ConsignmentApproved})
	requireKind(t, err, apperr.KindInvalidTransition)
}

func TestService_Transition_RejectionReasonOnlyWhenRejecting(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := submitValid(t, svc)
	reason := "nope"

	_, err := svc.Transition(context.Background(), admin, c.ID, TransitionRequest{
		Status:          models.ConsignmentApproved,
		RejectionReason: &reason,
	})
	requireKind(t, err, apperr.KindValidation)
}

func TestService_Transition_Denied(t *testing.T) {
	svc, store, _ := newTestService(t)
	c := submitValid(t, svc)

	_, err := svc.Transition(context.Background(), client, c.ID, TransitionRequest{Status: models.ConsignmentApproved})
	requireKind(t, err, apperr.KindAuthorization)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, string(policy.ReasonInsufficientRole), appErr.Reason)

	_, err = svc.Transition(context.Background(), nil, c.ID, TransitionRequest{Status: models.ConsignmentApproved})
	requireKind(t, err, apperr.KindAuthentication)

	stored, err := store.Consignments().FindConsignmentByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConsignmentPending, stored.Status)
}

func TestService_Transition_InvalidStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := submitValid(t, svc)

	_, err := svc.Transition(context.Background(), admin, c.ID, TransitionRequest{Status: "archived"})
	requireKind(t, err, apperr.KindValidation)

	approve(t, svc, c.ID)
	_, err = svc.Transition(context.Background(), admin, c.ID, TransitionRequest{Status: models.ConsignmentPending})
	requireKind(t, err, apperr.KindInvalidTransition)

	_, err = svc.Transition(context.Background(), admin, c.ID, TransitionRequest{Status: models.ConsignmentCompleted})
	requireKind(t, err, apperr.KindInvalidTransition)
}

func TestService_Transition_AnnotateKeepsTimestamps(t *testing.T) {
	svc, _, _ := newTestService(t)
	c := submitValid(t, svc)
	approve(t, svc, c.ID)

	before, err := svc.Get(context.Background(), admin, c.ID)
	require.NoError(t, err)

	notes := "call owner on Monday"
	got, err := svc.Transition(context.Background(), admin, c.ID, TransitionRequest{
		Status:     models.ConsignmentApproved,
		AdminNotes: &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, notes, got.AdminNotes)
	assert.Equal(t, before.ApprovedAt, got.ApprovedAt)
	assert.Equal(t, models.ConsignmentApproved, got.Status)
}

func TestService_Promote_ScenarioRates(t *testing.T) {
	svc, _, pub := newTestService(t)
	c := submitValid(t, svc)
	approve(t, svc, c.ID)

	v, err := svc.Promote(context.Background(), admin, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, v.DailyRate)
	assert.Equal(t, 1800.0, v.WeeklyRate)
	assert.Equal(t, 7500.0, v.MonthlyRate)
	assert.Equal(t, PlateFor(c.ID), v.Plate)
	assert.Equal(t, models.SourceConsigned, v.Source)
	assert.Equal(t, models.VehicleAvailable, v.Status)
	assert.Equal(t, models.ApprovalApproved, v.ApprovalStatus)
	assert.Equal(t, models.StandardDocuments, v.Documents)
	assert.Equal(t, c.ID, v.ConsignmentID)
	assert.False(t, v.Features.Restroom)

	got, err := svc.Get(context.Background(), admin, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConsignmentActive, got.Status)
	assert.Equal(t, v.ID.Hex(), got.VehicleID)
	require.NotNil(t, got.ActivatedAt)
	assert.Contains(t, pub.types(), events.VehiclePromoted)
}

func TestService_Promote_Idempotent(t *testing.T) {
	svc, store, _ := newTestService(t)
	c := submitValid(t, svc)
	approve(t, svc, c.ID)

	first, err := svc.Promote(context.Background(), admin, c.ID)
	require.NoError(t, err)
	second, err := svc.Promote(context.Background(), manager, c.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.VehicleCount())
}

func TestService_Promote_Concurrent(t *testing.T) {
	svc, store, _ := newTestService(t)
	c := submitValid(t, svc)
	approve(t, svc, c.ID)

	const racers = 8
	ids := make([]string, racers)
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := svc.Promote(context.Background(), admin, c.ID)
			errs[i] = err
			if v != nil {
				ids[i] = v.ID.Hex()
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < racers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, store.VehicleCount())
}

func TestService_Promote_RequiresApproval(t *testing.T) {
	svc, store, _ := newTestService(t)
	c := submitValid(t, svc)

	_, err := svc.Promote(context.Background(), admin, c.ID)
	requireKind(t, err, apperr.KindInvalidTransition)
	assert.Equal(t, 0, store.VehicleCount())

	_, err = svc.Promote(context.Background(), admin, "CSG-MISSING")
	requireKind(t, err, apperr.KindNotFound)
}

func TestService_Promote_Denied(t *testing.T) {
	svc, store, _ := newTestService(t)
	c := submitValid(t, svc)
	approve(t, svc, c.ID)

	_, err := svc.Promote(context.Background(), client, c.ID)
	requireKind(t, err, apperr.KindAuthorization)
	assert.Equal(t, 0, store.VehicleCount())
}

func TestService_Promote_StorageFailureRollsBack(t *testing.T) {
	svc, store, _ := newTestService(t)
	c := submitValid(t, svc)
	approve(t, svc, c.ID)

	store.Fail["UpdateConsignment"] = errors.New("write concern timeout")
	_, err := svc.Promote(context.Background(), admin, c.ID)
	requireKind(t, err, apperr.KindStorage)
	assert.Equal(t, 0, store.VehicleCount())

	delete(store.Fail, "UpdateConsignment")
	got, err := svc.Get(context.Background(), admin, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConsignmentApproved, got.Status)
	assert.Empty(t, got.VehicleID)

	v, err := svc.Promote(context.Background(), admin, c.ID)
	require.NoError(t, err)
	assert.Equal(t, PlateFor(c.ID), v.Plate)
}

func TestService_Promote_PlateTakenByAnotherVehicle(t *testing.T) {
	svc, store, _ := newTestService(t)
	c := submitValid(t, svc)
	approve(t, svc, c.ID)

	foreign := models.FleetVehicle{Plate: PlateFor(c.ID), ConsignmentID: "CSG-OTHER"}
	require.NoError(t, store.Vehicles().InsertVehicle(context.Background(), &foreign))

	_, err := svc.Promote(context.Background(), admin, c.ID)
	requireKind(t, err, apperr.KindConflict)
}

func TestService_Transition_ToActivePromotes(t *testing.T) {
	svc, store, _ := newTestService(t)
	c := submitValid(t, svc)
	approve(t, svc, c.ID)

	got, err := svc.Transition(context.Background(), admin, c.ID, TransitionRequest{Status: models.ConsignmentActive})
	require.NoError(t, err)
	assert.Equal(t, models.ConsignmentActive, got.Status)
	assert.NotEmpty(t, got.VehicleID)
	assert.Equal(t, 1, store.VehicleCount())

	done, err := svc.Transition(context.Background(), manager, c.ID, TransitionRequest{Status: models.ConsignmentCompleted})
	require.NoError(t, err)
	assert.Equal(t, models.ConsignmentCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	_, err = svc.Transition(context.Background(), admin, c.ID, TransitionRequest{Status: models.ConsignmentActive})
	requireKind(t, err, apperr.KindInvalidTransition)
}
