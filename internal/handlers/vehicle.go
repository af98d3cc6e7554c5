package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-rental/internal/apperr"
	"github.com/ukydev/fleet-rental/internal/consignment"
	"github.com/ukydev/fleet-rental/internal/db"
	"github.com/ukydev/fleet-rental/internal/httpx"
	"github.com/ukydev/fleet-rental/internal/models"
)

// VehicleHandler manages fleet vehicles added directly by staff. Access is
// enforced by the route guard.
type VehicleHandler struct {
	vehicles db.VehicleCollection
	validate *validator.Validate
	log      *logrus.Entry
}

// NewVehicleHandler creates a vehicle handler.
func NewVehicleHandler(vehicles db.VehicleCollection, log *logrus.Entry) *VehicleHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	})
	return &VehicleHandler{vehicles: vehicles, validate: v, log: log.WithField("component", "vehicle_handler")}
}

// Create handles POST /api/vehicles.
func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateVehicleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	req.Plate = strings.ToUpper(strings.TrimSpace(req.Plate))

	if err := h.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			httpx.WriteError(w, apperr.BadRequest(err.Error()))
			return
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = "failed " + fe.Tag() + " check"
		}
		httpx.WriteError(w, apperr.Validation(fields))
		return
	}

	weekly, monthly := req.WeeklyRate, req.MonthlyRate
	if weekly == 0 || monthly == 0 {
		defWeekly, defMonthly := consignment.RatesFromDaily(req.DailyRate)
		if weekly == 0 {
			weekly = defWeekly
		}
		if monthly == 0 {
			monthly = defMonthly
		}
	}

	now := time.Now().UTC()
	vehicle := &models.FleetVehicle{
		Brand:          strings.TrimSpace(req.Brand),
		Model:          strings.TrimSpace(req.Model),
		Year:           req.Year,
		Plate:          req.Plate,
		Category:       req.Category,
		Capacity:       req.Capacity,
		DailyRate:      req.DailyRate,
		WeeklyRate:     weekly,
		MonthlyRate:    monthly,
		Status:         models.VehicleAvailable,
		Source:         models.SourceOwned,
		ApprovalStatus: models.ApprovalApproved,
		Description:    req.Description,
		Photos:         req.Photos,
		Features:       req.Features,
		Documents:      append([]string(nil), models.StandardDocuments...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if vehicle.Photos == nil {
		vehicle.Photos = []string{}
	}

	if err := h.vehicles.InsertVehicle(r.Context(), vehicle); err != nil {
		if errors.Is(err, db.ErrDuplicateKey) {
			httpx.WriteError(w, apperr.Conflict("plate already registered"))
			return
		}
		h.log.WithError(err).Error("Failed to insert vehicle")
		httpx.WriteError(w, apperr.Storage("insert vehicle", err))
		return
	}

	h.log.WithFields(logrus.Fields{"vehicle_id": vehicle.ID.Hex(), "plate": vehicle.Plate}).Info("Fleet vehicle created")
	httpx.WriteJSON(w, http.StatusCreated, vehicle)
}

// Get handles GET /api/vehicles/{id}.
func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	vehicle, err := h.vehicles.FindVehicleByID(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		httpx.WriteError(w, apperr.NotFound("vehicle"))
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("vehicle_id", id).Error("Failed to load vehicle")
		httpx.WriteError(w, apperr.Storage("find vehicle", err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, vehicle)
}

// Delete handles DELETE /api/vehicles/{id}.
func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.vehicles.DeleteVehicle(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		httpx.WriteError(w, apperr.NotFound("vehicle"))
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("vehicle_id", id).Error("Failed to delete vehicle")
		httpx.WriteError(w, apperr.Storage("delete vehicle", err))
		return
	}

	h.log.WithField("vehicle_id", id).Info("Fleet vehicle deleted")
	w.WriteHeader(http.StatusNoContent)
}
