package consignment

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ukydev/fleet-rental/internal/apperr"
	"github.com/ukydev/fleet-rental/internal/models"
)

const (
	minModelYear   = 1990
	minPhoneLength = 10
	maxPhotos      = 20
)

var phonePattern = regexp.MustCompile(`^[0-9\s()+\-]+$`)

// Text is a form value that may arrive as a JSON string or a JSON number.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(data)
	return nil
}

func (t Text) String() string {
	return string(t)
}

// SubmitRequest is the public consignment submission form.
type SubmitRequest struct {
	OwnerName   Text     `json:"ownerName" validate:"required"`
	OwnerEmail  Text     `json:"ownerEmail" validate:"required,email"`
	OwnerPhone  Text     `json:"ownerPhone" validate:"required,phone"`
	Brand       Text     `json:"brand" validate:"required"`
	Model       Text     `json:"model" validate:"required"`
	Year        Text     `json:"year" validate:"required,modelyear"`
	Category    Text     `json:"category" validate:"required"`
	Capacity    Text     `json:"capacity" validate:"omitempty,count"`
	Condition   Text     `json:"condition" validate:"required"`
	Mileage     Text     `json:"mileage" validate:"omitempty,count"`
	Price       Text     `json:"price" validate:"omitempty,amount"`
	DailyRate   Text     `json:"dailyRate" validate:"required,rate"`
	Description string   `json:"description"`
	Photos      []string `json:"photos" validate:"max=20,dive,required"`
	AcceptTerms bool     `json:"acceptTerms" validate:"eq=true"`
}

func (r *SubmitRequest) trim() {
	for _, field := range []*Text{
		&r.OwnerName, &r.OwnerEmail, &r.OwnerPhone, &r.Brand, &r.Model, &r.Year,
		&r.Category, &r.Capacity, &r.Condition, &r.Mileage, &r.Price, &r.DailyRate,
	} {
		*field = Text(strings.TrimSpace(string(*field)))
	}
	r.Description = strings.TrimSpace(r.Description)
}

// Validator checks submissions. The accepted model year range moves with
// the clock.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewValidator builds a Validator using now as the clock.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := &Validator{validate: validator.New(validator.WithRequiredStructEnabled()), now: now}

	v.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(s) >= minPhoneLength && phonePattern.MatchString(s)
	})
	_ = v.validate.RegisterValidation("modelyear", func(fl validator.FieldLevel) bool {
		year, err := strconv.Atoi(fl.Field().String())
		return err == nil && year >= minModelYear && year <= v.maxYear()
	})
	_ = v.validate.RegisterValidation("rate", func(fl validator.FieldLevel) bool {
		rate, err := parseAmount(fl.Field().String())
		return err == nil && rate > 0
	})
	_ = v.validate.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := parseAmount(fl.Field().String())
		return err == nil
	})
	_ = v.validate.RegisterValidation("count", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Field().String())
		return err == nil && n >= 0
	})
	return v
}

func (v *Validator) maxYear() int {
	return v.now().Year() + 1
}

// Validate checks every rule and either returns the consignment described by
// req, without id or status, or a validation error naming each bad field.
func (v *Validator) Validate(req SubmitRequest) (*models.Consignment, error) {
	req.trim()
	if err := v.validate.Struct(req); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, apperr.BadRequest(err.Error())
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			if _, seen := fields[fe.Field()]; !seen {
				fields[fe.Field()] = v.message(fe)
			}
		}
		return nil, apperr.Validation(fields)
	}

	// The tags above guarantee these parse.
	year, _ := strconv.Atoi(req.Year.String())
	daily, _ := parseAmount(req.DailyRate.String())
	capacity, _ := atoiOrZero(req.Capacity.String())
	mileage, _ := atoiOrZero(req.Mileage.String())
	price, _ := parseAmountOrZero(req.Price.String())

	photos := make([]string, len(req.Photos))
	copy(photos, req.Photos)

	return &models.Consignment{
		Owner: models.OwnerContact{
			Name:  req.OwnerName.String(),
			Email: strings.ToLower(req.OwnerEmail.String()),
			Phone: req.OwnerPhone.String(),
		},
		Vehicle: models.VehicleDescriptor{
			Brand:       req.Brand.String(),
			Model:       req.Model.String(),
			Year:        year,
			Category:    req.Category.String(),
			Capacity:    capacity,
			Condition:   req.Condition.String(),
			Mileage:     mileage,
			Price:       price,
			DailyRate:   daily,
			Description: req.Description,
			Photos:      photos,
		},
	}, nil
}

func (v *Validator) message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "phone":
		return fmt.Sprintf("must be at least %d characters of digits, spaces, parentheses, hyphens or plus signs", minPhoneLength)
	case "modelyear":
		return fmt.Sprintf("must be a year between %d and %d", minModelYear, v.maxYear())
	case "rate":
		return "must be a positive number"
	case "amount":
		return "must be a non-negative number"
	case "count":
		return "must be a non-negative whole number"
	case "eq":
		return "must be accepted"
	case "max":
		return fmt.Sprintf("must contain at most %d items", maxPhotos)
	default:
		return "is invalid"
	}
}

func parseAmount(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return f, nil
}

func parseAmountOrZero(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return parseAmount(s)
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
