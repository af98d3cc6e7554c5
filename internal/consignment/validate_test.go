package consignment

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-rental/internal/apperr"
)

var fixedNow = time.Date(2026, 6, 15, 9, 30, 0, 0, time.UTC)

func validRequest() SubmitRequest {
	return SubmitRequest{
		OwnerName:   "Ana Pérez",
		OwnerEmail:  "Ana@Example.com",
		OwnerPhone:  "+52 (55) 1234-5678",
		Brand:       "Toyota",
		Model:       "Hilux",
		Year:        "2021",
		Category:    "pickup",
		Capacity:    "5",
		Condition:   "excellent",
		Mileage:     "42000",
		Price:       "450000",
		DailyRate:   "300",
		Description: "  Well kept  ",
		Photos:      []string{"https://img.example.com/1.jpg"},
		AcceptTerms: true,
	}
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperr.KindValidation, appErr.Kind)
	return appErr.Fields
}

func TestValidator_Valid(t *testing.T) {
	v := NewValidator(func() time.Time { return fixedNow })

	c, err := v.Validate(validRequest())
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", c.Owner.Email)
	assert.Equal(t, 2021, c.Vehicle.Year)
	assert.Equal(t, 300.0, c.Vehicle.DailyRate)
	assert.Equal(t, 5, c.Vehicle.Capacity)
	assert.Equal(t, 42000, c.Vehicle.Mileage)
	assert.Equal(t, "Well kept", c.Vehicle.Description)
	assert.Len(t, c.Vehicle.Photos, 1)
	assert.Empty(t, c.ID)
	assert.Empty(t, c.Status)
}

func TestValidator_Year(t *testing.T) {
	v := NewValidator(func() time.Time { return fixedNow })

	tests := []struct {
		year  Text
		valid bool
	}{
		{"1899", false},
		{"1989", false},
		{"1990", true},
		{"2026", true},
		{"2027", true},
		{"2028", false},
		{"twenty", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.year), func(t *testing.T) {
			req := validRequest()
			req.Year = tt.year
			_, err := v.Validate(req)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.Contains(t, fieldErrors(t, err), "year")
		})
	}
}

func TestValidator_DailyRate(t *testing.T) {
	v := NewValidator(func() time.Time { return fixedNow })

	for _, rate := range []Text{"0", "-10", "abc", "", "NaN"} {
		req := validRequest()
		req.DailyRate = rate
		_, err := v.Validate(req)
		assert.Contains(t, fieldErrors(t, err), "dailyRate", "rate %q", rate)
	}

	req := validRequest()
	req.DailyRate = "150.50"
	c, err := v.Validate(req)
	require.NoError(t, err)
	assert.Equal(t, 150.50, c.Vehicle.DailyRate)
}

func TestValidator_ReportsEveryField(t *testing.T) {
	v := NewValidator(func() time.Time { return fixedNow })

	req := validRequest()
	req.OwnerEmail = "not-an-email"
	req.OwnerPhone = "12ab"
	req.Brand = "   "
	req.AcceptTerms = false

	fields := fieldErrors(t, func() error { _, err := v.Validate(req); return err }())
	assert.Contains(t, fields, "ownerEmail")
	assert.Contains(t, fields, "ownerPhone")
	assert.Contains(t, fields, "brand")
	assert.Equal(t, "must be accepted", fields["acceptTerms"])
}

func TestValidator_Phone(t *testing.T) {
	v := NewValidator(func() time.Time { return fixedNow })

	for phone, valid := range map[Text]bool{
		"5512345678":       true,
		"+1 (555) 123-456": true,
		"555-1234":         false,
		"5512345678x":      false,
	} {
		req := validRequest()
		req.OwnerPhone = phone
		_, err := v.Validate(req)
		if valid {
			assert.NoError(t, err, "phone %q", phone)
		} else {
			assert.Contains(t, fieldErrors(t, err), "ownerPhone", "phone %q", phone)
		}
	}
}

func TestValidator_TooManyPhotos(t *testing.T) {
	v := NewValidator(func() time.Time { return fixedNow })

	req := validRequest()
	req.Photos = make([]string, maxPhotos+1)
	for i := range req.Photos {
		req.Photos[i] = "https://img.example.com/p.jpg"
	}
	assert.Contains(t, fieldErrors(t, func() error { _, err := v.Validate(req); return err }()), "photos")
}

func TestSubmitRequest_AcceptsNumbers(t *testing.T) {
	body := `{"ownerName":"Ana","ownerEmail":"ana@example.com","ownerPhone":"5512345678",
		"brand":"Ford","model":"Ranger","year":2022,"category":"pickup","condition":"good",
		"dailyRate":150.5,"capacity":4,"acceptTerms":true}`

	var req SubmitRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	assert.Equal(t, Text("2022"), req.Year)
	assert.Equal(t, Text("150.5"), req.DailyRate)

	c, err := NewValidator(func() time.Time { return fixedNow }).Validate(req)
	require.NoError(t, err)
	assert.Equal(t, 150.5, c.Vehicle.DailyRate)
	assert.Equal(t, 4, c.Vehicle.Capacity)
}
