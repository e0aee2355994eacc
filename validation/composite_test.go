package validation

import (
	"strings"
	"testing"

	"github.com/arturoeanton/witness-runtime/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmergencyContact(t *testing.T) {
	r := ValidateEmergencyContact(ContactInput{
		Name:         "John O'Brien",
		Phone:        "+1 (555) 123-4567",
		Relationship: "Brother",
	})
	require.True(t, r.IsValid, r.Error)
	assert.Equal(t, "John O'Brien", r.Contact.Name)
	assert.Equal(t, "+1 (555) 123-4567", r.Contact.Phone)
	assert.Equal(t, "Brother", r.Contact.Relationship)

	r = ValidateEmergencyContact(ContactInput{
		Name:         "John O'Brien",
		Phone:        "abc",
		Relationship: "Brother",
	})
	assert.False(t, r.IsValid)
	assert.True(t, strings.HasPrefix(r.Error, "Phone:"), r.Error)
	assert.Equal(t, KindFormatError, r.Kind)
}

func TestValidateEmergencyContact_FirstFailureWins(t *testing.T) {
	r := ValidateEmergencyContact(ContactInput{Name: "", Phone: "abc", Relationship: strings.Repeat("x", 60)})
	assert.False(t, r.IsValid)
	assert.Equal(t, "Name is required", r.Error)
	assert.Equal(t, KindEmptyField, r.Kind)

	r = ValidateEmergencyContact(ContactInput{Name: "Ana", Phone: "5551234567", Relationship: strings.Repeat("x", 60)})
	assert.False(t, r.IsValid)
	assert.Equal(t, "Relationship must be 50 characters or less", r.Error)
	assert.Equal(t, 1, strings.Count(r.Error, "Relationship"))
	assert.Equal(t, KindTooLong, r.Kind)

	r = ValidateEmergencyContact(ContactInput{Name: "Ana", Phone: "5551234567", Email: "nope"})
	assert.False(t, r.IsValid)
	assert.Equal(t, "Email: Invalid email format", r.Error)
}

func TestValidateEmergencyContact_FieldNamedOnce(t *testing.T) {
	testCases := []struct {
		in    ContactInput
		field string
	}{
		{ContactInput{Name: " ", Phone: "5551234567"}, "Name"},
		{ContactInput{Name: "Ana", Phone: ""}, "Phone"},
		{ContactInput{Name: "Ana", Phone: "5551234567", Email: strings.Repeat("a", 260) + "@x.io"}, "Email"},
		{ContactInput{Name: "Ana", Phone: "5551234567", Relationship: "<b></b>"}, "Relationship"},
	}
	for _, tc := range testCases {
		r := ValidateEmergencyContact(tc.in)
		require.False(t, r.IsValid)
		assert.Equal(t, 1, strings.Count(r.Error, tc.field), r.Error)
	}
}

func TestValidateEmergencyContact_OptionalFields(t *testing.T) {
	r := ValidateEmergencyContact(ContactInput{Name: "Ana", Phone: "5551234567", Email: "Ana@Mail.com"})
	require.True(t, r.IsValid, r.Error)
	assert.Equal(t, "ana@mail.com", r.Contact.Email)
	assert.Equal(t, "", r.Contact.Relationship)
}

func TestValidateAlert(t *testing.T) {
	r := ValidateAlert(AlertInput{
		Message:  "Traffic stop <b>now</b>",
		Location: model.Location{Latitude: 40.7128, Longitude: -74.0060},
	})
	require.True(t, r.IsValid, r.Error)
	assert.Equal(t, "Traffic stop now", r.Alert.Message)

	r = ValidateAlert(AlertInput{Message: " ", Location: model.Location{}})
	assert.False(t, r.IsValid)
	assert.True(t, strings.HasPrefix(r.Error, "Message:"), r.Error)

	r = ValidateAlert(AlertInput{Message: "help", Location: model.Location{Latitude: -91}})
	assert.False(t, r.IsValid)
	assert.True(t, strings.HasPrefix(r.Error, "Location:"), r.Error)
	assert.Equal(t, KindOutOfRange, r.Kind)
}
