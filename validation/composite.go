package validation

import "github.com/arturoeanton/witness-runtime/model"

// ContactInput is the raw emergency contact submitted by a user.
type ContactInput struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// ContactResult carries the sanitized contact when the input is valid.
type ContactResult struct {
	Result
	Contact ContactInput `json:"contact"`
}

// ValidateEmergencyContact validates name, phone, email (when given) and
// relationship (when given), in that order, and stops at the first failure.
func ValidateEmergencyContact(in ContactInput) ContactResult {
	name := ValidateName(in.Name)
	if !name.IsValid {
		return ContactResult{Result: prefixed(name, "Name")}
	}

	phone := ValidatePhoneNumber(in.Phone)
	if !phone.IsValid {
		return ContactResult{Result: prefixed(phone, "Phone")}
	}

	out := ContactInput{Name: name.SanitizedValue, Phone: phone.SanitizedValue}

	if in.Email != "" {
		email := ValidateEmail(in.Email)
		if !email.IsValid {
			return ContactResult{Result: prefixed(email, "Email")}
		}
		out.Email = email.SanitizedValue
	}

	if in.Relationship != "" {
		rel := ValidateRelationship(in.Relationship)
		if !rel.IsValid {
			return ContactResult{Result: prefixed(rel, "Relationship")}
		}
		out.Relationship = rel.SanitizedValue
	}

	return ContactResult{Result: valid(out.Name), Contact: out}
}

// AlertInput is the raw alert submitted when the user triggers an emergency.
type AlertInput struct {
	Message  string         `json:"message"`
	Location model.Location `json:"location"`
}

// AlertResult carries the sanitized alert when the input is valid.
type AlertResult struct {
	Result
	Alert AlertInput `json:"alert"`
}

// ValidateAlert validates the message and then the location.
func ValidateAlert(in AlertInput) AlertResult {
	msg := ValidateTextDefault(in.Message)
	if !msg.IsValid {
		return AlertResult{Result: prefixed(msg, "Message")}
	}

	loc := ValidateLocation(in.Location)
	if !loc.IsValid {
		return AlertResult{Result: prefixed(loc.Result, "Location")}
	}

	return AlertResult{
		Result: valid(msg.SanitizedValue),
		Alert:  AlertInput{Message: msg.SanitizedValue, Location: loc.Location},
	}
}
