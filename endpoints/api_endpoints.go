package endpoints

import (
	"net/http"
	"net/url"
	"time"

	"github.com/arturoeanton/witness-runtime/contacts"
	"github.com/arturoeanton/witness-runtime/literals"
	"github.com/arturoeanton/witness-runtime/model"
	"github.com/arturoeanton/witness-runtime/notify"
	"github.com/arturoeanton/witness-runtime/validation"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// OperationAlert prefixes the per-owner alert rate limit identifier
const OperationAlert = "alerts:"

// AlertRequest is the body of POST /api/v1/alerts
type AlertRequest struct {
	Message      string         `json:"message"`
	Location     model.Location `json:"location"`
	SenderName   string         `json:"sender_name,omitempty"`
	RecordingURL string         `json:"recording_url,omitempty"`
}

// AlertResponse reports the stored alert and its deliveries
type AlertResponse struct {
	Alert  model.Alert           `json:"alert"`
	Report notify.DispatchReport `json:"report"`
}

// RegisterAPIEndpoints registers the /api/v1 routes
func RegisterAPIEndpoints(e *echo.Echo, deps Dependencies) {
	api := e.Group("/api/v1")

	api.POST("/locations/validate", handleValidateLocation(deps))

	if deps.Contacts == nil {
		deps.Log.Warn("Contacts service not configured, contact and alert routes disabled", nil)
		return
	}
	api.POST("/contacts", handleCreateContact(deps))
	api.GET("/contacts", handleListContacts(deps))
	api.DELETE("/contacts/:id", handleDeleteContact(deps))

	if deps.Notifier == nil {
		deps.Log.Warn("Notifier not configured, alert route disabled", nil)
		return
	}
	api.POST("/alerts", handleAlert(deps))
}

func bindBody(c echo.Context, v any) bool {
	if err := c.Bind(v); err != nil {
		_ = c.JSON(http.StatusBadRequest, errorBody{Error: literals.INVALID_BODY, Kind: literals.KIND_INVALID_BODY})
		return false
	}
	return true
}

func rejectInvalid(c echo.Context, deps Dependencies, result validation.Result) error {
	deps.Metrics.validationFailures.WithLabelValues(string(result.Kind)).Inc()
	return c.JSON(http.StatusBadRequest, errorBody{Error: result.Error, Kind: string(result.Kind)})
}

func handleCreateContact(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		var input validation.ContactInput
		if !bindBody(c, &input) {
			return nil
		}

		contact, err := deps.Contacts.Create(c.Request().Context(), owner(c), input)
		if CheckError(c, deps, err) {
			return nil
		}

		deps.Metrics.contactsCreated.Inc()
		return c.JSON(http.StatusCreated, contact)
	}
}

func handleListContacts(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := deps.Contacts.List(c.Request().Context(), owner(c))
		if CheckError(c, deps, err) {
			return nil
		}
		return c.JSON(http.StatusOK, echo.Map{"contacts": list})
	}
}

func handleDeleteContact(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := deps.Contacts.Delete(c.Request().Context(), owner(c), c.Param("id"))
		if CheckError(c, deps, err) {
			return nil
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func handleValidateLocation(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		var loc model.Location
		if !bindBody(c, &loc) {
			return nil
		}

		result := validation.ValidateLocation(loc)
		if !result.IsValid {
			return rejectInvalid(c, deps, result.Result)
		}
		return c.JSON(http.StatusOK, result)
	}
}

func handleAlert(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		ownerID := owner(c)
		if ownerID == "" {
			CheckError(c, deps, contacts.ErrMissingOwner)
			return nil
		}

		var req AlertRequest
		if !bindBody(c, &req) {
			return nil
		}

		result := validation.ValidateAlert(validation.AlertInput{Message: req.Message, Location: req.Location})
		if !result.IsValid {
			return rejectInvalid(c, deps, result.Result)
		}

		sender := ""
		if req.SenderName != "" {
			name := validation.ValidateName(req.SenderName)
			if !name.IsValid {
				name.Error = "Sender: " + name.Error
				return rejectInvalid(c, deps, name)
			}
			sender = name.SanitizedValue
		}
		if req.RecordingURL != "" && !isHTTPURL(req.RecordingURL) {
			return rejectInvalid(c, deps, validation.Result{
				Error: "Recording: Invalid URL format",
				Kind:  validation.KindFormatError,
			})
		}

		limit := deps.Limiter.CheckLimit(OperationAlert + ownerID)
		if !limit.Allowed {
			deps.Log.Warn("Alert rate limited", map[string]any{"owner_id": ownerID})
			rejectRateLimited(c, deps, limit)
			return nil
		}

		list, err := deps.Contacts.List(c.Request().Context(), ownerID)
		if CheckError(c, deps, err) {
			return nil
		}
		if len(list) == 0 {
			return c.JSON(http.StatusUnprocessableEntity, errorBody{Error: literals.NO_CONTACTS, Kind: literals.KIND_NO_CONTACTS})
		}

		alert := model.Alert{
			ID:           uuid.NewString(),
			OwnerID:      ownerID,
			SenderName:   sender,
			Message:      result.Alert.Message,
			Location:     result.Alert.Location,
			RecordingURL: req.RecordingURL,
			CreatedAt:    time.Now().UTC(),
		}

		report := deps.Notifier.Dispatch(c.Request().Context(), alert, list)
		deps.Metrics.ObserveDispatch(report)

		return c.JSON(http.StatusAccepted, AlertResponse{Alert: alert, Report: report})
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
