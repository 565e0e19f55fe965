package licensing

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
}

// RegisterValidations adds the license_key, product and plan tags to v
func RegisterValidations(v *validator.Validate) error {
	return errors.Join(
		v.RegisterValidation("license_key", func(fl validator.FieldLevel) bool {
			_, err := licensing.ParseLicenseKey(fl.Field().String())
			return err == nil
		}),
		v.RegisterValidation("product", func(fl validator.FieldLevel) bool {
			_, err := licensing.ParseProduct(fl.Field().String())
			return err == nil
		}),
		v.RegisterValidation("plan", func(fl validator.FieldLevel) bool {
			_, err := licensing.ParsePlan(fl.Field().String())
			return err == nil
		}),
	)
}

// validateInput rejects malformed input before any store access
func validateInput(in any) error {
	if err := validate.Struct(in); err != nil {
		return shared.ErrInvalidInput.WithMessage("Input validation failed").WithCause(err)
	}
	return nil
}

// KeyInput identifies a (license, product) pair
type KeyInput struct {
	LicenseKey string `json:"license_key" validate:"required,license_key"`
	Product    string `json:"product" validate:"required,product"`
}

func (in KeyInput) parse() (licensing.LicenseKey, licensing.Product) {
	key, _ := licensing.ParseLicenseKey(in.LicenseKey)
	return key, licensing.Product(in.Product)
}

// ProvisionLicenseInput contains input for provisioning a license
type ProvisionLicenseInput struct {
	Email                  string   `json:"email" validate:"required,email,max=200"`
	Name                   string   `json:"name" validate:"required,max=200"`
	Plan                   string   `json:"plan" validate:"required,plan"`
	Products               []string `json:"products" validate:"omitempty,dive,product"`
	LegacyCredential       string   `json:"legacy_credential" validate:"omitempty,min=6,max=128,printascii"`
	ExternalSubscriptionID string   `json:"external_subscription_id" validate:"omitempty,max=100"`
	Activate               bool     `json:"activate"`
}

// ListLicensesInput contains filters for listing licenses
type ListLicensesInput struct {
	Page     int    `json:"page" validate:"omitempty,gte=1"`
	PageSize int    `json:"page_size" validate:"omitempty,gte=1,lte=100"`
	Status   string `json:"status" validate:"omitempty,oneof=pending active suspended expired revoked"`
	Plan     string `json:"plan" validate:"omitempty,plan"`
	Product  string `json:"product" validate:"omitempty,product"`
	Search   string `json:"search" validate:"omitempty,max=100"`
}
