package auth

import "strings"

// RegisterInput is a business/client account registration request.
type RegisterInput struct {
	Email                string
	Password             string
	ConfirmPassword      string
	BusinessName         string
	OwnerName            string
	Address              string
	PanVatNo             string
	ContactNo            string
	BusinessType         string
	AgreeCompanyPolicies bool
	ReceiveNews          bool
}

// RegisterResult is the acknowledgement returned by the registration
// endpoint; the account stays pending until email verification completes.
type RegisterResult struct {
	Detail string `json:"detail"`
	Status bool   `json:"status"`
}

// ChangePasswordInput completes the password-reset flow using the reset token
// obtained from VerifyForgotPassword.
type ChangePasswordInput struct {
	NewPassword        string
	ConfirmNewPassword string
	ResetToken         string
}

// UpdateProfileInput is a partial profile update; zero-valued fields are
// omitted from the request.
type UpdateProfileInput struct {
	BusinessName string
	OwnerName    string
	Address      string
	PanVatNo     string
	ContactNo    string
	BusinessType string
	ProfileImage string
}

func (in UpdateProfileInput) payload() map[string]string {
	fields := map[string]string{
		"business_name": strings.TrimSpace(in.BusinessName),
		"username":      strings.TrimSpace(in.OwnerName),
		"address":       strings.TrimSpace(in.Address),
		"pan_vat_no":    strings.TrimSpace(in.PanVatNo),
		"contact_no":    strings.TrimSpace(in.ContactNo),
		"business_type": strings.TrimSpace(in.BusinessType),
		"profile_image": in.ProfileImage,
	}
	for key, value := range fields {
		if value == "" {
			delete(fields, key)
		}
	}
	return fields
}
