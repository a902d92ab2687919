// Package trainers covers the trainer side of the marketplace: registration
// with supporting documents and trainer profile maintenance. These endpoints
// accept multipart submissions because they carry file attachments.
package trainers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/fitsession/fitsession-go/pipeline"
	"github.com/fitsession/fitsession-go/transport"
	"github.com/fitsession/fitsession-go/users"
)

// Document is a file attachment: a certification scan, ID proof, or profile
// image.
type Document struct {
	Name        string
	ContentType string
	Content     []byte
}

// RegisterInput is a trainer registration request.
type RegisterInput struct {
	Email             string
	Password          string
	ConfirmPassword   string
	FullName          string
	Bio               string
	ContactNo         string
	YearsOfExperience int
	PricingPerSession float64
	SessionType       string

	ExpertiseCategories    []string
	AvailabilityPreference map[string]any

	Certifications []Document
	IDProof        *Document
	ProfileImage   *Document
}

// RegisterResult is the acknowledgement from trainer registration.
type RegisterResult struct {
	Detail string `json:"detail"`
	Status bool   `json:"status"`
}

// Profile is the trainer-specific profile record.
type Profile struct {
	FullName            string   `json:"full_name,omitempty"`
	Bio                 string   `json:"bio,omitempty"`
	ContactNo           string   `json:"contact_no,omitempty"`
	YearsOfExperience   int      `json:"years_of_experience,omitempty"`
	PricingPerSession   float64  `json:"pricing_per_session,omitempty"`
	SessionType         string   `json:"session_type,omitempty"`
	ExpertiseCategories []string `json:"expertise_categories,omitempty"`
	ProfileImage        string   `json:"profile_image,omitempty"`
}

// UpdateInput is a partial trainer profile update; zero-valued fields are
// omitted. Numeric fields use pointers so zero is expressible.
type UpdateInput struct {
	FullName            string
	Bio                 string
	ContactNo           string
	YearsOfExperience   *int
	PricingPerSession   *float64
	SessionType         string
	ExpertiseCategories []string
	ProfileImage        *Document
}

// Service performs trainer operations through the request pipeline.
type Service struct {
	pipeline *pipeline.Client
}

// NewService creates a trainer service over the pipeline.
func NewService(pipe *pipeline.Client) (*Service, error) {
	if pipe == nil {
		return nil, errors.New("[trainers.NewService] pipeline is required")
	}
	return &Service{pipeline: pipe}, nil
}

// Register submits a trainer registration with its documents as one multipart
// request.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	form := &transport.Form{Fields: url.Values{}}
	form.Fields.Set("email", users.NormalizeEmail(input.Email))
	form.Fields.Set("password", strings.TrimSpace(input.Password))
	form.Fields.Set("confirm_password", strings.TrimSpace(input.ConfirmPassword))
	form.Fields.Set("full_name", strings.TrimSpace(input.FullName))
	form.Fields.Set("bio", strings.TrimSpace(input.Bio))
	form.Fields.Set("contact_no", strings.TrimSpace(input.ContactNo))
	form.Fields.Set("years_of_experience", strconv.Itoa(input.YearsOfExperience))
	form.Fields.Set("pricing_per_session", strconv.FormatFloat(input.PricingPerSession, 'f', -1, 64))
	form.Fields.Set("session_type", input.SessionType)
	form.Fields.Set("role", string(users.RoleTrainer))

	for _, category := range input.ExpertiseCategories {
		form.Fields.Add("expertise_categories[]", category)
	}
	if input.AvailabilityPreference != nil {
		encoded, err := json.Marshal(input.AvailabilityPreference)
		if err != nil {
			return nil, errors.Wrap(err, "[Service.Register] encode availability")
		}
		form.Fields.Set("availability_preference", string(encoded))
	}

	for i, cert := range input.Certifications {
		form.Files = append(form.Files, transport.FilePart{
			Field:       fmt.Sprintf("certifications[%d]", i),
			Filename:    cert.Name,
			ContentType: cert.ContentType,
			Content:     cert.Content,
		})
	}
	attachDocument(form, "id_proof", input.IDProof)
	attachDocument(form, "profile_image", input.ProfileImage)

	resp, err := s.pipeline.Do(ctx, transport.Request{
		Method: "POST",
		Path:   transport.EndpointTrainerRegister,
		Form:   form,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] register request")
	}
	var result RegisterResult
	if err := resp.Decode(&result); err != nil {
		return nil, errors.Wrap(err, "[Service.Register] decode response")
	}
	return &result, nil
}

// GetProfile fetches the trainer profile.
func (s *Service) GetProfile(ctx context.Context) (*Profile, error) {
	resp, err := s.pipeline.Do(ctx, transport.Request{
		Method: "GET",
		Path:   transport.EndpointTrainerProfile,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.GetProfile] request")
	}
	var profile Profile
	if err := resp.Decode(&profile); err != nil {
		return nil, errors.Wrap(err, "[Service.GetProfile] decode response")
	}
	return &profile, nil
}

// UpdateProfile sends a partial trainer profile update, with a new profile
// image attached when provided.
func (s *Service) UpdateProfile(ctx context.Context, input UpdateInput) (*Profile, error) {
	form := &transport.Form{Fields: url.Values{}}

	setIfPresent(form, "full_name", input.FullName)
	setIfPresent(form, "bio", input.Bio)
	setIfPresent(form, "contact_no", input.ContactNo)
	setIfPresent(form, "session_type", input.SessionType)
	if input.YearsOfExperience != nil {
		form.Fields.Set("years_of_experience", strconv.Itoa(*input.YearsOfExperience))
	}
	if input.PricingPerSession != nil {
		form.Fields.Set("pricing_per_session", strconv.FormatFloat(*input.PricingPerSession, 'f', -1, 64))
	}
	for _, category := range input.ExpertiseCategories {
		form.Fields.Add("expertise_categories[]", category)
	}
	attachDocument(form, "profile_image", input.ProfileImage)

	resp, err := s.pipeline.Do(ctx, transport.Request{
		Method: "PUT",
		Path:   transport.EndpointTrainerUpdateProfile,
		Form:   form,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.UpdateProfile] update request")
	}
	var profile Profile
	if err := resp.Decode(&profile); err != nil {
		return nil, errors.Wrap(err, "[Service.UpdateProfile] decode response")
	}
	return &profile, nil
}

func attachDocument(form *transport.Form, field string, doc *Document) {
	if doc == nil {
		return
	}
	form.Files = append(form.Files, transport.FilePart{
		Field:       field,
		Filename:    doc.Name,
		ContentType: doc.ContentType,
		Content:     doc.Content,
	})
}

func setIfPresent(form *transport.Form, field, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		form.Fields.Set(field, trimmed)
	}
}
