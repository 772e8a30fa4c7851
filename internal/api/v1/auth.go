package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/auditdesk/internal/auth"
	"github.com/gosuda/auditdesk/internal/domain"
)

type LoginInput struct {
	Body struct {
		Email    string `json:"email" minLength:"3" maxLength:"255" doc:"User email"`
		Password string `json:"password" minLength:"1" maxLength:"128" doc:"Password"` //nolint:gosec // G117: login credential DTO
	}
}

type LoginOutput struct {
	Body struct {
		AccessToken  string `json:"access_token"`  //nolint:gosec // G117: auth response DTO
		RefreshToken string `json:"refresh_token"` //nolint:gosec // G117: auth response DTO
	}
}

type RefreshInput struct {
	Body struct {
		RefreshToken string `json:"refresh_token" minLength:"1" doc:"Refresh token"` //nolint:gosec // G117: token refresh DTO
	}
}

type RefreshOutput struct {
	Body struct {
		AccessToken string `json:"access_token"` //nolint:gosec // G117: auth response DTO
	}
}

type CreateUserInput struct {
	Body struct {
		Email    string `json:"email" minLength:"3" maxLength:"255" doc:"User email"`
		Password string `json:"password" minLength:"8" maxLength:"128" doc:"Password"` //nolint:gosec // G117: login credential DTO
		Name     string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
		Role     string `json:"role" enum:"admin,manager,outlet" doc:"User role"`
		OutletID *int64 `json:"outlet_id,omitempty" doc:"Required for outlet users"`
		Verified bool   `json:"verified,omitempty" doc:"Mark the email as verified"`
	}
}

type CreateUserOutput struct {
	Body *domain.User
}

// RegisterAuthRoutes registers the unauthenticated token endpoints.
func RegisterAuthRoutes(api huma.API, authSvc AuthService) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Login with email and password",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
		accessToken, refreshToken, err := authSvc.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return nil, huma.Error401Unauthorized("invalid email or password")
			}
			return nil, huma.Error500InternalServerError("login failed", err)
		}

		out := &LoginOutput{}
		out.Body.AccessToken = accessToken
		out.Body.RefreshToken = refreshToken
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-token",
		Method:      http.MethodPost,
		Path:        "/auth/refresh",
		Summary:     "Refresh access token",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *RefreshInput) (*RefreshOutput, error) {
		accessToken, err := authSvc.RefreshToken(ctx, input.Body.RefreshToken)
		if err != nil {
			return nil, huma.Error401Unauthorized("invalid or expired refresh token")
		}

		out := &RefreshOutput{}
		out.Body.AccessToken = accessToken
		return out, nil
	})
}

// RegisterUserRoutes registers admin user management.
func RegisterUserRoutes(api huma.API, d *Deps, authSvc AuthService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/admin/users",
		Summary:       "Create a user",
		Tags:          []string{"Users"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateUserInput) (*CreateUserOutput, error) {
		user, err := authSvc.Register(ctx, auth.NewUser{
			Email:    input.Body.Email,
			Password: input.Body.Password,
			Name:     input.Body.Name,
			Role:     input.Body.Role,
			OutletID: input.Body.OutletID,
			Verified: input.Body.Verified,
		})
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrUserAlreadyExists):
				return nil, huma.Error409Conflict("user already exists")
			case errors.Is(err, auth.ErrInvalidRole):
				return nil, huma.Error422UnprocessableEntity("validation failed", &huma.ErrorDetail{
					Message:  "Outlet users need an outlet_id",
					Location: "body.outlet_id",
				})
			default:
				return nil, huma.Error500InternalServerError("failed to create user", err)
			}
		}

		user.PasswordHash = ""

		d.record(ctx, fmt.Sprintf("User %s was created", user.Email))
		if user.OutletID != nil {
			d.record(ctx, fmt.Sprintf("User %s was assigned to outlet #%d", user.Email, *user.OutletID))
		}

		return &CreateUserOutput{Body: user}, nil
	})
}
