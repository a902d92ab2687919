package transport

// API endpoint paths, relative to the configured base URL.
const (
	EndpointLogin                = "/api/system/auth/login/"
	EndpointGoogleLogin          = "/api/system/auth/google-login/"
	EndpointRegister             = "/api/system/auth/register/"
	EndpointLogout               = "/api/system/auth/logout/"
	EndpointForgotPassword       = "/api/system/auth/forgot-password/"
	EndpointVerifyEmail          = "/api/system/auth/verify-email/"
	EndpointVerifyForgotPassword = "/api/system/auth/verify-forgot-password/"
	EndpointResendOTP            = "/api/system/auth/resend-verification-code/"
	EndpointChangePassword       = "/api/system/auth/change-password/"
	EndpointWhoAmI               = "/api/system/auth/whoami/"
	EndpointCheckEmail           = "/api/system/auth/check-email-exists/"
	EndpointUpdateProfile        = "/api/system/auth/update-profile/"

	EndpointTokenRefresh = "/api/token/refresh/"

	EndpointTrainerRegister      = "/api/system/trainer/register/"
	EndpointTrainerProfile       = "/api/system/trainer/profile/"
	EndpointTrainerUpdateProfile = "/api/system/trainer/update-profile/"
)
