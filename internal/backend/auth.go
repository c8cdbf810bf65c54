package backend

import (
	"context"
	"encoding/json"

	"github.com/aduan-desa/portal-server/internal/models"
)

// LoginResult is the answer to an OTP verification or admin login.
type LoginResult struct {
	*Result
	Token   string
	Profile json.RawMessage
}

// RequestLoginOTP asks the API to send a login OTP to the resident's phone.
func (c *Client) RequestLoginOTP(ctx context.Context, req models.LoginOTPRequest) (*Result, error) {
	return c.postJSON(ctx, "", "auth/login-request-otp", req)
}

// VerifyLoginOTP exchanges an OTP for a token and the resident's profile.
func (c *Client) VerifyLoginOTP(ctx context.Context, username, phone, otp string) (*LoginResult, error) {
	res, err := c.postJSON(ctx, "", "auth/login-verify-otp", map[string]string{
		"username": username,
		"phone":    phone,
		"otp":      otp,
	})
	if err != nil {
		return nil, err
	}
	return decodeLogin(res, "user")
}

// Register creates a resident account.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*Result, error) {
	return c.postJSON(ctx, "", "auth/register", req)
}

// AdminLogin authenticates an administrator with email and password.
func (c *Client) AdminLogin(ctx context.Context, email, password string) (*LoginResult, error) {
	res, err := c.postJSON(ctx, "", "admin/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	return decodeLogin(res, "admin")
}

func decodeLogin(res *Result, profileField string) (*LoginResult, error) {
	out := &LoginResult{Result: res}
	if !res.Success {
		return out, nil
	}

	var body map[string]json.RawMessage
	if err := res.Decode(&body); err != nil {
		return nil, err
	}
	if raw, ok := body["token"]; ok {
		if err := json.Unmarshal(raw, &out.Token); err != nil {
			return nil, ErrBadResponse
		}
	}
	out.Profile = body[profileField]
	if out.Token == "" || len(out.Profile) == 0 || string(out.Profile) == "null" {
		return nil, ErrBadResponse
	}
	return out, nil
}

// Profile fetches the resident's own profile.
func (c *Client) Profile(ctx context.Context, bearer string) (*Result, error) {
	return c.getJSON(ctx, bearer, "user/profile", nil)
}

// UpdateProfile edits the resident's own profile.
func (c *Client) UpdateProfile(ctx context.Context, bearer string, req models.ProfileUpdate) (*Result, error) {
	return c.putJSON(ctx, bearer, "user/update-profile", nil, req)
}

// ChangeAdminPassword changes the administrator's password.
func (c *Client) ChangeAdminPassword(ctx context.Context, bearer string, req models.PasswordChange) (*Result, error) {
	return c.postJSON(ctx, bearer, "admin/change-password", map[string]string{
		"current_password": req.CurrentPassword,
		"new_password":     req.NewPassword,
	})
}
