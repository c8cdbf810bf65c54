package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aduan-desa/portal-server/internal/models"
)

func TestValidPhone(t *testing.T) {
	assert.True(t, ValidPhone("0812345678"))
	assert.True(t, ValidPhone("0812345678901"))
	assert.False(t, ValidPhone("1234567890"), "must start with 08")
	assert.False(t, ValidPhone("08123"), "too short")
	assert.False(t, ValidPhone("0812abc45"), "non-digits")
	assert.False(t, ValidPhone("08123456789012"), "too long")
	assert.False(t, ValidPhone(""))
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	v := New()

	err := v.Struct(models.RegisterRequest{Username: "ab", Phone: "12345"})
	require.Error(t, err)

	fields, ok := err.(FieldErrors)
	require.True(t, ok)
	assert.Equal(t, "minimal 3 karakter", fields["username"])
	assert.Contains(t, fields["phone"], "08")
	assert.Equal(t, "wajib diisi", fields["address"])
}

func TestStructAcceptsValidInput(t *testing.T) {
	v := New()
	assert.NoError(t, v.Struct(models.LoginOTPRequest{Username: "siti", Phone: "081234567890"}))

	lat, lng := -7.25, 112.75
	assert.NoError(t, v.Struct(models.ComplaintInput{
		CategoryID:  "2",
		Title:       "Lampu jalan mati",
		Description: "Lampu di depan balai desa mati sejak minggu lalu",
		Location:    "Balai desa",
		Priority:    "sedang",
		Latitude:    &lat,
		Longitude:   &lng,
	}))
}

func TestPasswordConfirmation(t *testing.T) {
	v := New()

	err := v.Struct(models.PasswordChange{CurrentPassword: "lama123", NewPassword: "12345", ConfirmPassword: "12345"})
	fields := err.(FieldErrors)
	assert.Equal(t, "minimal 6 karakter", fields["new_password"])

	err = v.Struct(models.PasswordChange{CurrentPassword: "lama123", NewPassword: "rahasia1", ConfirmPassword: "rahasia2"})
	fields = err.(FieldErrors)
	assert.Equal(t, "konfirmasi tidak cocok", fields["confirm_password"])

	assert.NoError(t, v.Struct(models.PasswordChange{CurrentPassword: "lama123", NewPassword: "rahasia1", ConfirmPassword: "rahasia1"}))
}

func TestComplaintPriority(t *testing.T) {
	err := New().Struct(models.ComplaintInput{
		CategoryID:  "1",
		Title:       "Sampah menumpuk",
		Description: "Sampah belum diangkut dua minggu",
		Location:    "Pasar",
		Priority:    "darurat",
	})
	fields := err.(FieldErrors)
	assert.Equal(t, "pilihan tidak valid", fields["priority"])
}
