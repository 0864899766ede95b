package account

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-01T09:30:00Z", time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"2026-03-01T09:30:00+02:00", time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)},
		{"2026-03-01T09:30:00", time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"2026-03-01T09:30:00.5", time.Date(2026, 3, 1, 9, 30, 0, 500000000, time.UTC)},
		{"2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got.Time), "got %s", got.Time)
		})
	}

	_, err := ParseTime("yesterday")
	assert.Error(t, err)
}

func TestTimeJSON(t *testing.T) {
	var v struct {
		At *Time `json:"at"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"at":null}`), &v))
	assert.Nil(t, v.At)

	var o Order
	require.NoError(t, json.Unmarshal([]byte(`{"orderDate":""}`), &o))
	assert.True(t, o.OrderDate.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"orderDate":42}`), &o))

	data, err := json.Marshal(Time{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestProfileClone(t *testing.T) {
	name := "Ada"
	rewards := 1
	p := &Profile{ID: "c-1", FirstName: &name, PendingRewards: &rewards}

	c := p.Clone()
	*c.FirstName = "Grace"
	*c.PendingRewards = 5

	assert.Equal(t, "Ada", *p.FirstName)
	assert.Equal(t, 1, *p.PendingRewards)

	var nilProfile *Profile
	assert.Nil(t, nilProfile.Clone())
}

func TestDisplayName(t *testing.T) {
	first, last := "Ada", "Lovelace"
	assert.Equal(t, "Ada Lovelace", Profile{FirstName: &first, LastName: &last}.DisplayName())
	assert.Equal(t, "Lovelace", Profile{LastName: &last}.DisplayName())
	assert.Equal(t, "5551234567", Profile{Phone: "5551234567"}.DisplayName())
}

func TestUpdateFromProfile(t *testing.T) {
	email := "ada@example.com"
	u := UpdateFromProfile(&Profile{Email: &email})
	require.NotNil(t, u.Email)
	assert.Equal(t, email, *u.Email)
	assert.Nil(t, u.FirstName)

	*u.Email = "other@example.com"
	assert.Equal(t, "ada@example.com", email)
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "15551234567", DigitsOnly("+1 (555) 123-4567"))
	assert.Empty(t, DigitsOnly("abc"))
}
