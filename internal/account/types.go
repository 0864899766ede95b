package account

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Profile is the signed-in customer (CustomerDetailDto on the wire).
// Nullable fields are pointers so an explicit null survives decoding.
type Profile struct {
	ID             string  `json:"id"`
	Phone          string  `json:"phone"`
	FirstName      *string `json:"firstName"`
	LastName       *string `json:"lastName"`
	Email          *string `json:"email"`
	BirthDate      *string `json:"birthDate"`
	CurrentCoffees int     `json:"currentCoffees"`
	PendingRewards *int    `json:"pendingRewards,omitempty"`
	TotalCoffees   *int    `json:"totalCoffees,omitempty"`
	LastOrderDate  *Time   `json:"lastOrderDate"`
}

// DisplayName returns "First Last", or the phone number when neither is set.
func (p Profile) DisplayName() string {
	name := strings.TrimSpace(deref(p.FirstName) + " " + deref(p.LastName))
	if name == "" {
		return p.Phone
	}
	return name
}

// Clone returns a deep copy so holders never share pointers.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.FirstName = cloneString(p.FirstName)
	c.LastName = cloneString(p.LastName)
	c.Email = cloneString(p.Email)
	c.BirthDate = cloneString(p.BirthDate)
	c.PendingRewards = cloneInt(p.PendingRewards)
	c.TotalCoffees = cloneInt(p.TotalCoffees)
	if p.LastOrderDate != nil {
		t := *p.LastOrderDate
		c.LastOrderDate = &t
	}
	return &c
}

// Order is one purchase (OrderListDto on the wire).
type Order struct {
	ID           string `json:"id"`
	OrderDate    Time   `json:"orderDate"`
	CoffeeCount  int    `json:"coffeeCount"`
	EarnedReward int    `json:"earnedReward"`
}

// QRCode is the signed in-store scan payload (CustomerQrDto on the wire).
type QRCode struct {
	CustomerID string `json:"customerId"`
	Timestamp  Time   `json:"timestamp"`
	Hash       string `json:"hash"`
}

// Payload is the string encoded into the scannable code.
func (q QRCode) Payload() string {
	return fmt.Sprintf("%s|%s|%s", q.CustomerID, q.Timestamp.Format(time.RFC3339), q.Hash)
}

// CustomerUpdate is the PUT body. Every field is always serialised; nil is
// sent as null, which clears the field on the server.
type CustomerUpdate struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	BirthDate *string `json:"birthDate"`
	Email     *string `json:"email"`
}

// UpdateFromProfile seeds an update with the profile's current values.
func UpdateFromProfile(p *Profile) CustomerUpdate {
	if p == nil {
		return CustomerUpdate{}
	}
	return CustomerUpdate{
		FirstName: cloneString(p.FirstName),
		LastName:  cloneString(p.LastName),
		BirthDate: cloneString(p.BirthDate),
		Email:     cloneString(p.Email),
	}
}

// Optional maps blank input to nil (an explicit clear).
func Optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Time decodes both RFC 3339 and zone-less ISO timestamps. Zone-less values
// are taken as UTC.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses any of the layouts the backend emits.
func ParseTime(s string) (Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Time{t}, nil
		}
	}
	return Time{}, fmt.Errorf("account: unrecognised timestamp %q", s)
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = Time{}
		return nil
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
