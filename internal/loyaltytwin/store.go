package loyaltytwin

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// RewardThreshold is the number of coffees per free coffee.
const RewardThreshold = 10

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrNotEnoughCoffees = errors.New("not enough coffees to redeem")
)

// Customer is the twin's record of one loyalty member.
type Customer struct {
	ID             string     `json:"id"`
	Phone          string     `json:"phone"`
	FirstName      *string    `json:"firstName"`
	LastName       *string    `json:"lastName"`
	Email          *string    `json:"email"`
	BirthDate      *string    `json:"birthDate"`
	CurrentCoffees int        `json:"currentCoffees"`
	TotalCoffees   int        `json:"totalCoffees"`
	LastOrderDate  *time.Time `json:"lastOrderDate"`
}

// Order is one recorded purchase.
type Order struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customerId"`
	OrderDate    time.Time `json:"orderDate"`
	CoffeeCount  int       `json:"coffeeCount"`
	EarnedReward int       `json:"earnedReward"`
}

// Device is a registered client installation.
type Device struct {
	DeviceID     string    `json:"deviceId"`
	Type         *string   `json:"type"`
	Name         *string   `json:"name"`
	Brand        *string   `json:"brand"`
	OS           *string   `json:"os"`
	OSVersion    *string   `json:"osVersion"`
	Model        *string   `json:"model"`
	IsSimulator  bool      `json:"isSimulator"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Feedback is one submitted message.
type Feedback struct {
	CustomerID string    `json:"customerId"`
	Subject    string    `json:"subject"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store holds all twin state in memory.
type Store struct {
	mu sync.RWMutex

	customers  map[string]*Customer
	byPhone    map[string]string
	codes      map[string]string
	orders     map[string][]Order
	devices    map[string]Device
	feedbacks  []Feedback
	refresh    map[string]string // refresh token id -> customer id, single use
	generation map[string]int    // customer id -> access token generation

	node *snowflake.Node
}

// NewStore creates an empty store. Customer ids are snowflakes from node.
func NewStore(node int64) (*Store, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, err
	}
	s := &Store{node: n}
	s.Reset()
	return s, nil
}

// Reset clears all state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = make(map[string]*Customer)
	s.byPhone = make(map[string]string)
	s.codes = make(map[string]string)
	s.orders = make(map[string][]Order)
	s.devices = make(map[string]Device)
	s.feedbacks = nil
	s.refresh = make(map[string]string)
	s.generation = make(map[string]int)
}

// SetCode records the pending verification code for phone.
func (s *Store) SetCode(phone, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[phone] = code
}

// Code returns the pending code for phone.
func (s *Store) Code(phone string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codes[phone]
	return c, ok
}

// ConsumeCode checks code for phone. On a match the code is spent and the
// customer is created if needed.
func (s *Store) ConsumeCode(phone, code string) (Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.codes[phone]
	if !ok || pending != code {
		return Customer{}, false
	}
	delete(s.codes, phone)

	id, ok := s.byPhone[phone]
	if !ok {
		id = s.node.Generate().String()
		s.customers[id] = &Customer{ID: id, Phone: phone}
		s.byPhone[phone] = id
	}
	return *s.customers[id], true
}

// Customer returns a copy of the customer with id.
func (s *Store) Customer(id string) (Customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return Customer{}, false
	}
	return *c, true
}

// CustomerByPhone returns a copy of the customer registered with phone.
func (s *Store) CustomerByPhone(phone string) (Customer, bool) {
	s.mu.RLock()
	id, ok := s.byPhone[phone]
	s.mu.RUnlock()
	if !ok {
		return Customer{}, false
	}
	return s.Customer(id)
}

// UpdateCustomer replaces the four editable fields. Nil clears a field.
func (s *Store) UpdateCustomer(id string, firstName, lastName, birthDate, email *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return ErrCustomerNotFound
	}
	c.FirstName, c.LastName, c.BirthDate, c.Email = firstName, lastName, birthDate, email
	return nil
}

// AddOrder records a purchase of coffees at time at.
func (s *Store) AddOrder(id string, coffees int, at time.Time) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return Order{}, ErrCustomerNotFound
	}

	before := c.CurrentCoffees / RewardThreshold
	c.CurrentCoffees += coffees
	c.TotalCoffees += coffees
	c.LastOrderDate = &at

	o := Order{
		ID:           uuid.NewString(),
		CustomerID:   id,
		OrderDate:    at,
		CoffeeCount:  coffees,
		EarnedReward: c.CurrentCoffees/RewardThreshold - before,
	}
	s.orders[id] = append([]Order{o}, s.orders[id]...)
	return o, nil
}

// Redeem spends one free coffee.
func (s *Store) Redeem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return ErrCustomerNotFound
	}
	if c.CurrentCoffees < RewardThreshold {
		return ErrNotEnoughCoffees
	}
	c.CurrentCoffees -= RewardThreshold
	return nil
}

// Orders returns the customer's orders, newest first.
func (s *Store) Orders(id string) []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Order{}, s.orders[id]...)
}

// SaveDevice upserts a device by id.
func (s *Store) SaveDevice(d Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.DeviceID] = d
}

// Devices returns every registered device sorted by id.
func (s *Store) Devices() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// AddFeedback stores a feedback message.
func (s *Store) AddFeedback(f Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedbacks = append(s.feedbacks, f)
}

// Feedbacks returns all feedback in submission order.
func (s *Store) Feedbacks() []Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Feedback{}, s.feedbacks...)
}

// RememberRefresh records an issued refresh token id.
func (s *Store) RememberRefresh(tokenID, customerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[tokenID] = customerID
}

// ConsumeRefresh spends a refresh token id. Each id works once.
func (s *Store) ConsumeRefresh(tokenID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.refresh[tokenID]
	if ok {
		delete(s.refresh, tokenID)
	}
	return id, ok
}

// Generation returns the customer's current access token generation.
func (s *Store) Generation(customerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation[customerID]
}

// RevokeAccess invalidates every access token issued so far for the
// customer. Refresh tokens keep working.
func (s *Store) RevokeAccess(customerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation[customerID]++
}

// Snapshot is the admin view of the whole state.
type Snapshot struct {
	Customers []Customer         `json:"customers"`
	Orders    map[string][]Order `json:"orders"`
	Devices   []Device           `json:"devices"`
	Feedbacks []Feedback         `json:"feedbacks"`
	Pending   []string           `json:"pendingPhones"`
}

// Snapshot copies the state for inspection. Codes are not included.
func (s *Store) Snapshot() Snapshot {
	devices := s.Devices()

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Orders:    make(map[string][]Order, len(s.orders)),
		Devices:   devices,
		Feedbacks: append([]Feedback{}, s.feedbacks...),
	}
	for _, c := range s.customers {
		snap.Customers = append(snap.Customers, *c)
	}
	sort.Slice(snap.Customers, func(i, j int) bool { return snap.Customers[i].ID < snap.Customers[j].ID })
	for id, orders := range s.orders {
		snap.Orders[id] = append([]Order{}, orders...)
	}
	for phone := range s.codes {
		snap.Pending = append(snap.Pending, phone)
	}
	sort.Strings(snap.Pending)
	return snap
}
