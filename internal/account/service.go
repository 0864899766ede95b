// Package account wraps the /account endpoints of the loyalty API.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/coffeeclub/internal/securestore"
)

// ErrEmptyTokens is returned when verify succeeds but a token is blank.
var ErrEmptyTokens = errors.New("account: verify returned an empty token")

// Transport is the subset of the gateway client the service needs.
type Transport interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
}

// Service performs single request/response account operations. It never
// retries on its own; the gateway's refresh retry is the only one.
type Service struct {
	api Transport
}

// NewService returns a Service over api.
func NewService(api Transport) *Service {
	return &Service{api: api}
}

// DigitsOnly strips everything except 0-9.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Register asks the backend to send a one-time code to phone.
func (s *Service) Register(ctx context.Context, phone string) error {
	if err := s.api.Post(ctx, "/account/register", map[string]string{"phone": DigitsOnly(phone)}, nil); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// Verify exchanges phone and code for a token pair.
func (s *Service) Verify(ctx context.Context, phone, code string) (securestore.TokenPair, error) {
	body := map[string]string{
		"phone": DigitsOnly(phone),
		"code":  strings.TrimSpace(code),
	}

	var pair securestore.TokenPair
	if err := s.api.Post(ctx, "/account/verify", body, &pair); err != nil {
		return securestore.TokenPair{}, fmt.Errorf("verify: %w", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return securestore.TokenPair{}, ErrEmptyTokens
	}
	return pair, nil
}

// GetCustomerDetail fetches the signed-in customer's profile.
func (s *Service) GetCustomerDetail(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := s.api.Get(ctx, "/account/customer", &p); err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if p.CurrentCoffees < 0 {
		p.CurrentCoffees = 0
	}
	return &p, nil
}

// GetCustomerOrders fetches the order history. A null body is an empty list.
func (s *Service) GetCustomerOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	if err := s.api.Get(ctx, "/account/customer/orders", &orders); err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

// UpdateCustomer replaces the four editable fields. Nil fields are sent as
// explicit nulls.
func (s *Service) UpdateCustomer(ctx context.Context, update CustomerUpdate) error {
	if err := s.api.Put(ctx, "/account/customer", update, nil); err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	return nil
}

// GenerateQR fetches a fresh in-store scan payload.
func (s *Service) GenerateQR(ctx context.Context) (*QRCode, error) {
	var qr QRCode
	if err := s.api.Get(ctx, "/account/qr", &qr); err != nil {
		return nil, fmt.Errorf("generate qr: %w", err)
	}
	return &qr, nil
}
