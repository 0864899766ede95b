package loyaltytwin

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/coffeeclub/internal/version"
)

// OrderDateLayout is how the backend renders order timestamps: no zone,
// seven fractional digits.
const OrderDateLayout = "2006-01-02T15:04:05.0000000"

var (
	phonePattern = regexp.MustCompile(`^[0-9]{10,15}$`)
	codePattern  = regexp.MustCompile(`^[0-9]{6}$`)
)

type phoneRequest struct {
	Phone string `json:"phone"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type customerResponse struct {
	ID             string  `json:"id"`
	Phone          string  `json:"phone"`
	FirstName      *string `json:"firstName"`
	LastName       *string `json:"lastName"`
	Email          *string `json:"email"`
	BirthDate      *string `json:"birthDate"`
	CurrentCoffees int     `json:"currentCoffees"`
	PendingRewards int     `json:"pendingRewards"`
	TotalCoffees   int     `json:"totalCoffees"`
	LastOrderDate  *string `json:"lastOrderDate"`
}

type orderResponse struct {
	ID           string `json:"id"`
	OrderDate    string `json:"orderDate"`
	CoffeeCount  int    `json:"coffeeCount"`
	EarnedReward int    `json:"earnedReward"`
}

type qrResponse struct {
	CustomerID string `json:"customerId"`
	Timestamp  string `json:"timestamp"`
	Hash       string `json:"hash"`
}

type deviceRequest struct {
	DeviceID    string  `json:"deviceId"`
	Type        *string `json:"type"`
	Name        *string `json:"name"`
	Brand       *string `json:"brand"`
	OS          *string `json:"os"`
	OSVersion   *string `json:"osVersion"`
	Model       *string `json:"model"`
	IsSimulator *bool   `json:"isSimulator"`
}

type feedbackRequest struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func (t *Twin) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if err := decode(r, &req); err != nil || !phonePattern.MatchString(req.Phone) {
		writeErrors(w, http.StatusBadRequest, "Invalid phone number")
		return
	}

	code := t.opts.FixedCode
	if code == "" {
		code = fmt.Sprintf("%06d", rand.Intn(1_000_000))
	}
	t.store.SetCode(req.Phone, code)
	t.logger.InfoContext(r.Context(), "verification code issued", "phone", req.Phone, "code", code)

	w.WriteHeader(http.StatusOK)
}

func (t *Twin) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		writeErrors(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !phonePattern.MatchString(req.Phone) {
		writeErrors(w, http.StatusBadRequest, "Invalid phone number")
		return
	}
	if !codePattern.MatchString(req.Code) {
		writeErrors(w, http.StatusBadRequest, "Invalid code")
		return
	}

	customer, ok := t.store.ConsumeCode(req.Phone, req.Code)
	if !ok {
		writeErrors(w, http.StatusBadRequest, "Invalid code")
		return
	}

	pair, err := t.issuePair(customer.ID)
	if err != nil {
		writeErrors(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (t *Twin) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil || req.RefreshToken == "" {
		writeErrors(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	claims, err := t.tokens.Validate(req.RefreshToken, TokenRefresh)
	if err != nil {
		writeErrors(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	customerID, ok := t.store.ConsumeRefresh(claims.ID)
	if !ok || customerID != claims.Subject {
		writeErrors(w, http.StatusUnauthorized, "Refresh token already used")
		return
	}

	pair, err := t.issuePair(customerID)
	if err != nil {
		writeErrors(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (t *Twin) issuePair(customerID string) (tokenResponse, error) {
	access, _, err := t.tokens.Issue(customerID, TokenAccess, t.store.Generation(customerID))
	if err != nil {
		return tokenResponse{}, err
	}
	refresh, claims, err := t.tokens.Issue(customerID, TokenRefresh, 0)
	if err != nil {
		return tokenResponse{}, err
	}
	t.store.RememberRefresh(claims.ID, customerID)
	return tokenResponse{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *Twin) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	c, ok := t.store.Customer(CustomerID(r.Context()))
	if !ok {
		writeErrors(w, http.StatusNotFound, "Customer not found")
		return
	}

	resp := customerResponse{
		ID:             c.ID,
		Phone:          c.Phone,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		Email:          c.Email,
		BirthDate:      c.BirthDate,
		CurrentCoffees: c.CurrentCoffees,
		PendingRewards: c.CurrentCoffees / RewardThreshold,
		TotalCoffees:   c.TotalCoffees,
	}
	if c.LastOrderDate != nil {
		s := c.LastOrderDate.UTC().Format(OrderDateLayout)
		resp.LastOrderDate = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

var updateFields = []string{"firstName", "lastName", "birthDate", "email"}

func (t *Twin) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := decode(r, &raw); err != nil {
		writeErrors(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Every field must be sent; null clears it.
	values := make(map[string]*string, len(updateFields))
	var problems []string
	for _, field := range updateFields {
		v, ok := raw[field]
		if !ok {
			problems = append(problems, field+" is required")
			continue
		}
		var s *string
		if err := json.Unmarshal(v, &s); err != nil {
			problems = append(problems, field+" must be a string or null")
			continue
		}
		values[field] = s
	}
	if len(problems) > 0 {
		writeErrors(w, http.StatusBadRequest, problems...)
		return
	}

	err := t.store.UpdateCustomer(CustomerID(r.Context()),
		values["firstName"], values["lastName"], values["birthDate"], values["email"])
	if err != nil {
		writeErrors(w, http.StatusNotFound, "Customer not found")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (t *Twin) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders := t.store.Orders(CustomerID(r.Context()))
	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, orderResponse{
			ID:           o.ID,
			OrderDate:    o.OrderDate.UTC().Format(OrderDateLayout),
			CoffeeCount:  o.CoffeeCount,
			EarnedReward: o.EarnedReward,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (t *Twin) handleQR(w http.ResponseWriter, r *http.Request) {
	id := CustomerID(r.Context())
	ts := t.clock.Now().UTC().Format(time.RFC3339)
	writeJSON(w, http.StatusOK, qrResponse{
		CustomerID: id,
		Timestamp:  ts,
		Hash:       t.SignQR(id, ts),
	})
}

// SignQR returns the keyed hash a till uses to check a scanned payload.
func (t *Twin) SignQR(customerID, timestamp string) string {
	h, err := blake3.NewKeyed(t.qrKey[:])
	if err != nil {
		// qrKey is always 32 bytes.
		panic(err)
	}
	_, _ = h.WriteString(customerID + "|" + timestamp)
	return hex.EncodeToString(h.Sum(nil))
}

func (t *Twin) handleDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decode(r, &req); err != nil {
		writeErrors(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var problems []string
	if strings.TrimSpace(req.DeviceID) == "" {
		problems = append(problems, "deviceId is required")
	}
	if req.IsSimulator == nil {
		problems = append(problems, "isSimulator is required")
	}
	if len(problems) > 0 {
		writeErrors(w, http.StatusBadRequest, problems...)
		return
	}

	t.store.SaveDevice(Device{
		DeviceID:     req.DeviceID,
		Type:         req.Type,
		Name:         req.Name,
		Brand:        req.Brand,
		OS:           req.OS,
		OSVersion:    req.OSVersion,
		Model:        req.Model,
		IsSimulator:  *req.IsSimulator,
		RegisteredAt: t.clock.Now(),
	})
	w.WriteHeader(http.StatusOK)
}

func (t *Twin) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decode(r, &req); err != nil {
		writeErrors(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	subject, content := strings.TrimSpace(req.Subject), strings.TrimSpace(req.Content)
	var problems []string
	if subject == "" {
		problems = append(problems, "subject is required")
	}
	if content == "" {
		problems = append(problems, "content is required")
	}
	if len(problems) > 0 {
		writeErrors(w, http.StatusBadRequest, problems...)
		return
	}

	t.store.AddFeedback(Feedback{
		CustomerID: CustomerID(r.Context()),
		Subject:    subject,
		Content:    content,
		CreatedAt:  t.clock.Now(),
	})
	w.WriteHeader(http.StatusOK)
}

func (t *Twin) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Healthy")
}

func (t *Twin) handleEnv(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"environment": "twin",
		"version":     version.Version,
		"issuer":      t.opts.Issuer,
		"time":        t.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (t *Twin) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Coffee Club API")
}
