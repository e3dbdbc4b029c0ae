package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"tube-archive/internal/domain"
	"tube-archive/internal/repository"
	"tube-archive/internal/service"
)

type stubUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *stubUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(user.Email)
	if _, exists := m.usersByEmail[key]; exists {
		return repository.ErrDuplicateEmail
	}
	m.usersByID[user.ID] = user
	m.usersByEmail[key] = user.ID
	return nil
}

func (m *stubUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *stubUserRepo) GetByEmail(_ context.Context, emailAddr string) (domain.User, error) {
	m.mu.Lock()
	id, ok := m.usersByEmail[strings.ToLower(emailAddr)]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(context.Background(), id)
}

func (m *stubUserRepo) List(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []domain.User
	for _, u := range m.usersByID {
		users = append(users, u)
	}
	return users, nil
}

func (m *stubUserRepo) SetPassword(_ context.Context, id, passwordHash string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = passwordHash
	user.HasDefaultPassword = false
	user.MustChangePassword = false
	user.LastPasswordChangeAt = &changedAt
	m.usersByID[id] = user
	return nil
}

func (m *stubUserRepo) SetRememberToken(_ context.Context, id string, tokenHash *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.RememberTokenHash = tokenHash
	m.usersByID[id] = user
	return nil
}

func (m *stubUserRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	delete(m.usersByID, id)
	delete(m.usersByEmail, strings.ToLower(user.Email))
	return nil
}

func (m *stubUserRepo) put(user domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usersByID[user.ID] = user
	m.usersByEmail[strings.ToLower(user.Email)] = user.ID
}

type stubRoleRepo struct {
	mu          sync.Mutex
	roles       map[int]domain.Role
	assignments map[string][]int
}

func newStubRoleRepo() *stubRoleRepo {
	repo := &stubRoleRepo{
		roles:       make(map[int]domain.Role),
		assignments: make(map[string][]int),
	}
	for i, name := range domain.KnownRoleNames() {
		repo.roles[i+1] = domain.Role{ID: i + 1, Name: name}
	}
	return repo
}

func (m *stubRoleRepo) GetByID(_ context.Context, id int) (domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return domain.Role{}, pgx.ErrNoRows
	}
	return role, nil
}

func (m *stubRoleRepo) GetByName(_ context.Context, name string) (domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range m.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return domain.Role{}, pgx.ErrNoRows
}

func (m *stubRoleRepo) NamesForUser(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, id := range m.assignments[userID] {
		names = append(names, m.roles[id].Name)
	}
	return names, nil
}

func (m *stubRoleRepo) Attach(_ context.Context, userID string, roleID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.assignments[userID] {
		if id == roleID {
			return nil
		}
	}
	m.assignments[userID] = append(m.assignments[userID], roleID)
	return nil
}

func (m *stubRoleRepo) Replace(_ context.Context, userID string, roleID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[userID] = []int{roleID}
	return nil
}

// stubTokenRepo cubre ambos flujos de tokens; replaceOnInsert activa la
// semantica de un token vivo por email del flujo de reseteo.
type stubTokenRepo struct {
	mu              sync.Mutex
	records         map[string]domain.SecurityToken
	users           *stubUserRepo
	replaceOnInsert bool
}

func newStubTokenRepo(users *stubUserRepo, replaceOnInsert bool) *stubTokenRepo {
	return &stubTokenRepo{
		records:         make(map[string]domain.SecurityToken),
		users:           users,
		replaceOnInsert: replaceOnInsert,
	}
}

func (m *stubTokenRepo) Insert(_ context.Context, rec domain.SecurityToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceOnInsert {
		for id, existing := range m.records {
			if strings.EqualFold(existing.Email, rec.Email) {
				delete(m.records, id)
			}
		}
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *stubTokenRepo) FindByHash(_ context.Context, emailAddr, tokenHash string) (domain.SecurityToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if strings.EqualFold(rec.Email, emailAddr) && rec.TokenHash == tokenHash {
			return rec, nil
		}
	}
	return domain.SecurityToken{}, pgx.ErrNoRows
}

func (m *stubTokenRepo) MarkUsed(_ context.Context, id string, usedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.UsedAt != nil {
		return false, nil
	}
	rec.UsedAt = &usedAt
	m.records[id] = rec
	return true, nil
}

func (m *stubTokenRepo) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, rec := range m.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(m.records, id)
			count++
		}
	}
	return count, nil
}

func (m *stubTokenRepo) CompleteVerification(ctx context.Context, tokenID, userID, passwordHash string, now time.Time) (bool, error) {
	m.mu.Lock()
	rec, ok := m.records[tokenID]
	if !ok || rec.UsedAt != nil {
		m.mu.Unlock()
		return false, nil
	}
	rec.UsedAt = &now
	m.records[tokenID] = rec
	m.mu.Unlock()

	user, err := m.users.GetByID(ctx, userID)
	if err != nil || user.IsEmailVerified {
		return false, nil
	}
	user.IsEmailVerified = true
	user.EmailVerifiedAt = &now
	user.PasswordHash = passwordHash
	user.HasDefaultPassword = false
	user.MustChangePassword = false
	user.LastPasswordChangeAt = &now
	m.users.put(user)
	return true, nil
}

func (m *stubTokenRepo) Redeem(ctx context.Context, tokenID, userID, passwordHash string, now time.Time) (bool, error) {
	m.mu.Lock()
	if _, ok := m.records[tokenID]; !ok {
		m.mu.Unlock()
		return false, nil
	}
	delete(m.records, tokenID)
	m.mu.Unlock()

	return true, m.users.SetPassword(ctx, userID, passwordHash, now)
}

type stubQuotaRepo struct {
	mu   sync.Mutex
	rows map[string]domain.ApiQuota
}

func newStubQuotaRepo() *stubQuotaRepo {
	return &stubQuotaRepo{rows: make(map[string]domain.ApiQuota)}
}

func (m *stubQuotaRepo) GetOrCreateCurrent(_ context.Context, userID, month string, defaultLimit int) (domain.ApiQuota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rows[userID]
	if !ok {
		q = domain.ApiQuota{UserID: userID, CurrentMonth: month, MonthlyLimit: defaultLimit, UpdatedAt: time.Now().UTC()}
	} else if q.CurrentMonth != month {
		q.CurrentMonth = month
		q.UsageCount = 0
	}
	m.rows[userID] = q
	return q, nil
}

func (m *stubQuotaRepo) Consume(_ context.Context, userID, month string) (domain.ApiQuota, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rows[userID]
	if !ok || q.CurrentMonth != month {
		return domain.ApiQuota{}, false, nil
	}
	if !q.IsUnlimited && q.UsageCount >= q.MonthlyLimit {
		return domain.ApiQuota{}, false, nil
	}
	q.UsageCount++
	q.UpdatedAt = time.Now().UTC()
	m.rows[userID] = q
	return q, true, nil
}

func (m *stubQuotaRepo) SetUnlimited(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rows[userID]
	if !ok {
		q = domain.ApiQuota{UserID: userID, CurrentMonth: domain.QuotaMonth(time.Now())}
	}
	q.IsUnlimited = true
	m.rows[userID] = q
	return nil
}

func (m *stubQuotaRepo) ResetStale(_ context.Context, month string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, q := range m.rows {
		if q.CurrentMonth != month {
			q.CurrentMonth = month
			q.UsageCount = 0
			m.rows[id] = q
			count++
		}
	}
	return count, nil
}

type stubIdentityRepo struct {
	mu   sync.Mutex
	rows map[string]domain.IdentityVerification
}

func newStubIdentityRepo() *stubIdentityRepo {
	return &stubIdentityRepo{rows: make(map[string]domain.IdentityVerification)}
}

func (m *stubIdentityRepo) Create(_ context.Context, v domain.IdentityVerification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[v.ID] = v
	return nil
}

func (m *stubIdentityRepo) GetByID(_ context.Context, id string) (domain.IdentityVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[id]
	if !ok {
		return domain.IdentityVerification{}, pgx.ErrNoRows
	}
	return v, nil
}

func (m *stubIdentityRepo) ListByStatus(_ context.Context, status string) ([]domain.IdentityVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.IdentityVerification
	for _, v := range m.rows {
		if v.Status == status {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *stubIdentityRepo) Review(_ context.Context, id, status string, notes *string, reviewedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[id]
	if !ok || v.Status != domain.VerificationStatusPending {
		return false, nil
	}
	v.Status = status
	v.Notes = notes
	v.ReviewedAt = &reviewedAt
	m.rows[id] = v
	return true, nil
}

type stubEmailSender struct {
	sent chan string
}

func newStubEmailSender() *stubEmailSender {
	return &stubEmailSender{sent: make(chan string, 8)}
}

func (m *stubEmailSender) SendVerificationLink(_ context.Context, _, link string, _ time.Time) error {
	m.sent <- link
	return nil
}

func (m *stubEmailSender) SendPasswordResetLink(_ context.Context, _, link string, _ time.Time) error {
	m.sent <- link
	return nil
}

func (m *stubEmailSender) waitLink(t *testing.T) string {
	t.Helper()
	select {
	case link := <-m.sent:
		return link
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an email to be dispatched")
		return ""
	}
}

// apiHarness cablea el router completo sobre mocks de storage.
type apiHarness struct {
	router  *gin.Engine
	users   *stubUserRepo
	roles   *stubRoleRepo
	quotas  *stubQuotaRepo
	sender  *stubEmailSender
	policy  service.PasswordPolicy
	authSvc *service.AuthService
}

func newAPIHarness() *apiHarness {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	users := newStubUserRepo()
	roles := newStubRoleRepo()
	verifTokens := newStubTokenRepo(users, false)
	resetTokens := newStubTokenRepo(users, true)
	quotas := newStubQuotaRepo()
	identities := newStubIdentityRepo()
	sender := newStubEmailSender()
	policy := service.NewPasswordPolicy("123456")

	verifSvc := service.NewVerificationService(logger, users, roles, verifTokens, nil, sender, policy, "http://localhost:8080")
	authSvc := service.NewAuthService(logger, users, roles, service.NewMemorySessionStore(), policy)
	resetSvc := service.NewResetService(logger, users, resetTokens, nil, sender, policy, "http://localhost:8080")
	quotaSvc := service.NewQuotaService(logger, quotas, 10)
	identitySvc := service.NewIdentityService(logger, identities, quotaSvc)
	adminSvc := service.NewAdminService(logger, users, roles)

	router := NewRouter(
		logger,
		authSvc,
		NewAuthHandler(logger, verifSvc, authSvc, resetSvc),
		NewQuotaHandler(logger, quotaSvc, identitySvc),
		NewAdminHandler(logger, adminSvc, identitySvc),
	)
	return &apiHarness{
		router:  router,
		users:   users,
		roles:   roles,
		quotas:  quotas,
		sender:  sender,
		policy:  policy,
		authSvc: authSvc,
	}
}

// seedUser crea un usuario listo para loguearse con la password indicada.
func (h *apiHarness) seedUser(t *testing.T, id, emailAddr, password, role string, mustChange bool) {
	t.Helper()
	hash, err := h.policy.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h.users.put(domain.User{
		ID:                 id,
		Email:              emailAddr,
		PasswordHash:       hash,
		IsEmailVerified:    true,
		MustChangePassword: mustChange,
		CreatedAt:          time.Now().UTC(),
	})
	roleRec, err := h.roles.GetByName(context.Background(), role)
	if err != nil {
		t.Fatalf("role %s: %v", role, err)
	}
	if err := h.roles.Attach(context.Background(), id, roleRec.ID); err != nil {
		t.Fatalf("attach: %v", err)
	}
}

// login devuelve el token de sesion de un usuario ya sembrado.
func (h *apiHarness) login(t *testing.T, emailAddr, password string) string {
	t.Helper()
	_, token, err := h.authSvc.Login(context.Background(), emailAddr, password, false)
	if err != nil {
		t.Fatalf("login %s: %v", emailAddr, err)
	}
	return token
}

func (h *apiHarness) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}
