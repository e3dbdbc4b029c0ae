package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"tube-archive/internal/domain"
	"tube-archive/internal/email"
	"tube-archive/internal/repository"
)

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
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

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, emailAddr string) (domain.User, error) {
	m.mu.Lock()
	id, ok := m.usersByEmail[strings.ToLower(emailAddr)]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockUserRepo) List(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []domain.User
	for _, u := range m.usersByID {
		users = append(users, u)
	}
	return users, nil
}

func (m *mockUserRepo) SetPassword(_ context.Context, id, passwordHash string, changedAt time.Time) error {
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

func (m *mockUserRepo) SetRememberToken(_ context.Context, id string, tokenHash *string) error {
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

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
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

// put inserta o reemplaza directamente, para armar fixtures.
func (m *mockUserRepo) put(user domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usersByID[user.ID] = user
	m.usersByEmail[strings.ToLower(user.Email)] = user.ID
}

type mockRoleRepo struct {
	mu          sync.Mutex
	roles       map[int]domain.Role
	assignments map[string][]int
}

func newMockRoleRepo() *mockRoleRepo {
	repo := &mockRoleRepo{
		roles:       make(map[int]domain.Role),
		assignments: make(map[string][]int),
	}
	for i, name := range domain.KnownRoleNames() {
		repo.roles[i+1] = domain.Role{ID: i + 1, Name: name}
	}
	return repo
}

func (m *mockRoleRepo) GetByID(_ context.Context, id int) (domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return domain.Role{}, pgx.ErrNoRows
	}
	return role, nil
}

func (m *mockRoleRepo) GetByName(_ context.Context, name string) (domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range m.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return domain.Role{}, pgx.ErrNoRows
}

func (m *mockRoleRepo) NamesForUser(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, id := range m.assignments[userID] {
		names = append(names, m.roles[id].Name)
	}
	return names, nil
}

func (m *mockRoleRepo) Attach(_ context.Context, userID string, roleID int) error {
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

func (m *mockRoleRepo) Replace(_ context.Context, userID string, roleID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[userID] = []int{roleID}
	return nil
}

// mockTokenRepo implementa el contrato comun de tokens mas las operaciones
// transaccionales de ambos flujos. replaceOnInsert reproduce la semantica del
// repo de reseteo (un token vivo por email); las transacciones delegan la
// escritura de usuario en el mockUserRepo compartido.
type mockTokenRepo struct {
	mu              sync.Mutex
	records         map[string]domain.SecurityToken
	users           *mockUserRepo
	replaceOnInsert bool
}

func newMockTokenRepo(users *mockUserRepo, replaceOnInsert bool) *mockTokenRepo {
	return &mockTokenRepo{
		records:         make(map[string]domain.SecurityToken),
		users:           users,
		replaceOnInsert: replaceOnInsert,
	}
}

func (m *mockTokenRepo) Insert(_ context.Context, rec domain.SecurityToken) error {
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

func (m *mockTokenRepo) FindByHash(_ context.Context, emailAddr, tokenHash string) (domain.SecurityToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if strings.EqualFold(rec.Email, emailAddr) && rec.TokenHash == tokenHash {
			return rec, nil
		}
	}
	return domain.SecurityToken{}, pgx.ErrNoRows
}

func (m *mockTokenRepo) MarkUsed(_ context.Context, id string, usedAt time.Time) (bool, error) {
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

func (m *mockTokenRepo) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
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

func (m *mockTokenRepo) CompleteVerification(ctx context.Context, tokenID, userID, passwordHash string, now time.Time) (bool, error) {
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

func (m *mockTokenRepo) Redeem(ctx context.Context, tokenID, userID, passwordHash string, now time.Time) (bool, error) {
	m.mu.Lock()
	if _, ok := m.records[tokenID]; !ok {
		m.mu.Unlock()
		return false, nil
	}
	delete(m.records, tokenID)
	m.mu.Unlock()

	return true, m.users.SetPassword(ctx, userID, passwordHash, now)
}

// expire retrocede el vencimiento de un token para fixtures.
func (m *mockTokenRepo) expire(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[id]
	rec.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	m.records[id] = rec
}

func (m *mockTokenRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type sentMail struct {
	to   string
	link string
}

// mockEmailSender entrega por canal para que los tests puedan esperar el
// despacho asincrono sin sleeps.
type mockEmailSender struct {
	sent chan sentMail
	err  error
}

func newMockEmailSender() *mockEmailSender {
	return &mockEmailSender{sent: make(chan sentMail, 8)}
}

func (m *mockEmailSender) SendVerificationLink(_ context.Context, toEmail, link string, _ time.Time) error {
	m.sent <- sentMail{to: toEmail, link: link}
	return m.err
}

func (m *mockEmailSender) SendPasswordResetLink(_ context.Context, toEmail, link string, _ time.Time) error {
	m.sent <- sentMail{to: toEmail, link: link}
	return m.err
}

var _ email.Sender = (*mockEmailSender)(nil)

type mockQuotaRepo struct {
	mu   sync.Mutex
	rows map[string]domain.ApiQuota
}

func newMockQuotaRepo() *mockQuotaRepo {
	return &mockQuotaRepo{rows: make(map[string]domain.ApiQuota)}
}

func (m *mockQuotaRepo) GetOrCreateCurrent(_ context.Context, userID, month string, defaultLimit int) (domain.ApiQuota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rows[userID]
	if !ok {
		q = domain.ApiQuota{
			UserID:       userID,
			CurrentMonth: month,
			MonthlyLimit: defaultLimit,
			UpdatedAt:    time.Now().UTC(),
		}
	} else if q.CurrentMonth != month {
		q.CurrentMonth = month
		q.UsageCount = 0
	}
	m.rows[userID] = q
	return q, nil
}

func (m *mockQuotaRepo) Consume(_ context.Context, userID, month string) (domain.ApiQuota, bool, error) {
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

func (m *mockQuotaRepo) SetUnlimited(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rows[userID]
	if !ok {
		q = domain.ApiQuota{UserID: userID, CurrentMonth: domain.QuotaMonth(time.Now())}
	}
	q.IsUnlimited = true
	q.UpdatedAt = time.Now().UTC()
	m.rows[userID] = q
	return nil
}

func (m *mockQuotaRepo) ResetStale(_ context.Context, month string) (int64, error) {
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

func (m *mockQuotaRepo) put(q domain.ApiQuota) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[q.UserID] = q
}

type mockIdentityRepo struct {
	mu   sync.Mutex
	rows map[string]domain.IdentityVerification
}

func newMockIdentityRepo() *mockIdentityRepo {
	return &mockIdentityRepo{rows: make(map[string]domain.IdentityVerification)}
}

func (m *mockIdentityRepo) Create(_ context.Context, v domain.IdentityVerification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[v.ID] = v
	return nil
}

func (m *mockIdentityRepo) GetByID(_ context.Context, id string) (domain.IdentityVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rows[id]
	if !ok {
		return domain.IdentityVerification{}, pgx.ErrNoRows
	}
	return v, nil
}

func (m *mockIdentityRepo) ListByStatus(_ context.Context, status string) ([]domain.IdentityVerification, error) {
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

func (m *mockIdentityRepo) Review(_ context.Context, id, status string, notes *string, reviewedAt time.Time) (bool, error) {
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
