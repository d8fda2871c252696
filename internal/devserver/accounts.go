package devserver

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
	"golang.org/x/crypto/bcrypt"
)

// Account is a registered user of the development backend.
type Account struct {
	ID           string
	Email        string
	Phone        string
	PasswordHash string // Never serialised
	FirstName    string
	LastName     string
	ReferralCode string
	DateJoined   time.Time
	LastLogin    time.Time
	Blocked      bool
}

// Profile is the view of the account the API returns.
func (a *Account) Profile() session.User {
	u := session.User{
		ID:           a.ID,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Email:        a.Email,
		Phone:        a.Phone,
		ReferralCode: a.ReferralCode,
		IsActive:     !a.Blocked,
		IsBlock:      a.Blocked,
		DateJoined:   a.DateJoined.Format(time.RFC3339),
	}
	if !a.LastLogin.IsZero() {
		u.LastLogin = a.LastLogin.Format(time.RFC3339)
	}
	return u
}

// ValidatePasswordStrength checks if password meets the registration rules:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

type AccountRepo interface {
	Upsert(account *Account) error
	GetByLogin(emailOrPhone string) (*Account, error)
	GetByID(id string) (*Account, error)
	SetLastLogin(id string, at time.Time) error
}

var _ AccountRepo = (*memoryAccounts)(nil)

type memoryAccounts struct {
	accounts map[string]*Account
	logins   map[string]string // email or phone to account id
	lock     sync.RWMutex
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{
		accounts: make(map[string]*Account),
		logins:   make(map[string]string),
	}
}

func loginKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Upsert stores a copy of account, assigning an ID when it has none.
func (r *memoryAccounts) Upsert(account *Account) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	for _, login := range []string{account.Email, account.Phone} {
		if login == "" {
			continue
		}
		if id, ok := r.logins[loginKey(login)]; ok && id != account.ID {
			return fmt.Errorf("%q is already registered", login)
		}
	}

	stored := *account
	r.accounts[account.ID] = &stored
	if account.Email != "" {
		r.logins[loginKey(account.Email)] = account.ID
	}
	if account.Phone != "" {
		r.logins[loginKey(account.Phone)] = account.ID
	}
	return nil
}

func (r *memoryAccounts) GetByLogin(emailOrPhone string) (*Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.logins[loginKey(emailOrPhone)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	account := *r.accounts[id]
	return &account, nil
}

func (r *memoryAccounts) GetByID(id string) (*Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *account
	return &cp, nil
}

func (r *memoryAccounts) SetLastLogin(id string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	account.LastLogin = at
	return nil
}
