package auth

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"rollsheet/internal/apperr"
	"rollsheet/internal/teacher"
)

const (
	msgInvalidCredentials = "invalid credentials"
	msgNoToken            = "No token"
	msgInvalidToken       = "Invalid token"
)

// RegisterInput carries the fields of a new teacher account.
type RegisterInput struct {
	Username      string  `json:"username" validate:"required"`
	Password      string  `json:"password" validate:"required"`
	WebhookURL    string  `json:"webAppUrl" validate:"required"`
	WebhookSecret string  `json:"webAppSecret" validate:"required"`
	SheetURL      *string `json:"sheetUrl"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token      string
	ExpiresAt  time.Time
	WebhookURL string
}

// Options configures token issuance and hashing.
type Options struct {
	Issuer     string
	SigningKey string
	TokenTTL   time.Duration
	BcryptCost int
	// Now overrides the clock used for issuing and validating tokens.
	Now func() time.Time
}

// Service registers teachers, verifies credentials and validates tokens.
type Service struct {
	store    teacher.Store
	opts     Options
	validate *validator.Validate

	dummyOnce sync.Once
	dummyHash string
}

// NewService creates a service backed by a credential store.
func NewService(store teacher.Store, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 8 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Service{store: store, opts: opts, validate: v}
}

// Register validates and persists a new account, returning its id.
func (s *Service) Register(ctx context.Context, in RegisterInput) (int64, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.WebhookURL = strings.TrimSpace(in.WebhookURL)
	in.WebhookSecret = strings.TrimSpace(in.WebhookSecret)
	if in.SheetURL != nil {
		if trimmed := strings.TrimSpace(*in.SheetURL); trimmed == "" {
			in.SheetURL = nil
		} else {
			in.SheetURL = &trimmed
		}
	}

	check := in
	check.Password = strings.TrimSpace(in.Password)
	if err := s.validate.Struct(check); err != nil {
		return 0, missingFields(err)
	}

	hash, err := HashPassword(in.Password, s.opts.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return 0, apperr.Validation("password too long")
		}
		return 0, apperr.Internal("hash password", err)
	}

	id, err := s.store.Create(ctx, teacher.Account{
		Username:      in.Username,
		PasswordHash:  hash,
		SheetURL:      in.SheetURL,
		WebhookURL:    in.WebhookURL,
		WebhookSecret: in.WebhookSecret,
	})
	if err != nil {
		if errors.Is(err, teacher.ErrDuplicateUsername) {
			return 0, apperr.Conflict("username taken")
		}
		return 0, apperr.Internal("db error", err)
	}
	return id, nil
}

// Login checks credentials and issues a session token. Unknown usernames
// and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	acct, err := s.store.ByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return LoginResult{}, apperr.Internal("server error", err)
	}
	if acct == nil {
		CheckPassword(s.dummy(), password)
		return LoginResult{}, apperr.Auth(msgInvalidCredentials, nil)
	}
	if !CheckPassword(acct.PasswordHash, password) {
		return LoginResult{}, apperr.Auth(msgInvalidCredentials, nil)
	}

	token, exp, err := Issue(Identity{ID: acct.ID, Username: acct.Username}, s.opts.Issuer, s.opts.SigningKey, s.opts.TokenTTL, s.opts.Now())
	if err != nil {
		return LoginResult{}, apperr.Internal("server error", err)
	}
	return LoginResult{Token: token, ExpiresAt: exp, WebhookURL: acct.WebhookURL}, nil
}

// Authenticate validates a bearer token and returns the identity it carries.
func (s *Service) Authenticate(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, apperr.Auth(msgNoToken, nil)
	}
	claims, err := Parse(token, s.opts.SigningKey, s.opts.Issuer, s.opts.Now)
	if err != nil {
		return Identity{}, apperr.Auth(msgInvalidToken, err)
	}
	return Identity{ID: claims.TeacherID, Username: claims.Username}, nil
}

// dummy returns a hash used to keep unknown-user logins as slow as real ones.
func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = HashPassword("rollsheet-dummy-password", s.opts.BcryptCost)
	})
	return s.dummyHash
}

func missingFields(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid input")
	}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, fe.Field())
	}
	return apperr.Validation("missing fields (" + strings.Join(names, ",") + ")")
}
