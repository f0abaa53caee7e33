package user

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/logx"
	"marketchat/internal/pkg/randx"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 50
	maxNicknameLen = 30
)

// Service applies the account rules.
type Service struct {
	repo Repository
	cost int
	now  func() time.Time
}

// NewService creates a Service on top of repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost, now: time.Now}
}

// SignupInput is the body of a signup request.
type SignupInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname,omitempty"`
}

// Register creates an account with a bcrypt password hash. A random nickname is assigned
// when none is given.
func (s *Service) Register(ctx context.Context, in SignupInput) (User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return User{}, err
	}

	passwordLen := utf8.RuneCountInString(in.Password)
	if passwordLen < minPasswordLen || passwordLen > maxPasswordLen {
		return User{}, errs.NewError(errs.ErrInvalidPassword)
	}

	nickname := strings.TrimSpace(in.Nickname)
	if utf8.RuneCountInString(nickname) > maxNicknameLen {
		return User{}, errs.NewError(errs.ErrInvalidParams)
	}
	if nickname == "" {
		if nickname, err = randx.UserNickname(); err != nil {
			nickname = "User_X"
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, errs.Wrap(errs.ErrUnknown, err)
	}

	u, err := s.repo.CreateUser(ctx, User{
		Email:        email,
		Nickname:     nickname,
		PasswordHash: string(hashedPassword),
		Roles:        DefaultRoles(),
		Status:       StatusActive,
		CreatedAt:    s.now(),
	})
	if err != nil {
		if errs.IsCode(err, errs.ErrUserAlreadyExists) {
			logx.Warn("registration conflict: email already exists", "email", email)
		}
		return User{}, err
	}

	s.touch(ctx, u.ID)
	return u, nil
}

// Authenticate checks an email/password pair. Unknown accounts, withdrawn accounts and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.repo.UserByEmail(ctx, email)
	if err != nil {
		if errs.IsCode(err, errs.ErrUserNotFound) {
			logx.Warn("login: unknown email", "email", email)
			return User{}, errs.NewError(errs.ErrInvalidCredentials)
		}
		return User{}, err
	}

	if !u.Active() {
		logx.Warn("login: account withdrawn", "user_id", u.ID)
		return User{}, errs.NewError(errs.ErrInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		logx.Warn("login: password mismatch", "user_id", u.ID)
		return User{}, errs.NewError(errs.ErrInvalidCredentials)
	}

	s.touch(ctx, u.ID)
	return u, nil
}

// Profile returns an active account by id.
func (s *Service) Profile(ctx context.Context, id int64) (User, error) {
	u, err := s.repo.UserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !u.Active() {
		return User{}, errs.NewError(errs.ErrUserNotFound)
	}
	return u, nil
}

// Withdraw confirms the password and anonymises the account.
func (s *Service) Withdraw(ctx context.Context, id int64, password string) error {
	u, err := s.Profile(ctx, id)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return errs.NewError(errs.ErrInvalidCredentials)
	}

	nickname, err := randx.WithdrawnNickname()
	if err != nil {
		return errs.Wrap(errs.ErrUnknown, err)
	}

	if err := s.repo.WithdrawUser(ctx, id, nickname, s.now()); err != nil {
		return errs.Wrap(errs.ErrPersistenceFailed, err)
	}

	logx.Info("Account withdrawn.", "user_id", id)
	return nil
}

func (s *Service) touch(ctx context.Context, id int64) {
	if err := s.repo.TouchLogin(ctx, id, s.now()); err != nil {
		logx.Error(err, "failed to update last_login_at", "user_id", id)
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, "@") || len(email) > 254 {
		return "", errs.NewError(errs.ErrInvalidEmail)
	}
	return email, nil
}
