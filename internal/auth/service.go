// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nozz/vouch/internal/dispatch"
)

// QREncoder renders text as a PNG QR code.
type QREncoder interface {
	Encode(content string, size int) ([]byte, error)
}

// ServiceConfig controls the authentication flows.
type ServiceConfig struct {
	Mode   Mode
	Issuer string
	// MinPasswordLen and MaxPasswordLen bound accepted passwords.
	MinPasswordLen int
	MaxPasswordLen int
	// SessionsEnabled turns persisted sessions (and auto-login from
	// them) on.
	SessionsEnabled bool
	// SessionLifetime is how long a persisted session stays valid.
	SessionLifetime time.Duration
	// BindSessionToOrigin restricts restore to sessions issued to the
	// connecting origin. When false any unexpired session admits the
	// player.
	BindSessionToOrigin bool
	// QRSize is the pixel edge of enrollment QR images.
	QRSize int
}

// DefaultServiceConfig returns the production flow settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Mode:                DefaultMode,
		Issuer:              "vouch",
		MinPasswordLen:      4,
		MaxPasswordLen:      64,
		SessionsEnabled:     true,
		SessionLifetime:     30 * 24 * time.Hour,
		BindSessionToOrigin: true,
		QRSize:              256,
	}
}

// Service orchestrates the authentication flows over the session
// manager, the credential store, and the crypto primitives.
//
// Every operation must be invoked on the primary loop and reports its
// terminal result through a callback, also on the loop. Blocking work
// runs on the worker executor; each continuation re-checks that the
// player's session still exists before touching state, and drops
// silently when the player left mid-flight.
type Service struct {
	config   ServiceConfig
	manager  *Manager
	accounts AccountRepository
	sessions SessionRepository
	hasher   *AsyncHasher
	totp     *TOTPEngine
	limiter  *RateLimiter
	qr       QREncoder

	display    Display
	disconnect DisconnectFunc
	metrics    *Metrics
	loop       dispatch.Executor
	workers    dispatch.Executor
	logger     *slog.Logger
}

// ServiceDeps carries the collaborators a Service needs.
type ServiceDeps struct {
	Manager    *Manager
	Accounts   AccountRepository
	Sessions   SessionRepository
	Hasher     *AsyncHasher
	TOTP       *TOTPEngine
	Limiter    *RateLimiter
	QR         QREncoder
	Display    Display
	Disconnect DisconnectFunc
	Metrics    *Metrics
	Loop       dispatch.Executor
	Workers    dispatch.Executor
	Logger     *slog.Logger
}

// NewService creates the authentication service. Display, Metrics, QR,
// and Logger may be nil.
func NewService(config ServiceConfig, deps ServiceDeps) *Service {
	def := DefaultServiceConfig()
	if config.Issuer == "" {
		config.Issuer = def.Issuer
	}
	if config.MinPasswordLen <= 0 {
		config.MinPasswordLen = def.MinPasswordLen
	}
	if config.MaxPasswordLen <= 0 {
		config.MaxPasswordLen = def.MaxPasswordLen
	}
	if config.SessionLifetime <= 0 {
		config.SessionLifetime = def.SessionLifetime
	}
	if config.QRSize <= 0 {
		config.QRSize = def.QRSize
	}
	if deps.Display == nil {
		deps.Display = NopDisplay{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		config:     config,
		manager:    deps.Manager,
		accounts:   deps.Accounts,
		sessions:   deps.Sessions,
		hasher:     deps.Hasher,
		totp:       deps.TOTP,
		limiter:    deps.Limiter,
		qr:         deps.QR,
		display:    deps.Display,
		disconnect: deps.Disconnect,
		metrics:    deps.Metrics,
		loop:       deps.Loop,
		workers:    deps.Workers,
		logger:     deps.Logger,
	}
}

func emit(done func(Result), r Result) {
	if done != nil {
		done(r)
	}
}

// HandleConnect registers a freshly connected player as pending and,
// when persisted sessions are enabled, admits them automatically if an
// unexpired session exists. With BindSessionToOrigin set only sessions
// issued to the connecting origin count.
func (s *Service) HandleConnect(ctx context.Context, playerID ulid.ULID, name, origin string) {
	s.manager.BeginPending(playerID, name, origin)
	if !s.config.SessionsEnabled {
		return
	}
	s.workers.Dispatch(func() {
		var (
			ok  bool
			err error
		)
		if s.config.BindSessionToOrigin {
			ok, err = s.sessions.HasValid(ctx, playerID, origin, time.Now())
		} else {
			ok, err = s.sessions.HasAnyValid(ctx, playerID, time.Now())
		}
		s.loop.Dispatch(func() {
			if err != nil {
				s.logger.Warn("persisted session lookup failed",
					"player_id", playerID, "error", err)
				return
			}
			if !ok || !s.manager.IsPending(playerID) {
				return
			}
			if s.manager.AuthenticateRestored(playerID, name, origin) == nil {
				return
			}
			s.display.NotifyLoginSuccess(playerID)
			s.metrics.LoginAttempt("restored")
			s.touchLastLogin(ctx, playerID, origin)
			s.logger.Info("session restored", "player_id", playerID, "origin", origin)
		})
	})
}

// HandleDisconnect drops the player's session when their connection
// closes.
func (s *Service) HandleDisconnect(playerID ulid.ULID) {
	s.manager.Remove(playerID)
}

// Register creates an account with a password and authenticates the
// player. In code-only mode registration goes through BeginEnrollment
// instead.
func (s *Service) Register(ctx context.Context, playerID ulid.ULID, password, confirm string, done func(Result)) {
	if !s.config.Mode.UsesPassword() {
		emit(done, Result{Outcome: OutcomeModeDisabled})
		return
	}
	sess, res := s.preAttemptCheck(playerID)
	if sess == nil {
		emit(done, res)
		return
	}
	if password != confirm {
		sess.RecordFailedAttempt()
		emit(done, Result{Outcome: OutcomePasswordMismatch})
		return
	}
	if len(password) < s.config.MinPasswordLen {
		emit(done, Result{Outcome: OutcomePasswordTooShort})
		return
	}
	if len(password) > s.config.MaxPasswordLen {
		emit(done, Result{Outcome: OutcomePasswordTooLong})
		return
	}

	origin := sess.Origin
	s.workers.Dispatch(func() {
		registered, err := s.accounts.IsRegistered(ctx, playerID)
		s.loop.Dispatch(func() {
			if s.dropIfGone(playerID, "register") {
				return
			}
			if err != nil {
				s.storageFailure("checking registration", playerID, err, done)
				return
			}
			if registered {
				emit(done, Result{Outcome: OutcomeAlreadyRegistered})
				return
			}
			s.hasher.Hash(password, func(encoded string, err error) {
				if s.dropIfGone(playerID, "register") {
					return
				}
				if err != nil {
					s.storageFailure("hashing password", playerID, err, done)
					return
				}
				s.createAccount(ctx, playerID, origin, &Account{
					PlayerID:     playerID,
					Name:         s.manager.Session(playerID).Name,
					PasswordHash: encoded,
					CreatedAt:    time.Now(),
				}, done)
			})
		})
	})
}

func (s *Service) createAccount(ctx context.Context, playerID ulid.ULID, origin string, acct *Account, done func(Result)) {
	s.workers.Dispatch(func() {
		err := s.accounts.Create(ctx, acct)
		s.loop.Dispatch(func() {
			if s.dropIfGone(playerID, "register") {
				return
			}
			if errors.Is(err, ErrAlreadyRegistered) {
				emit(done, Result{Outcome: OutcomeAlreadyRegistered})
				return
			}
			if err != nil {
				s.storageFailure("creating account", playerID, err, done)
				return
			}
			s.limiter.RecordSuccess(origin)
			s.manager.Authenticate(playerID)
			s.display.NotifyRegisterSuccess(playerID)
			s.metrics.Registration()
			s.logger.Info("account registered", "player_id", playerID, "name", acct.Name)
			s.finishLogin(ctx, playerID, origin, done)
		})
	})
}

// Login verifies a password and either authenticates the player or
// requests their one-time code.
func (s *Service) Login(ctx context.Context, playerID ulid.ULID, password string, done func(Result)) {
	if !s.config.Mode.UsesPassword() {
		emit(done, Result{Outcome: OutcomeModeDisabled})
		return
	}
	sess, res := s.preAttemptCheck(playerID)
	if sess == nil {
		emit(done, res)
		return
	}
	origin := sess.Origin

	s.workers.Dispatch(func() {
		acct, err := s.accounts.Get(ctx, playerID)
		s.loop.Dispatch(func() {
			if s.dropIfGone(playerID, "login") {
				return
			}
			if errors.Is(err, ErrAccountNotFound) {
				emit(done, Result{Outcome: OutcomeNotRegistered})
				return
			}
			if err != nil {
				s.storageFailure("loading account", playerID, err, done)
				return
			}
			s.hasher.Verify(password, acct.PasswordHash, func(ok bool) {
				if s.dropIfGone(playerID, "login") {
					return
				}
				sess := s.manager.Session(playerID)
				if !ok {
					s.failedAttempt(sess, origin)
					s.metrics.LoginAttempt("wrong_credential")
					emit(done, Result{Outcome: OutcomeWrongCredential})
					return
				}
				s.limiter.RecordSuccess(origin)
				if s.config.Mode.UsesSecondFactor() && acct.SecondFactorEnabled() {
					sess.SetSecondFactorEnabled(true)
					sess.RequireSecondFactor()
					s.metrics.LoginAttempt("second_factor_required")
					emit(done, Result{Outcome: OutcomeSecondFactorRequired})
					return
				}
				s.manager.Authenticate(playerID)
				s.display.NotifyLoginSuccess(playerID)
				s.metrics.LoginAttempt("success")
				s.finishLogin(ctx, playerID, origin, done)
			})
		})
	})
}

// LoginWithCode authenticates a player directly with a one-time code.
// Only offered in code-only mode.
func (s *Service) LoginWithCode(ctx context.Context, playerID ulid.ULID, code string, done func(Result)) {
	if s.config.Mode != ModeSecondFactorOnly {
		emit(done, Result{Outcome: OutcomeModeDisabled})
		return
	}
	sess, res := s.preAttemptCheck(playerID)
	if sess == nil {
		emit(done, res)
		return
	}
	if !ValidCodeFormat(code) {
		sess.RecordFailedAttempt()
		emit(done, Result{Outcome: OutcomeInvalidCode})
		return
	}
	origin := sess.Origin

	s.workers.Dispatch(func() {
		acct, err := s.accounts.Get(ctx, playerID)
		s.loop.Dispatch(func() {
			if s.dropIfGone(playerID, "code login") {
				return
			}
			if errors.Is(err, ErrAccountNotFound) {
				emit(done, Result{Outcome: OutcomeNotRegistered})
				return
			}
			if err != nil {
				s.storageFailure("loading account", playerID, err, done)
				return
			}
			if !acct.SecondFactorEnabled() {
				emit(done, Result{Outcome: OutcomeSecondFactorNotEnabled})
				return
			}
			sess := s.manager.Session(playerID)
			if !s.totp.VerifyCode(acct.TOTPSecret, code) {
				s.failedAttempt(sess, origin)
				s.metrics.LoginAttempt("invalid_code")
				emit(done, Result{Outcome: OutcomeInvalidCode})
				return
			}
			s.limiter.RecordSuccess(origin)
			s.manager.Authenticate(playerID)
			s.display.NotifyLoginSuccess(playerID)
			s.metrics.LoginAttempt("success")
			s.finishLogin(ctx, playerID, origin, done)
		})
	})
}

// VerifyCode consumes a one-time code for whichever step is pending,
// an in-flight enrollment or the second step of a password login.
func (s *Service) VerifyCode(ctx context.Context, playerID ulid.ULID, code string, done func(Result)) {
	sess := s.manager.Session(playerID)
	if sess == nil {
		emit(done, Result{Outcome: OutcomeNoSession})
		return
	}
	if wait := sess.CooldownRemaining(); wait > 0 {
		emit(done, Result{Outcome: OutcomeRateLimited, RetryAfter: wait})
		return
	}
	if !ValidCodeFormat(code) {
		sess.RecordFailedAttempt()
		emit(done, Result{Outcome: OutcomeInvalidCode})
		return
	}

	if secret, enrolling := sess.EnrollmentSecret(); enrolling {
		s.confirmEnrollment(ctx, playerID, sess, secret, code, done)
		return
	}
	if sess.AwaitingSecondFactor() {
		s.verifySecondStep(ctx, playerID, code, done)
		return
	}
	emit(done, Result{Outcome: OutcomeNothingPending})
}

// confirmEnrollment checks the first code from the player's app and
// commits the secret, creating the account first for code-only
// registration.
func (s *Service) confirmEnrollment(ctx context.Context, playerID ulid.ULID, sess *PlayerSession, secret, code string, done func(Result)) {
	if !s.totp.VerifyCode(secret, code) {
		sess.RecordFailedAttempt()
		s.display.NotifyWrongCredential(playerID)
		emit(done, Result{Outcome: OutcomeInvalidCode})
		return
	}

	if sess.EnrollmentSecretless() {
		origin := sess.Origin
		s.workers.Dispatch(func() {
			err := s.accounts.Create(ctx, &Account{
				PlayerID:   playerID,
				Name:       sess.Name,
				TOTPSecret: secret,
				CreatedAt:  time.Now(),
			})
			s.loop.Dispatch(func() {
				if s.dropIfGone(playerID, "code registration") {
					return
				}
				if errors.Is(err, ErrAlreadyRegistered) {
					emit(done, Result{Outcome: OutcomeAlreadyRegistered})
					return
				}
				if err != nil {
					s.storageFailure("creating account", playerID, err, done)
					return
				}
				s.limiter.RecordSuccess(origin)
				s.display.RemoveEnrollmentArtifact(playerID)
				s.manager.Authenticate(playerID)
				s.display.NotifyRegisterSuccess(playerID)
				s.metrics.Registration()
				s.logger.Info("account registered with one-time code", "player_id", playerID)
				s.finishLogin(ctx, playerID, origin, done)
			})
		})
		return
	}

	s.workers.Dispatch(func() {
		err := s.accounts.SetTOTPSecret(ctx, playerID, secret)
		s.loop.Dispatch(func() {
			sess := s.manager.Session(playerID)
			if sess == nil {
				s.logger.Debug("player left during enrollment", "player_id", playerID)
				return
			}
			if err != nil {
				s.storageFailure("storing shared secret", playerID, err, done)
				return
			}
			sess.ClearEnrollment()
			sess.SetSecondFactorEnabled(true)
			s.display.RemoveEnrollmentArtifact(playerID)
			s.logger.Info("second factor enabled", "player_id", playerID)
			emit(done, Result{Outcome: OutcomeSecondFactorEnabled})
		})
	})
}

// verifySecondStep checks the code that completes a password login.
func (s *Service) verifySecondStep(ctx context.Context, playerID ulid.ULID, code string, done func(Result)) {
	s.workers.Dispatch(func() {
		acct, err := s.accounts.Get(ctx, playerID)
		s.loop.Dispatch(func() {
			if s.dropIfGone(playerID, "second factor") {
				return
			}
			if err != nil {
				s.storageFailure("loading account", playerID, err, done)
				return
			}
			if !acct.SecondFactorEnabled() {
				emit(done, Result{Outcome: OutcomeSecondFactorNotEnabled})
				return
			}
			sess := s.manager.Session(playerID)
			origin := sess.Origin
			if !s.totp.VerifyCode(acct.TOTPSecret, code) {
				s.failedAttempt(sess, origin)
				s.metrics.LoginAttempt("invalid_code")
				emit(done, Result{Outcome: OutcomeInvalidCode})
				return
			}
			s.limiter.RecordSuccess(origin)
			s.manager.Authenticate(playerID)
			s.display.NotifyLoginSuccess(playerID)
			s.metrics.LoginAttempt("success")
			s.finishLogin(ctx, playerID, origin, done)
		})
	})
}

// BeginEnrollment generates a shared secret and presents it to the
// player. For authenticated players it starts enabling a second
// factor; for pending players in code-only mode it starts
// registration.
func (s *Service) BeginEnrollment(ctx context.Context, playerID ulid.ULID, done func(EnrollmentResult)) {
	finish := func(r EnrollmentResult) {
		if done != nil {
			done(r)
		}
	}
	if !s.config.Mode.UsesSecondFactor() {
		finish(EnrollmentResult{Outcome: OutcomeModeDisabled})
		return
	}
	sess := s.manager.Session(playerID)
	if sess == nil {
		finish(EnrollmentResult{Outcome: OutcomeNoSession})
		return
	}

	if sess.Authenticated() {
		s.beginAuthenticatedEnrollment(ctx, playerID, sess, finish)
		return
	}
	if s.config.Mode != ModeSecondFactorOnly {
		finish(EnrollmentResult{Outcome: OutcomeNotAuthenticated})
		return
	}
	s.beginCodeOnlyRegistration(ctx, playerID, sess, finish)
}

func (s *Service) beginAuthenticatedEnrollment(ctx context.Context, playerID ulid.ULID, sess *PlayerSession, finish func(EnrollmentResult)) {
	s.workers.Dispatch(func() {
		acct, err := s.accounts.Get(ctx, playerID)
		s.loop.Dispatch(func() {
			if s.manager.Session(playerID) == nil {
				s.logger.Debug("player left during enrollment", "player_id", playerID)
				return
			}
			if err != nil {
				s.logger.Error("loading account", "player_id", playerID, "error", err)
				finish(EnrollmentResult{Outcome: OutcomeStorageError})
				return
			}
			if acct.SecondFactorEnabled() {
				finish(EnrollmentResult{Outcome: OutcomeSecondFactorAlreadyEnabled})
				return
			}
			s.presentEnrollment(playerID, sess, false, finish)
		})
	})
}

func (s *Service) beginCodeOnlyRegistration(ctx context.Context, playerID ulid.ULID, sess *PlayerSession, finish func(EnrollmentResult)) {
	s.workers.Dispatch(func() {
		registered, err := s.accounts.IsRegistered(ctx, playerID)
		s.loop.Dispatch(func() {
			if !s.manager.IsPending(playerID) {
				s.logger.Debug("player left during enrollment", "player_id", playerID)
				return
			}
			if err != nil {
				s.logger.Error("checking registration", "player_id", playerID, "error", err)
				finish(EnrollmentResult{Outcome: OutcomeStorageError})
				return
			}
			if registered {
				finish(EnrollmentResult{Outcome: OutcomeAlreadyRegistered})
				return
			}
			s.presentEnrollment(playerID, sess, true, finish)
		})
	})
}

// presentEnrollment mints the secret, stores it unconfirmed on the
// session, and pushes the otpauth URI plus QR image to the display.
func (s *Service) presentEnrollment(playerID ulid.ULID, sess *PlayerSession, secretless bool, finish func(EnrollmentResult)) {
	secret, err := s.totp.GenerateSecret()
	if err != nil {
		s.logger.Error("generating shared secret", "player_id", playerID, "error", err)
		finish(EnrollmentResult{Outcome: OutcomeStorageError})
		return
	}
	sess.BeginEnrollment(secret, secretless)
	uri := s.totp.EnrollmentURI(secret, sess.Name, s.config.Issuer)

	if s.qr == nil {
		s.display.ShowEnrollment(playerID, secret, uri, nil)
		finish(EnrollmentResult{Outcome: OutcomeSuccess, Secret: secret, URI: uri})
		return
	}
	s.workers.Dispatch(func() {
		png, err := s.qr.Encode(uri, s.config.QRSize)
		s.loop.Dispatch(func() {
			if s.manager.Session(playerID) == nil {
				s.logger.Debug("player left during enrollment", "player_id", playerID)
				return
			}
			if err != nil {
				s.logger.Warn("rendering enrollment qr", "player_id", playerID, "error", err)
				png = nil
			}
			s.display.ShowEnrollment(playerID, secret, uri, png)
			finish(EnrollmentResult{Outcome: OutcomeSuccess, Secret: secret, URI: uri, QRPNG: png})
		})
	})
}

// DisableSecondFactor removes the player's second factor after a final
// code check. Only offered where the second factor is optional.
func (s *Service) DisableSecondFactor(ctx context.Context, playerID ulid.ULID, code string, done func(Result)) {
	if !s.config.Mode.SecondFactorOptional() {
		emit(done, Result{Outcome: OutcomeModeDisabled})
		return
	}
	sess := s.manager.Session(playerID)
	if sess == nil {
		emit(done, Result{Outcome: OutcomeNoSession})
		return
	}
	if !sess.Authenticated() {
		emit(done, Result{Outcome: OutcomeNotAuthenticated})
		return
	}
	if !ValidCodeFormat(code) {
		emit(done, Result{Outcome: OutcomeInvalidCode})
		return
	}

	s.workers.Dispatch(func() {
		acct, err := s.accounts.Get(ctx, playerID)
		s.loop.Dispatch(func() {
			if s.manager.Session(playerID) == nil {
				s.logger.Debug("player left mid-flight", "player_id", playerID, "op", "disable second factor")
				return
			}
			if err != nil {
				s.storageFailure("loading account", playerID, err, done)
				return
			}
			if !acct.SecondFactorEnabled() {
				emit(done, Result{Outcome: OutcomeSecondFactorNotEnabled})
				return
			}
			if !s.totp.VerifyCode(acct.TOTPSecret, code) {
				emit(done, Result{Outcome: OutcomeInvalidCode})
				return
			}
			s.workers.Dispatch(func() {
				err := s.accounts.SetTOTPSecret(ctx, playerID, "")
				s.loop.Dispatch(func() {
					sess := s.manager.Session(playerID)
					if sess == nil {
						return
					}
					if err != nil {
						s.storageFailure("clearing shared secret", playerID, err, done)
						return
					}
					sess.SetSecondFactorEnabled(false)
					s.logger.Info("second factor disabled", "player_id", playerID)
					emit(done, Result{Outcome: OutcomeSecondFactorDisabled})
				})
			})
		})
	})
}

// SecondFactorStatus reports whether the player's account has a second
// factor enabled.
func (s *Service) SecondFactorStatus(ctx context.Context, playerID ulid.ULID, done func(enabled bool, err error)) {
	s.workers.Dispatch(func() {
		acct, err := s.accounts.Get(ctx, playerID)
		s.loop.Dispatch(func() {
			if err != nil {
				done(false, err)
				return
			}
			done(acct.SecondFactorEnabled(), nil)
		})
	})
}

// Logout drops the player's persisted sessions and terminates their
// connection.
func (s *Service) Logout(ctx context.Context, playerID ulid.ULID, done func(Result)) {
	sess := s.manager.Session(playerID)
	if sess == nil || !sess.Authenticated() {
		emit(done, Result{Outcome: OutcomeNotAuthenticated})
		return
	}
	s.workers.Dispatch(func() {
		var err error
		if s.sessions != nil {
			_, err = s.sessions.DeleteAllForPlayer(ctx, playerID)
		}
		s.loop.Dispatch(func() {
			if err != nil {
				s.storageFailure("deleting persisted sessions", playerID, err, done)
				return
			}
			s.manager.Remove(playerID)
			if s.disconnect != nil {
				s.disconnect(playerID, DisconnectLoggedOut)
			}
			s.logger.Info("player logged out", "player_id", playerID)
			emit(done, Result{Outcome: OutcomeSuccess})
		})
	})
}

// Unregister deletes a player's account and persisted sessions,
// kicking them if connected. Intended for operators.
func (s *Service) Unregister(ctx context.Context, playerID ulid.ULID, done func(deleted bool, err error)) {
	s.workers.Dispatch(func() {
		deleted, err := s.accounts.Delete(ctx, playerID)
		if err == nil && deleted && s.sessions != nil {
			if _, serr := s.sessions.DeleteAllForPlayer(ctx, playerID); serr != nil {
				s.logger.Warn("deleting persisted sessions", "player_id", playerID, "error", serr)
			}
		}
		s.loop.Dispatch(func() {
			if err == nil && deleted && s.manager.Session(playerID) != nil {
				s.manager.Remove(playerID)
				if s.disconnect != nil {
					s.disconnect(playerID, DisconnectUnregistered)
				}
			}
			if deleted {
				s.logger.Info("account unregistered", "player_id", playerID)
			}
			if done != nil {
				done(deleted, err)
			}
		})
	})
}

// SweepExpiredSessions removes persisted sessions past their expiry.
func (s *Service) SweepExpiredSessions(ctx context.Context, done func(removed int64, err error)) {
	if s.sessions == nil {
		if done != nil {
			done(0, nil)
		}
		return
	}
	s.workers.Dispatch(func() {
		n, err := s.sessions.DeleteExpired(ctx, time.Now())
		s.loop.Dispatch(func() {
			if err != nil {
				s.logger.Error("sweeping expired sessions", "error", err)
			} else if n > 0 {
				s.logger.Info("expired sessions swept", "removed", n)
			}
			if done != nil {
				done(n, err)
			}
		})
	})
}

// preAttemptCheck runs the shared guards in front of every credential
// attempt. A nil session return means the attempt is refused with the
// accompanying result.
func (s *Service) preAttemptCheck(playerID ulid.ULID) (*PlayerSession, Result) {
	sess := s.manager.Session(playerID)
	if sess == nil {
		return nil, Result{Outcome: OutcomeNoSession}
	}
	if sess.Authenticated() {
		return nil, Result{Outcome: OutcomeAlreadyAuthenticated}
	}
	if wait := sess.CooldownRemaining(); wait > 0 {
		return nil, Result{Outcome: OutcomeRateLimited, RetryAfter: wait}
	}
	if wait := s.limiter.BlockRemaining(sess.Origin); wait > 0 {
		s.metrics.LoginAttempt("rate_limited")
		return nil, Result{Outcome: OutcomeRateLimited, RetryAfter: wait}
	}
	return sess, Result{}
}

// finishLogin issues the persisted session token and stamps the login
// time. The player is already authenticated when this runs.
func (s *Service) finishLogin(ctx context.Context, playerID ulid.ULID, origin string, done func(Result)) {
	s.touchLastLogin(ctx, playerID, origin)
	if !s.config.SessionsEnabled || s.sessions == nil {
		emit(done, Result{Outcome: OutcomeSuccess})
		return
	}
	token, err := GenerateToken()
	if err != nil {
		s.logger.Error("issuing session token", "player_id", playerID, "error", err)
		emit(done, Result{Outcome: OutcomeSuccess})
		return
	}
	now := time.Now()
	persisted := &PersistedSession{
		PlayerID:  playerID,
		TokenHash: HashToken(token),
		Origin:    origin,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionLifetime),
	}
	s.workers.Dispatch(func() {
		if err := s.sessions.Create(ctx, persisted); err != nil {
			s.logger.Warn("persisting session", "player_id", playerID, "error", err)
		}
		s.loop.Dispatch(func() {
			emit(done, Result{Outcome: OutcomeSuccess, Token: token})
		})
	})
}

func (s *Service) touchLastLogin(ctx context.Context, playerID ulid.ULID, origin string) {
	now := time.Now()
	s.workers.Dispatch(func() {
		if err := s.accounts.UpdateLastLogin(ctx, playerID, now, origin); err != nil {
			s.logger.Warn("updating last login", "player_id", playerID, "error", err)
		}
	})
}

// failedAttempt applies both limiters and tells the player.
func (s *Service) failedAttempt(sess *PlayerSession, origin string) {
	s.limiter.RecordFailure(origin)
	if sess != nil {
		sess.RecordFailedAttempt()
		s.display.NotifyWrongCredential(sess.PlayerID)
	}
}

// dropIfGone reports whether the player's pending session vanished
// while blocking work was in flight. Continuations stop silently in
// that case.
func (s *Service) dropIfGone(playerID ulid.ULID, op string) bool {
	if s.manager.IsPending(playerID) {
		return false
	}
	s.logger.Debug("player left mid-flight", "player_id", playerID, "op", op)
	return true
}

func (s *Service) storageFailure(what string, playerID ulid.ULID, err error, done func(Result)) {
	s.logger.Error(what, "player_id", playerID, "error", err)
	emit(done, Result{Outcome: OutcomeStorageError})
}
