package auth_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/doorman/auth"
	"github.com/jmcleod/doorman/password"
	"github.com/jmcleod/doorman/session"
	"github.com/jmcleod/doorman/storage/memory"
	"github.com/jmcleod/doorman/token"
	"github.com/jmcleod/doorman/users"
)

type sentMail struct {
	user  *auth.User
	token string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (f *fakeMailer) EnqueueReset(_ context.Context, u *auth.User, tok string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{user: u, token: tok})
}

func (f *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "expected a reset mail")
	return f.sent[len(f.sent)-1]
}

type env struct {
	users    *users.Store
	sessions *session.MemoryStore
	signer   *token.Signer
	tokens   *token.Service
	mailer   *fakeMailer
	manager  *auth.SessionManager
	reset    *auth.PasswordReset
	alice    *auth.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	h, err := password.NewHasher(password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	us, err := users.NewStore(memory.NewRepository(), h, bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	signer, err := token.NewSigner(bytes.Repeat([]byte{0x02}, 32))
	require.NoError(t, err)

	e := &env{
		users:    us,
		sessions: session.NewMemoryStore(time.Hour),
		signer:   signer,
		mailer:   &fakeMailer{},
	}
	e.tokens = token.NewService(signer, us, 15*time.Minute)
	e.manager = auth.NewSessionManager(us, e.sessions)
	e.reset = auth.NewPasswordReset(us, e.tokens, e.mailer, nil)

	e.alice, err = us.Create(context.Background(), "a@x.com", "OldPass1!", "OldPass1!")
	require.NoError(t, err)
	return e
}

func TestLoginSuccessCreatesOneSession(t *testing.T) {
	e := newEnv(t)
	rc := &auth.RequestContext{}

	sess, err := e.manager.Login(context.Background(), rc, "a@x.com", "OldPass1!")
	require.NoError(t, err)
	assert.Equal(t, e.alice.ID, sess.UserID)
	assert.True(t, rc.LoggedIn())
	assert.NotEmpty(t, rc.SessionToken)
	assert.Equal(t, 1, e.sessions.Len())

	u, err := e.manager.CurrentUser(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)
}

func TestLoginRotatesExistingSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rc := &auth.RequestContext{}

	_, err := e.manager.Login(ctx, rc, "a@x.com", "OldPass1!")
	require.NoError(t, err)
	first := rc.SessionToken

	_, err = e.manager.Login(ctx, rc, "a@x.com", "OldPass1!")
	require.NoError(t, err)
	assert.NotEqual(t, first, rc.SessionToken)
	assert.Equal(t, 1, e.sessions.Len())
	_, ok := e.sessions.Get(ctx, first)
	assert.False(t, ok)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rcWrong := &auth.RequestContext{}
	_, errWrong := e.manager.Login(ctx, rcWrong, "a@x.com", "nope")
	rcUnknown := &auth.RequestContext{}
	_, errUnknown := e.manager.Login(ctx, rcUnknown, "ghost@x.com", "OldPass1!")

	assert.ErrorIs(t, errWrong, auth.ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknown, auth.ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
	assert.Equal(t, *rcWrong, *rcUnknown)
	assert.False(t, rcWrong.LoggedIn())
	assert.Equal(t, 0, e.sessions.Len())
}

// countingUsers records which users VerifyCredential was asked about.
type countingUsers struct {
	*users.Store
	mu       sync.Mutex
	verified []*auth.User
}

func (c *countingUsers) VerifyCredential(ctx context.Context, u *auth.User, pw string) (bool, error) {
	c.mu.Lock()
	c.verified = append(c.verified, u)
	c.mu.Unlock()
	return c.Store.VerifyCredential(ctx, u, pw)
}

func TestLoginUnknownEmailStillVerifies(t *testing.T) {
	e := newEnv(t)
	counting := &countingUsers{Store: e.users}
	manager := auth.NewSessionManager(counting, e.sessions)

	_, err := manager.Login(context.Background(), &auth.RequestContext{}, "ghost@x.com", "OldPass1!")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	require.Len(t, counting.verified, 1, "a lookup miss must pay for a password check")
	assert.Nil(t, counting.verified[0])
}

func TestFailedLoginKeepsExistingSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rc := &auth.RequestContext{}
	_, err := e.manager.Login(ctx, rc, "a@x.com", "OldPass1!")
	require.NoError(t, err)
	tok := rc.SessionToken

	_, err = e.manager.Login(ctx, rc, "a@x.com", "bad")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, tok, rc.SessionToken)
}

func TestLogoutIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rc := &auth.RequestContext{}
	_, err := e.manager.Login(ctx, rc, "a@x.com", "OldPass1!")
	require.NoError(t, err)
	tok := rc.SessionToken

	e.manager.Logout(ctx, rc)
	assert.False(t, rc.LoggedIn())
	assert.Empty(t, rc.SessionToken)
	_, ok := e.sessions.Get(ctx, tok)
	assert.False(t, ok)

	e.manager.Logout(ctx, rc)
	assert.False(t, rc.LoggedIn())

	anon := &auth.RequestContext{}
	e.manager.Logout(ctx, anon)
	assert.False(t, anon.LoggedIn())
}

func TestResume(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rc := &auth.RequestContext{}
	_, err := e.manager.Login(ctx, rc, "a@x.com", "OldPass1!")
	require.NoError(t, err)

	next := &auth.RequestContext{}
	assert.True(t, e.manager.Resume(ctx, next, rc.SessionToken))
	assert.Equal(t, e.alice.ID, next.Session.UserID)
	assert.False(t, next.Session.LastAccessedAt.Before(rc.Session.LastAccessedAt))

	assert.False(t, e.manager.Resume(ctx, &auth.RequestContext{}, "bogus"))
	assert.False(t, e.manager.Resume(ctx, &auth.RequestContext{}, ""))

	_, err = e.manager.CurrentUser(ctx, &auth.RequestContext{})
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestRequestResetAcknowledgementIsUniform(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	absent := e.reset.RequestReset(ctx, "ghost@x.com")
	assert.Empty(t, e.mailer.sent, "no mail for unknown email")

	present := e.reset.RequestReset(ctx, "a@x.com")
	assert.Equal(t, absent, present)
	assert.Equal(t, auth.NoticeResetRequested, present)
	require.Len(t, e.mailer.sent, 1)
	assert.Equal(t, e.alice.ID, e.mailer.sent[0].user.ID)
}

func TestTokenGate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	t.Run("Garbage", func(t *testing.T) {
		rc := &auth.RequestContext{}
		_, err := e.reset.ResolveTokenGate(ctx, rc, "garbage-token")
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
		assert.Nil(t, rc.ResetUser)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := e.reset.ResolveTokenGate(ctx, &auth.RequestContext{}, "")
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("WrongPurpose", func(t *testing.T) {
		tok, err := e.tokens.Issue("email_confirmation", e.alice)
		require.NoError(t, err)
		_, err = e.reset.ResolveTokenGate(ctx, &auth.RequestContext{}, tok)
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("Expired", func(t *testing.T) {
		tok, err := e.signer.Sign(auth.PurposePasswordReset, e.alice.ID, e.alice.CredentialVersion, -time.Minute)
		require.NoError(t, err)
		_, err = e.reset.ResolveTokenGate(ctx, &auth.RequestContext{}, tok)
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("Valid", func(t *testing.T) {
		tok, err := e.tokens.Issue(auth.PurposePasswordReset, e.alice)
		require.NoError(t, err)
		rc := &auth.RequestContext{}
		u, err := e.reset.ResolveTokenGate(ctx, rc, tok)
		require.NoError(t, err)
		assert.Equal(t, e.alice.ID, u.ID)
		assert.Same(t, u, rc.ResetUser)
	})
}

func TestSubmitUpdateRequiresGate(t *testing.T) {
	e := newEnv(t)
	err := e.reset.SubmitUpdate(context.Background(), &auth.RequestContext{}, "NewPass1!", "NewPass1!")
	assert.ErrorIs(t, err, auth.ErrNoResetUser)
}

func TestSubmitUpdateMismatchLeavesCredential(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.reset.RequestReset(ctx, "a@x.com")
	rc := &auth.RequestContext{}
	_, err := e.reset.ResolveTokenGate(ctx, rc, e.mailer.last(t).token)
	require.NoError(t, err)

	err = e.reset.SubmitUpdate(ctx, rc, "NewPass1!", "Other")
	var verrs auth.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []string{auth.MsgNoMatch}, verrs.On("password_confirmation"))

	_, err = e.manager.Login(ctx, &auth.RequestContext{}, "a@x.com", "OldPass1!")
	assert.NoError(t, err, "old password still valid")

	_, err = e.reset.ResolveTokenGate(ctx, &auth.RequestContext{}, e.mailer.last(t).token)
	assert.NoError(t, err, "token survives a rejected update")
}

func TestPasswordResetEndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	assert.Equal(t, auth.NoticeResetRequested, e.reset.RequestReset(ctx, "a@x.com"))
	tok := e.mailer.last(t).token

	rc := &auth.RequestContext{}
	_, err := e.reset.ResolveTokenGate(ctx, rc, tok)
	require.NoError(t, err)
	require.NoError(t, e.reset.SubmitUpdate(ctx, rc, "NewPass1!", "NewPass1!"))
	assert.False(t, rc.LoggedIn(), "reset does not log the user in")

	_, err = e.manager.Login(ctx, &auth.RequestContext{}, "a@x.com", "NewPass1!")
	assert.NoError(t, err)
	_, err = e.manager.Login(ctx, &auth.RequestContext{}, "a@x.com", "OldPass1!")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = e.reset.ResolveTokenGate(ctx, &auth.RequestContext{}, tok)
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken, "redeemed token is spent")
}

func TestResetTokenRedeemedOnceAcrossRequests(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.reset.RequestReset(ctx, "a@x.com")
	tok := e.mailer.last(t).token

	// Both requests pass the gate before either one writes.
	first, second := &auth.RequestContext{}, &auth.RequestContext{}
	_, err := e.reset.ResolveTokenGate(ctx, first, tok)
	require.NoError(t, err)
	_, err = e.reset.ResolveTokenGate(ctx, second, tok)
	require.NoError(t, err)

	require.NoError(t, e.reset.SubmitUpdate(ctx, first, "FirstPass1!", "FirstPass1!"))
	err = e.reset.SubmitUpdate(ctx, second, "SecondPass1!", "SecondPass1!")
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	assert.Nil(t, second.ResetUser)

	_, err = e.manager.Login(ctx, &auth.RequestContext{}, "a@x.com", "FirstPass1!")
	assert.NoError(t, err)
	_, err = e.manager.Login(ctx, &auth.RequestContext{}, "a@x.com", "SecondPass1!")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestValidatePassword(t *testing.T) {
	assert.Empty(t, auth.ValidatePassword("pw", "pw"))

	errs := auth.ValidatePassword("", "")
	assert.Equal(t, map[string][]string{
		"password":              {auth.MsgBlank},
		"password_confirmation": {auth.MsgBlank},
	}, errs.ByField())

	errs = auth.ValidatePassword("pw", "")
	assert.Equal(t, []string{auth.MsgBlank}, errs.On("password_confirmation"))
	assert.Contains(t, errs.Error(), "password_confirmation can't be blank")
}
