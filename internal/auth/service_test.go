package auth_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/expenseflow/expenseflow/internal"
	"github.com/expenseflow/expenseflow/internal/auth"
	"github.com/expenseflow/expenseflow/internal/user"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Suite")
}

type mockUserStore struct {
	byEmail map[string]*user.User
	byID    map[int64]*user.User
}

func (m *mockUserStore) GetByEmail(email string) (*user.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, internal.ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserStore) GetByID(id int64) (*user.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, internal.ErrUserNotFound
	}
	return u, nil
}

var _ = Describe("AuthService", func() {
	var (
		service  *auth.Service
		tokenGen *auth.JWTTokenGenerator
		store    *mockUserStore
	)

	BeforeEach(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())

		u := &user.User{
			ID:           1,
			Email:        "eve@acme.test",
			Name:         "Eve Employee",
			PasswordHash: string(hash),
			Role:         user.RoleEmployee,
			CompanyID:    1,
		}
		store = &mockUserStore{
			byEmail: map[string]*user.User{u.Email: u},
			byID:    map[int64]*user.User{u.ID: u},
		}
		tokenGen = auth.NewJWTTokenGenerator("access-secret-for-tests-0123456789ab", "refresh-secret-for-tests-0123456789", 15*time.Minute, time.Hour)
		service = auth.NewService(store, tokenGen)
	})

	Describe("Authenticate", func() {
		It("should issue a token pair for valid credentials", func() {
			tokens, err := service.Authenticate(auth.LoginDTO{Email: "eve@acme.test", Password: "correct horse"})

			Expect(err).NotTo(HaveOccurred())
			Expect(tokens.AccessToken).NotTo(BeEmpty())
			Expect(tokens.RefreshToken).NotTo(BeEmpty())

			claims, err := service.ValidateAccessToken(tokens.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.UserID).To(Equal(int64(1)))
			Expect(claims.Email).To(Equal("eve@acme.test"))
		})

		It("should refuse a wrong password", func() {
			_, err := service.Authenticate(auth.LoginDTO{Email: "eve@acme.test", Password: "wrong"})

			Expect(err).To(MatchError(internal.ErrInvalidCredentials))
		})

		It("should refuse an unknown email without leaking existence", func() {
			_, err := service.Authenticate(auth.LoginDTO{Email: "ghost@acme.test", Password: "correct horse"})

			Expect(err).To(MatchError(internal.ErrInvalidCredentials))
		})
	})

	Describe("RefreshTokens", func() {
		It("should rotate the pair from a refresh token", func() {
			tokens, err := service.Authenticate(auth.LoginDTO{Email: "eve@acme.test", Password: "correct horse"})
			Expect(err).NotTo(HaveOccurred())

			rotated, err := service.RefreshTokens(tokens.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(rotated.AccessToken).NotTo(BeEmpty())

			claims, err := service.ValidateAccessToken(rotated.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.UserID).To(Equal(int64(1)))
		})

		It("should refuse garbage tokens", func() {
			_, err := service.RefreshTokens("not-a-jwt")

			Expect(err).To(MatchError(internal.ErrInvalidToken))
		})

		It("should refuse a token for a deleted user", func() {
			token, err := tokenGen.GenerateRefreshToken(999)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.RefreshTokens(token)
			Expect(err).To(MatchError(internal.ErrInvalidToken))
		})
	})

	Describe("JWTTokenGenerator", func() {
		It("should report an expired token as expired", func() {
			expiredGen := auth.NewJWTTokenGenerator("access-secret-for-tests-0123456789ab", "refresh-secret-for-tests-0123456789", 15*time.Minute, time.Hour)
			expiredGen.AccessTokenTTL = -time.Minute

			token, err := expiredGen.GenerateAccessToken(1, "eve@acme.test")
			Expect(err).NotTo(HaveOccurred())

			_, err = expiredGen.ValidateAccessToken(token)
			Expect(err).To(MatchError(internal.ErrTokenExpired))
		})

		It("should refuse a token signed with a different secret", func() {
			otherGen := auth.NewJWTTokenGenerator("another-secret-entirely-0123456789ab", "another-refresh-secret-0123456789ab", 15*time.Minute, time.Hour)
			token, err := otherGen.GenerateAccessToken(1, "eve@acme.test")
			Expect(err).NotTo(HaveOccurred())

			_, err = tokenGen.ValidateAccessToken(token)
			Expect(err).To(MatchError(internal.ErrInvalidToken))
		})

		It("should refuse an access token on the refresh flow", func() {
			token, err := tokenGen.GenerateAccessToken(1, "eve@acme.test")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.RefreshTokens(token)
			Expect(err).To(MatchError(internal.ErrInvalidToken))
		})

		It("should refuse a refresh token on the access flow", func() {
			token, err := tokenGen.GenerateRefreshToken(1)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.ValidateAccessToken(token)
			Expect(err).To(MatchError(internal.ErrInvalidToken))
		})
	})
})
