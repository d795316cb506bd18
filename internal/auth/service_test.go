package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type AuthServiceTestSuite struct {
	suite.Suite
	service *Service
}

func (suite *AuthServiceTestSuite) SetupTest() {
	db, err := database.OpenMemory(suite.T().Name())
	require.NoError(suite.T(), err)
	database.DB = db

	suite.service = NewService([]byte("test_jwt_secret_key"), time.Hour,
		NewAdminRegistry([]string{"admin@orkut.com"}, ""))
}

func (suite *AuthServiceTestSuite) TearDownTest() {
	_ = database.Close()
}

func (suite *AuthServiceTestSuite) register(email, username string) *AuthResponse {
	resp, err := suite.service.Register(RegisterRequest{
		Email:       email,
		Username:    username,
		Password:    "saudades2004",
		DisplayName: "Test " + username,
	})
	require.NoError(suite.T(), err)
	return resp
}

func (suite *AuthServiceTestSuite) TestRegisterAndLogin() {
	t := suite.T()
	resp := suite.register("Maria@Orkut.com", "maria")
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "maria@orkut.com", resp.User.Email)
	assert.False(t, resp.IsAdmin)

	login, err := suite.service.Login(LoginRequest{Email: "maria@orkut.com", Password: "saudades2004"})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, login.User.ID)

	_, err = suite.service.Login(LoginRequest{Email: "maria@orkut.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = suite.service.Login(LoginRequest{Email: "nobody@orkut.com", Password: "x"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func (suite *AuthServiceTestSuite) TestRegisterDuplicates() {
	t := suite.T()
	suite.register("joao@orkut.com", "joao")

	_, err := suite.service.Register(RegisterRequest{Email: "JOAO@orkut.com", Username: "joao2", Password: "12345678", DisplayName: "J"})
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = suite.service.Register(RegisterRequest{Email: "other@orkut.com", Username: "JOAO", Password: "12345678", DisplayName: "J"})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func (suite *AuthServiceTestSuite) TestValidateToken() {
	t := suite.T()
	resp := suite.register("admin@orkut.com", "root")
	assert.True(t, resp.IsAdmin)

	profile, err := suite.service.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, profile.ID)

	claims, err := suite.service.ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, ScopeUser, claims.Scope)
	assert.True(t, claims.IsAdmin)

	_, err = suite.service.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func (suite *AuthServiceTestSuite) TestAdminToken() {
	t := suite.T()
	_, _, err := suite.service.GenerateAdminToken("someone@orkut.com")
	assert.ErrorIs(t, err, ErrNotAdmin)

	token, expiresAt, err := suite.service.GenerateAdminToken("Admin@Orkut.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := suite.service.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, ScopeAdmin, claims.Scope)
	assert.Equal(t, "admin@orkut.com", claims.Email)
	assert.True(t, claims.IsAdmin)

	// admin tokens cannot be used as profile tokens
	_, err = suite.service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func (suite *AuthServiceTestSuite) TestExpiredAndForeignTokens() {
	t := suite.T()
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u1",
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := expired.SignedString([]byte("test_jwt_secret_key"))
	require.NoError(t, err)
	_, err = suite.service.ParseToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u1",
		"exp":     time.Now().Add(time.Minute).Unix(),
	})
	signed, err = foreign.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = suite.service.ParseToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
