package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opshub/pkg/config"
)

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenNotValidYet = errors.New("token not valid yet")
	ErrTokenMalformed   = errors.New("token is malformed")
	ErrTokenInvalid     = errors.New("token is invalid")
)

// Claims JWT声明，权限不随令牌下发，由服务端按用户解析
type Claims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTManager JWT管理器
type JWTManager struct {
	secret   []byte
	issuer   string
	expireIn time.Duration
	now      func() time.Time
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(cfg *config.JWTConfig) *JWTManager {
	expire := time.Duration(cfg.Expire) * time.Second
	if expire <= 0 {
		expire = 24 * time.Hour
	}
	return &JWTManager{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		expireIn: expire,
		now:      time.Now,
	}
}

// GenerateToken 生成Token
func (m *JWTManager) GenerateToken(userID int64, username string) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expireIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseToken 解析Token
func (m *JWTManager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotValidYet
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// RefreshToken 使用未过期的令牌换取新令牌
func (m *JWTManager) RefreshToken(tokenString string) (*TokenInfo, error) {
	claims, err := m.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	return m.CreateTokenInfo(claims.UserID, claims.Username)
}

// TokenInfo Token信息
type TokenInfo struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// CreateTokenInfo 创建Token信息
func (m *JWTManager) CreateTokenInfo(userID int64, username string) (*TokenInfo, error) {
	token, err := m.GenerateToken(userID, username)
	if err != nil {
		return nil, err
	}

	return &TokenInfo{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(m.expireIn.Seconds()),
	}, nil
}
