package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/requestdata"
)

// AuthService only consumes tokens issued elsewhere: it validates the JWT
// and attaches the principal to the request context. There is no register or
// login surface in this service.
type AuthService interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

type JWTClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	SessionID string `json:"sid,omitempty"`
}

type authService struct {
	log          *logger.Logger
	jwtSecretKey string
}

func NewAuthService(log *logger.Logger, jwtSecretKey string) AuthService {
	serviceLog := log.With("service", "AuthService")
	return &authService{log: serviceLog, jwtSecretKey: jwtSecretKey}
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, fmt.Errorf("empty token")
	}
	parsedToken, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(as.jwtSecretKey), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired(), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return ctx, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := parsedToken.Claims.(*JWTClaims)
	if !ok || !parsedToken.Valid {
		return ctx, fmt.Errorf("invalid or expired JWT token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, fmt.Errorf("invalid user id in token: %w", err)
	}

	role := requestdata.RoleUser
	if claims.Role == string(requestdata.RoleAdmin) {
		role = requestdata.RoleAdmin
	}

	sessionID := uuid.Nil
	if claims.SessionID != "" {
		if parsed, err := uuid.Parse(claims.SessionID); err == nil {
			sessionID = parsed
		}
	}

	rd := &requestdata.RequestData{
		TokenString: tokenString,
		UserID:      userID,
		Role:        role,
		SessionID:   sessionID,
	}
	return requestdata.WithRequestData(ctx, rd), nil
}
