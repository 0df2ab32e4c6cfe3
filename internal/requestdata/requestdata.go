package requestdata

import (
	"context"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// RequestData is the authenticated principal attached to every request.
// Auth itself is an external collaborator; this service only trusts and
// consumes the parsed token.
type RequestData struct {
	TokenString string
	UserID      uuid.UUID
	Role        Role
	SessionID   uuid.UUID
}

func (rd *RequestData) IsAdmin() bool {
	return rd != nil && rd.Role == RoleAdmin
}

var requestDataKey = struct{}{}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}
