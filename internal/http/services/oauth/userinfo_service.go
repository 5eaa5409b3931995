package oauth

import (
	"context"
	"errors"

	"github.com/dropDatabas3/llavero/internal/domain/repository"
	dto "github.com/dropDatabas3/llavero/internal/http/dto/oauth"
	jwtx "github.com/dropDatabas3/llavero/internal/jwt"
	"github.com/dropDatabas3/llavero/internal/store"
)

// Userinfo endpoint errors.
var (
	ErrUserinfoInvalidToken      = errors.New("invalid_token")
	ErrUserinfoInsufficientScope = errors.New("insufficient_scope")
	ErrUserinfoNoUser            = errors.New("no_user")
)

// UserInfoService serves the OIDC userinfo endpoint from a bearer access token.
type UserInfoService interface {
	UserInfo(ctx context.Context, accessToken string) (*dto.UserInfoResponse, error)
}

// UserInfoDeps contains dependencies for UserInfoService.
type UserInfoDeps struct {
	DAL    *store.DAL
	Issuer *jwtx.Issuer
}

type userInfoService struct {
	dal    *store.DAL
	issuer *jwtx.Issuer
}

// NewUserInfoService creates the userinfo service.
func NewUserInfoService(d UserInfoDeps) UserInfoService {
	return &userInfoService{dal: d.DAL, issuer: d.Issuer}
}

func (s *userInfoService) UserInfo(ctx context.Context, accessToken string) (*dto.UserInfoResponse, error) {
	verified, err := s.issuer.Verify(accessToken)
	if err != nil {
		return nil, ErrUserinfoInvalidToken
	}
	if verified.TokenUse != jwtx.UseAccess || verified.Subject == "" {
		return nil, ErrUserinfoInvalidToken
	}

	// Blacklist check before trusting the signature.
	if listed, err := s.dal.Blacklist.Contains(ctx, verified.JTI); err != nil || listed {
		return nil, ErrUserinfoInvalidToken
	}
	if !hasScope(verified.Scope, "openid") {
		return nil, ErrUserinfoInsufficientScope
	}

	user, err := s.dal.Users.GetByID(ctx, verified.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserinfoNoUser
		}
		return nil, err
	}
	if !user.Active {
		return nil, ErrUserinfoNoUser
	}

	resp := &dto.UserInfoResponse{Sub: user.ID}
	if hasScope(verified.Scope, "email") {
		resp.Email = user.Email
		v := user.EmailVerified
		resp.EmailVerified = &v
	}
	if hasScope(verified.Scope, "profile") {
		resp.Name = user.Name
		resp.PreferredUsername = user.Username
	}
	return resp, nil
}
