package security_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dealstream/api/internal/domain"
	"github.com/dealstream/api/internal/security"
)

func newTestIssuer(accessTTL, refreshTTL time.Duration) *security.TokenIssuer {
	return security.NewTokenIssuer(
		"access-secret-key-with-32-chars!",
		"refresh-secret-key-with-32-char!",
		accessTTL,
		refreshTTL,
	)
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	issuer := newTestIssuer(60*time.Minute, 7*24*time.Hour)

	userID := uuid.New()

	pair, err := issuer.Issue(userID, domain.RoleUser)
	if err != nil {
		t.Fatalf("failed to issue token pair: %v", err)
	}

	if pair.AccessToken == "" {
		t.Error("access token is empty")
	}
	if pair.RefreshToken == "" {
		t.Error("refresh token is empty")
	}
	if pair.ExpiresIn != int64((60 * time.Minute).Seconds()) {
		t.Errorf("expires in mismatch: got %d", pair.ExpiresIn)
	}

	claims, err := issuer.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("failed to verify access token: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("user ID mismatch: got %v, want %v", claims.UserID, userID)
	}
	if claims.Role != domain.RoleUser {
		t.Errorf("role mismatch: got %v", claims.Role)
	}

	refreshUserID, err := issuer.VerifyRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("failed to verify refresh token: %v", err)
	}
	if refreshUserID != userID {
		t.Errorf("user ID from refresh token mismatch: got %v, want %v", refreshUserID, userID)
	}
}

func TestTokenIssuer_SecretsAreNotInterchangeable(t *testing.T) {
	issuer := newTestIssuer(60*time.Minute, 7*24*time.Hour)

	pair, err := issuer.Issue(uuid.New(), domain.RoleUser)
	if err != nil {
		t.Fatalf("failed to issue token pair: %v", err)
	}

	// An access token must not verify as a refresh token and vice versa.
	if _, err := issuer.VerifyRefresh(pair.AccessToken); err == nil {
		t.Error("access token verified as refresh token")
	}
	if _, err := issuer.VerifyAccess(pair.RefreshToken); err == nil {
		t.Error("refresh token verified as access token")
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := newTestIssuer(-1*time.Minute, -1*time.Minute)

	pair, err := issuer.Issue(uuid.New(), domain.RoleUser)
	if err != nil {
		t.Fatalf("failed to issue token pair: %v", err)
	}

	if _, err := issuer.VerifyAccess(pair.AccessToken); !errors.Is(err, security.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired for access token, got %v", err)
	}
	if _, err := issuer.VerifyRefresh(pair.RefreshToken); !errors.Is(err, security.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired for refresh token, got %v", err)
	}
}

func TestTokenIssuer_Malformed(t *testing.T) {
	issuer := newTestIssuer(60*time.Minute, 7*24*time.Hour)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := issuer.VerifyAccess(token); !errors.Is(err, security.ErrTokenMalformed) {
			t.Errorf("VerifyAccess(%q): expected ErrTokenMalformed, got %v", token, err)
		}
		if _, err := issuer.VerifyRefresh(token); !errors.Is(err, security.ErrTokenMalformed) {
			t.Errorf("VerifyRefresh(%q): expected ErrTokenMalformed, got %v", token, err)
		}
	}

	// Token signed with a different secret pair must not verify.
	other := security.NewTokenIssuer("other-access-secret-32-chars!!!!", "other-refresh-secret-32-chars!!!", 60*time.Minute, 7*24*time.Hour)
	pair, _ := other.Issue(uuid.New(), domain.RoleUser)

	if _, err := issuer.VerifyAccess(pair.AccessToken); err == nil {
		t.Error("expected error for token signed with different secret, got nil")
	}
}

func TestTokenIssuer_TTLs(t *testing.T) {
	issuer := newTestIssuer(30*time.Minute, 48*time.Hour)

	if issuer.AccessTokenTTL() != 30*time.Minute {
		t.Errorf("access token TTL mismatch: got %v", issuer.AccessTokenTTL())
	}
	if issuer.RefreshTokenTTL() != 48*time.Hour {
		t.Errorf("refresh token TTL mismatch: got %v", issuer.RefreshTokenTTL())
	}
}
