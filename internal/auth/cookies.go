package auth

import (
	"net/http"
	"time"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
)

// ShouldUseCookies reports whether the client is a browser that should get
// httpOnly cookie auth instead of tokens in the response body. Browsers send
// an Origin header on cross-origin fetches; API clients normally do not.
func ShouldUseCookies(r *http.Request) bool {
	return r.Header.Get("Origin") != ""
}

// SetAuthCookies writes both tokens as httpOnly cookies.
func SetAuthCookies(w http.ResponseWriter, accessToken, refreshToken string, isProduction bool, accessDuration, refreshDuration time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(accessDuration.Seconds()),
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(refreshDuration.Seconds()),
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearAuthCookies expires both auth cookies.
func ClearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
}

// GetAccessTokenFromCookie reads the access token cookie.
func GetAccessTokenFromCookie(r *http.Request) (string, error) {
	c, err := r.Cookie(accessTokenCookie)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// GetRefreshTokenFromCookie reads the refresh token cookie.
func GetRefreshTokenFromCookie(r *http.Request) (string, error) {
	c, err := r.Cookie(refreshTokenCookie)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}
