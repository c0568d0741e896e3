package middleware

import (
	"net/http"
)

// publicPaths stay reachable without a session cookie so probes and scrapers keep working.
var publicPaths = map[string]bool{
	"/auth/login": true,
	"/metrics":    true,
	"/healthz":    true,
}

// AuthMiddleware sprawdza, czy użytkownik jest zalogowany (ma cookie 'authenticated=true').
// With an empty password every request passes.
func AuthMiddleware(password string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if password == "" || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie("authenticated")
		if err != nil || cookie.Value != "true" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
