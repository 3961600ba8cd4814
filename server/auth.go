package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/janelia-flyem/mrf/dvid"

	"github.com/golang-jwt/jwt/v4"
	"github.com/zenazn/goji/web"
)

// authConfig holds the JWT secret and an optional file of per-user privileges.
type authConfig struct {
	AuthFile  string `toml:"auth_file"`
	SecretKey string `toml:"secret_key"`
}

// authorizer checks JWTs on requests that modify volumes.
type authorizer struct {
	secret []byte

	// user -> "read", "write" or "readwrite".  "*" matches any user.  If empty,
	// any validly signed token is authorized.
	users map[string]string
}

func newAuthorizer(c authConfig) (*authorizer, error) {
	a := &authorizer{secret: []byte(c.SecretKey)}
	if c.SecretKey == "" {
		dvid.Infof("No JWT secret key configured.  Proceeding without authorization.\n")
		return a, nil
	}
	if c.AuthFile == "" {
		return a, nil
	}
	data, err := os.ReadFile(c.AuthFile)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &a.users); err != nil {
		return nil, fmt.Errorf("bad authorization file %s: %v", c.AuthFile, err)
	}
	dvid.Infof("Loaded %d authorized users from %s\n", len(a.users), c.AuthFile)
	return a, nil
}

// GenerateJWT returns a JWT for the user signed with the secret key.
func GenerateJWT(secretKey, user string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user": user})
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("error with JWT signing: %v", err)
	}
	return tokenString, nil
}

func readRequest(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// isAuthorized is middleware that validates a JWT on write requests and sets the
// c.Env["user"] field to the authenticated user.
func (a *authorizer) isAuthorized(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		if len(a.secret) == 0 || readRequest(r.Method) {
			h.ServeHTTP(w, r)
			return
		}
		reqToken := r.Header.Get("Authorization")
		if len(reqToken) == 0 {
			Unauthorized(w, r, "JWT required via Authorization in request header")
			return
		}
		splitToken := strings.Split(reqToken, "Bearer")
		if len(splitToken) != 2 {
			Unauthorized(w, r, "bearer not in proper format")
			return
		}
		reqToken = strings.TrimSpace(splitToken[1])
		if len(reqToken) == 0 {
			Unauthorized(w, r, "requests require JWT authentication")
			return
		}
		token, err := jwt.Parse(reqToken, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("error signing method: %v", token.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil {
			Unauthorized(w, r, "error parsing JWT: %v", err)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			Unauthorized(w, r, "failed authorization")
			return
		}
		user, ok := claims["user"].(string)
		if !ok {
			Unauthorized(w, r, "user %v is not a simple string", claims["user"])
			return
		}
		if !a.userAuthorized(user, r.Method) {
			Unauthorized(w, r, "user %q is not authorized", user)
			return
		}
		if c.Env == nil {
			c.Env = make(map[interface{}]interface{})
		}
		c.Env["user"] = user
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// userAuthorized returns true if the user may make the request.
func (a *authorizer) userAuthorized(user string, httpMethod string) bool {
	if len(a.users) == 0 {
		return true
	}
	readReq := readRequest(httpMethod)
	priv, found := a.users[user]
	if !found {
		priv, found = a.users["*"]
		if !found {
			return false
		}
	}
	switch priv {
	case "readwrite":
		return true
	case "read":
		return readReq
	case "write":
		return !readReq
	default:
		dvid.Errorf("Authorized user %q has unparsable privilege %q\n", user, priv)
		return false
	}
}
