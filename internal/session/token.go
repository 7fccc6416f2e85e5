package session

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// UserIDFromToken reads the user_id claim without verifying the signature;
// the clinic API is the one that verifies it.
func UserIDFromToken(token string) (int64, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoUserID, err)
	}

	switch v := claims["user_id"].(type) {
	case float64:
		if v > 0 {
			return int64(v), nil
		}
	case json.Number:
		if id, err := v.Int64(); err == nil && id > 0 {
			return id, nil
		}
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return id, nil
		}
	}
	return 0, ErrNoUserID
}
