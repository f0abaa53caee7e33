/*
Package randx generates cryptographically secure random display names.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	nicknameRandomLength  = 6
	withdrawnRandomLength = 10
)

// Base62 returns n random Base62 characters read from crypto/rand.
func Base62(n int) (string, error) {
	result := make([]byte, n)

	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// UserNickname generates a random nickname with a "User_" prefix and 6 random Base62 characters.
func UserNickname() (string, error) {
	s, err := Base62(nicknameRandomLength)
	if err != nil {
		return "", err
	}
	return "User_" + s, nil
}

// WithdrawnNickname generates the anonymised nickname given to a withdrawn account.
func WithdrawnNickname() (string, error) {
	s, err := Base62(withdrawnRandomLength)
	if err != nil {
		return "", err
	}
	return "withdrawn_" + s, nil
}
