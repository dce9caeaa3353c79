package index

import "crypto/rand"

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
const idLength = 10

// GenerateID returns a 10-character id from a 62-symbol alphabet, giving
// ~60 bits of entropy — sufficient for this single-tenant scope (§9). No
// dedup check is performed here; callers retry on a UNIQUE violation.
func GenerateID() (string, error) {
	return generateID()
}

func generateID() (string, error) {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, idLength)
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(out), nil
}
