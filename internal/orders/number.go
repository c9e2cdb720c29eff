package orders

import (
	"crypto/rand"
	"fmt"
)

const orderNumberAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewOrderNumber generates a human-shareable order number. The alphabet
// drops lookalike characters so the number survives being read out loud.
func NewOrderNumber() string {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return "UF-" + string(buf)
}
