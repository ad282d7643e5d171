package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// NewWorkerID returns an identifier unique enough to key heartbeats:
// hostname, pid, and a random suffix.
func NewWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "reminder-worker"
	}
	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		copy(suffix, []byte{1, 2, 3, 4, 5, 6})
	}
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(suffix))
}
