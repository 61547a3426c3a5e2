package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverMySQL  = "mysql"
	StoreDriverMemory = "memory"
)

func IntFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func BoolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return def
}

func StringFromEnv(key string, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// LockWaitTimeoutSeconds bounds how long an operation waits for a product or order lock.
//
// Set via env:
// - LOCK_WAIT_TIMEOUT_SECONDS=5
func LockWaitTimeoutSeconds() int {
	n := IntFromEnv("LOCK_WAIT_TIMEOUT_SECONDS", 5)
	if n <= 0 {
		return 5
	}
	return n
}

func LockWaitTimeout() time.Duration {
	return time.Duration(LockWaitTimeoutSeconds()) * time.Second
}

// StoreDriver selects the transactional store: "mysql" (default) or "memory" for local demos.
func StoreDriver() string {
	return strings.ToLower(StringFromEnv("STORE_DRIVER", StoreDriverMySQL))
}

// DefaultPhoneRegion is the libphonenumber region used for numbers without a country prefix.
func DefaultPhoneRegion() string {
	return strings.ToUpper(StringFromEnv("DEFAULT_PHONE_REGION", "RU"))
}

// InvoiceDir is the root directory for locally stored invoice documents.
func InvoiceDir() string {
	return StringFromEnv("INVOICE_DIR", "./storage")
}

// SkipMigrations disables AutoMigrate on startup (run cmd/seed as a separate job instead).
func SkipMigrations() bool {
	return BoolFromEnv("SKIP_MIGRATIONS", false)
}
