// Command hash-generator prints the bcrypt hash of an admin key for use as
// STUDIO_AUTH_ADMIN_KEY_HASH. The key is read from the first argument or, when no
// argument is given, from the first line of stdin.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	key, err := readKey(os.Args[1:], os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash-generator: %v\n", err)
		os.Exit(1)
	}

	hash, err := hashKey(key, bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash-generator: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func readKey(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return validateKey(args[0])
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read admin key: %w", err)
	}
	return validateKey(strings.TrimRight(line, "\r\n"))
}

func validateKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("admin key cannot be empty")
	}
	// bcrypt ignores everything past 72 bytes.
	if len(key) > 72 {
		return "", errors.New("admin key must be at most 72 bytes")
	}
	return key, nil
}

func hashKey(key string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin key: %w", err)
	}
	return string(hash), nil
}
