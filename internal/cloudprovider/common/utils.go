package common

import (
	"fmt"
	"os"
	"strings"
)

// GetAccessKeyOrSecretFromPath reads a credential from a mounted secret file.
func GetAccessKeyOrSecretFromPath(filePath string) (string, error) {
	if filePath == "" {
		return "", fmt.Errorf("no credential file path provided")
	}
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bytes)), nil
}
