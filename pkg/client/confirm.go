package client

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// Confirm prompts the user with a yes/no question before a destructive
// command (`kill`), grounded on pkg/util/password.go's PromptYesNo.
func Confirm(prompt string) (bool, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return false, fmt.Errorf("interactive confirmation requires a terminal")
	}

	fmt.Fprint(os.Stderr, prompt+" (y/n): ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}
