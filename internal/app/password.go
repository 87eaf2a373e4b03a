package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword と isTerminal は端末に触れずにテストするための差し替え口。
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var errPasswordNotSet = errors.New("user.password is not set and stdin is not a terminal")

// promptPassword はパスワードをエコーなしで端末から読み込む。
// 標準入力が端末でない場合はエラーを返す。
func promptPassword(w io.Writer, username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return "", errPasswordNotSet
	}

	if _, err := fmt.Fprintf(w, "Password for %s: ", username); err != nil {
		return "", err
	}
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	password := strings.TrimSpace(string(pw))
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}
