package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aussiebroadwan/trustline/pkg/cryptox"
)

var ErrEmptyPassword = errors.New("empty password")

// HashPassword reads one password line from r and writes its argon2id
// encoding to w, peppered the same way the running service verifies it. The
// output is a passwordHash value for the AUTH_USERS_FILE seed.
func HashPassword(r io.Reader, w io.Writer, pepperFile string) error {
	cryptox.SetPepperPath(pepperFile)
	if err := cryptox.LoadPepper(); err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return ErrEmptyPassword
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}
