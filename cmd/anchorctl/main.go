// anchorctl — клиентская утилита AnchorVault.
// Вычисляет отпечаток файла локально и сверяет его с опубликованным:
// содержимое файла никогда не покидает машину пользователя.
//
//	anchorctl fingerprint <file>
//	anchorctl verify --server URL <public_id> [file]
package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// exitError — ошибка с кодом завершения процесса.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// ExitCode возвращает код завершения.
func (e *exitError) ExitCode() int { return e.code }

// Коды завершения verify.
const (
	exitMismatch = 2
	exitNotFound = 3
)

func main() {
	if err := run(os.Args[1:], os.Stdout, &http.Client{Timeout: 15 * time.Second}); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "ошибка: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, client *http.Client) error {
	if len(args) == 0 {
		printUsage(out)
		return errors.New("не указана команда")
	}

	switch args[0] {
	case "fingerprint":
		return runFingerprint(args[1:], out)
	case "verify":
		return runVerify(args[1:], out, client)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		printUsage(out)
		return fmt.Errorf("неизвестная команда %q", args[0])
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Использование:")
	fmt.Fprintln(out, "  anchorctl fingerprint [--json] <file>")
	fmt.Fprintln(out, "  anchorctl verify --server URL [--digest HEX] <public_id> [file]")
}

// newFlagSet создаёт набор флагов подкоманды с выводом справки в out.
func newFlagSet(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}
