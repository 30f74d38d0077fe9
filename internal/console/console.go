package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/autoclass/attendd/internal/attend"
	"github.com/autoclass/attendd/internal/model"
	"github.com/autoclass/attendd/internal/poll"
	"github.com/autoclass/attendd/internal/registry"
	"github.com/autoclass/attendd/internal/store"
)

// Console is the interactive management interface. It mutates the shared
// registry and persists every mutation through the account store; cycles it
// triggers go through the poller, which serializes them against timer ticks.
type Console struct {
	reg    *registry.Registry
	store  *store.AccountStore
	svc    *attend.Service
	poller *poll.Poller
	out    io.Writer
}

// New creates a console writing its responses to out.
func New(reg *registry.Registry, accountStore *store.AccountStore, svc *attend.Service, poller *poll.Poller, out io.Writer) *Console {
	return &Console{reg: reg, store: accountStore, svc: svc, poller: poller, out: out}
}

// Run reads commands from in until "exit" or EOF.
func (c *Console) Run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		command := strings.ToLower(strings.TrimSpace(scanner.Text()))

		switch command {
		case "help":
			c.printHelp()
		case "list":
			c.listAccounts()
		case "add":
			c.addAccount(ctx, scanner)
		case "remove":
			c.removeAccount(scanner)
		case "check":
			fmt.Fprintln(c.out, "running a manual check over all accounts...")
			c.poller.RunNow(ctx)
			fmt.Fprintln(c.out, "manual check finished")
		case "exit":
			fmt.Fprintln(c.out, "shutting down...")
			return
		case "":
		default:
			fmt.Fprintf(c.out, "unknown command %q, type 'help' for the command list\n", command)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, "available commands:")
	fmt.Fprintln(c.out, "  list   - list all accounts")
	fmt.Fprintln(c.out, "  add    - add a new account")
	fmt.Fprintln(c.out, "  remove - remove an account")
	fmt.Fprintln(c.out, "  check  - check all courses now")
	fmt.Fprintln(c.out, "  exit   - quit")
	fmt.Fprintln(c.out, "  help   - show this message")
}

func (c *Console) listAccounts() {
	accounts := c.reg.Snapshot()
	if len(accounts) == 0 {
		fmt.Fprintln(c.out, "no accounts registered")
		return
	}
	fmt.Fprintln(c.out, "registered accounts:")
	for i, acct := range accounts {
		acct.Lock()
		status := "logged out"
		if acct.LoggedIn {
			status = "logged in"
		}
		acct.Unlock()
		fmt.Fprintf(c.out, "%d. %s (%s)\n", i+1, model.MaskStudentNumber(acct.StudentNumber), status)
	}
}

// AddAccount registers and persists a new account, then runs its first
// attendance cycle right away.
func (c *Console) AddAccount(ctx context.Context, studentNumber, password string) error {
	acct := model.NewAccount(studentNumber, password)
	if err := c.reg.Add(acct); err != nil {
		return err
	}
	if err := c.store.Save(c.reg); err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	if err := c.svc.ProcessAccount(ctx, acct, time.Now(), uuid.New(), false); err != nil {
		// The account stays registered; the next tick retries.
		fmt.Fprintf(c.out, "first check for %s failed: %v\n", model.MaskStudentNumber(studentNumber), err)
	}
	return nil
}

func (c *Console) addAccount(ctx context.Context, scanner *bufio.Scanner) {
	fmt.Fprintln(c.out, "student number:")
	studentNumber, ok := readLine(scanner)
	if !ok || studentNumber == "" {
		fmt.Fprintln(c.out, "student number must not be empty")
		return
	}
	if _, exists := c.reg.Get(studentNumber); exists {
		fmt.Fprintln(c.out, "that student number is already registered")
		return
	}

	fmt.Fprintln(c.out, "password:")
	password, ok := readLine(scanner)
	if !ok || password == "" {
		fmt.Fprintln(c.out, "password must not be empty")
		return
	}

	if err := c.AddAccount(ctx, studentNumber, password); err != nil {
		fmt.Fprintf(c.out, "failed to add account: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "account %s added\n", model.MaskStudentNumber(studentNumber))
}

func (c *Console) removeAccount(scanner *bufio.Scanner) {
	if c.reg.Len() == 0 {
		fmt.Fprintln(c.out, "no accounts to remove")
		return
	}
	c.listAccounts()

	fmt.Fprintln(c.out, "student number to remove:")
	studentNumber, ok := readLine(scanner)
	if !ok {
		return
	}
	if _, exists := c.reg.Get(studentNumber); !exists {
		fmt.Fprintln(c.out, "no account with that student number")
		return
	}

	fmt.Fprintf(c.out, "remove account %s? (y/n)\n", model.MaskStudentNumber(studentNumber))
	confirm, _ := readLine(scanner)
	switch strings.ToLower(confirm) {
	case "y", "yes":
		if err := c.reg.Remove(studentNumber); err != nil {
			fmt.Fprintf(c.out, "failed to remove account: %v\n", err)
			return
		}
		if err := c.store.Save(c.reg); err != nil {
			fmt.Fprintf(c.out, "failed to save accounts: %v\n", err)
			return
		}
		fmt.Fprintln(c.out, "account removed")
	default:
		fmt.Fprintln(c.out, "removal cancelled")
	}
}

func readLine(scanner *bufio.Scanner) (string, bool) {
	if !scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(scanner.Text()), true
}
