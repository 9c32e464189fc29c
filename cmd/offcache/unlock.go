package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/talentflow/offlinecache/internal/drafts"
	"github.com/talentflow/offlinecache/internal/flagx"
	"github.com/talentflow/offlinecache/internal/logging"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// unlockDrafts prompts for the draft encryption passphrase when -unlock is
// given: first run sets the passphrase, later runs unlock against the
// stored verifier. Without the flag, drafts stay plaintext or locked.
func unlockDrafts(ctx context.Context, store *drafts.Store, log logging.Logger) error {
	args := flagx.FilterArgs(os.Args[1:], []string{"-unlock"})

	fs := flag.NewFlagSet("unlock", flag.ContinueOnError)
	unlock := fs.Bool("unlock", false, "prompt for the draft encryption passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*unlock {
		return nil
	}

	passphrase, err := promptPassphrase()
	if err != nil {
		return err
	}
	defer wipe(passphrase)

	keyring := store.Keyring()
	configured, err := keyring.Configured(ctx)
	if err != nil {
		return err
	}

	if !configured {
		if err := keyring.SetPassphrase(ctx, passphrase); err != nil {
			return err
		}
		log.Info(ctx, "draft encryption passphrase set")
		return nil
	}

	ok, err := keyring.Unlock(ctx, passphrase)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("wrong passphrase")
	}
	log.Info(ctx, "draft encryption unlocked")
	return nil
}

func promptPassphrase() ([]byte, error) {
	fmt.Fprint(os.Stderr, "Enter draft passphrase: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
