package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/shared"
	"github.com/urfave/cli/v3"
)

// AccountsAdd enrolls an account, or refreshes the tokens of an existing one with the same subject.
func (r *Runner) AccountsAdd(ctx context.Context, cmd *cli.Command) error {
	account := models.NewAccount(cmd.String("email"), cmd.String("name"), cmd.String("subject"))
	account.Credentials = models.Credentials{
		AccessToken:  cmd.String("access-token"),
		RefreshToken: cmd.String("refresh-token"),
	}
	if account.Credentials.AccessToken != "" {
		// Unknown expiry: treat a supplied access token as short-lived.
		account.Credentials.Expiry = time.Now().UTC().Add(time.Minute)
	}

	if cmd.Bool("verify") {
		google, err := r.googleClient(nil)
		if err != nil {
			return err
		}
		token, err := google.EnsureValid(ctx, account)
		if err != nil {
			return err
		}
		identity, err := google.VerifyIdentity(ctx, token)
		if err != nil {
			return err
		}
		account.SourceSubject = identity.Subject
		account.Email = identity.Email
		if account.Name == "" {
			account.Name = identity.Name
		}
	} else if account.Email == "" || account.SourceSubject == "" {
		return fmt.Errorf("%w: --email and --subject are required with --verify=false", shared.ErrMissingArgument)
	}

	a, err := r.open(false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	enrolled, err := a.accounts.Enroll(ctx, account)
	if err != nil {
		return err
	}

	r.logger.Info("account enrolled", "account", enrolled.ID, "email", enrolled.Email)
	r.writePlain("✓ Account %s (%s)\n", enrolled.Email, enrolled.ID)
	if !enrolled.Destination.Ready() {
		r.writePlain("Next: taskmirror accounts destination %s --token <notion-token> --database <id>\n", enrolled.ID)
	}
	return nil
}

// AccountsList prints every account with its policy and destination state.
func (r *Runner) AccountsList(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	accounts, err := a.accounts.List(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(accounts, true)
	}
	if len(accounts) == 0 {
		return r.writePlain("No accounts enrolled\n")
	}

	for _, acct := range accounts {
		auto := "off"
		if acct.Policy.AutoSync {
			auto = fmt.Sprintf("every %dm", acct.Policy.IntervalMinutes)
		}
		dest := "not configured"
		if acct.Destination.Ready() {
			dest = acct.Destination.DatabaseID
		}
		last := "never"
		if acct.Policy.LastSyncAt != nil {
			last = acct.Policy.LastSyncAt.Format("2006-01-02 15:04")
		}
		state := ""
		if !acct.Active {
			state = " " + r.palette.Muted("(inactive)")
		}
		r.writePlain("%s  %s%s\n    auto-sync: %s  destination: %s  last sync: %s\n",
			acct.ID, acct.Email, state, auto, dest, last)
	}
	return nil
}

// AccountsDestination validates a Notion database and stores it on the account.
func (r *Runner) AccountsDestination(ctx context.Context, cmd *cli.Command) error {
	id, err := accountArg(cmd)
	if err != nil {
		return err
	}

	a, err := r.open(false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	info, err := a.coordinator.ConfigureDestination(ctx, id, cmd.String("token"), cmd.String("database"))
	if err != nil {
		return err
	}

	r.writePlain("✓ Destination set to %q (%s)\n", info.Title, info.ID)
	return nil
}

// AccountsSetActive returns an action that toggles the account's active flag.
func (r *Runner) AccountsSetActive(active bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		id, err := accountArg(cmd)
		if err != nil {
			return err
		}

		a, err := r.open(false)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		if err := a.accounts.SetActive(ctx, id, active); err != nil {
			return err
		}
		state := "inactive"
		if active {
			state = "active"
		}
		return r.writePlain("✓ Account %s is now %s\n", id, state)
	}
}
