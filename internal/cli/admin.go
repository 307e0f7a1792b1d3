package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/circlesync/internal/auth"
	"github.com/roach88/circlesync/internal/config"
	"github.com/roach88/circlesync/internal/ir"
)

// Administrative commands. Each opens the configured database, performs
// one engine operation and prints the affected record.

// NewUserCommand creates the user command group.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var u ir.User
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		Example: `  circlesync user add --name Ana --email ana@example.com
  circlesync user add --id u1 --name Ana --email ana@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr(), rootOpts)
			if err != nil {
				return err
			}
			defer rt.Close()

			created, err := rt.engine.CreateUser(ctx, u)
			if err != nil {
				return engineExitError("failed to add user", err)
			}
			return newFormatter(rootOpts, cmd).Success(created,
				fmt.Sprintf("✓ user %s (%s) created", created.ID, created.Email))
		},
	}
	add.Flags().StringVar(&u.ID, "id", "", "user id (generated when empty)")
	add.Flags().StringVar(&u.Name, "name", "", "display name (required)")
	add.Flags().StringVar(&u.Email, "email", "", "email address (required)")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("email")

	cmd.AddCommand(add)
	return cmd
}

// NewCircleCommand creates the circle command group.
func NewCircleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circle",
		Short: "Manage circles",
	}

	var (
		c         ir.Circle
		startDate string
		creator   string
	)
	create := &cobra.Command{
		Use:     "create",
		Short:   "Create a circle with its creator as admin",
		Example: `  circlesync circle create --name Family --creator u1 --start-date 2020-05-01`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if startDate != "" {
				if _, err := time.Parse(time.DateOnly, startDate); err != nil {
					return WrapExitError(ExitCommandError, ErrCodeInvalidInput, "invalid --start-date", err)
				}
				c.StartDate = &startDate
			}

			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr(), rootOpts)
			if err != nil {
				return err
			}
			defer rt.Close()

			created, err := rt.engine.CreateCircle(ctx, c, creator)
			if err != nil {
				return engineExitError("failed to create circle", err)
			}
			return newFormatter(rootOpts, cmd).Success(created,
				fmt.Sprintf("✓ circle %s (%s) created, admin %s", created.ID, created.Name, creator))
		},
	}
	create.Flags().StringVar(&c.ID, "id", "", "circle id (generated when empty)")
	create.Flags().StringVar(&c.Name, "name", "", "circle name (required)")
	create.Flags().StringVar(&startDate, "start-date", "", "relationship start date (YYYY-MM-DD)")
	create.Flags().StringVar(&creator, "creator", "", "user id of the admin (required)")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("creator")

	cmd.AddCommand(create)
	return cmd
}

// NewMemberCommand creates the member command group.
func NewMemberCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage circle membership",
	}

	var role string
	add := &cobra.Command{
		Use:     "add <circle-id> <user-id>",
		Short:   "Add a user to a circle",
		Example: `  circlesync member add c1 u2 --role member`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr(), rootOpts)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.engine.AddMember(ctx, args[0], args[1], role); err != nil {
				return engineExitError("failed to add member", err)
			}
			if role == "" {
				role = ir.RoleMember
			}
			return newFormatter(rootOpts, cmd).Success(
				map[string]string{"circleId": args[0], "userId": args[1], "role": role},
				fmt.Sprintf("✓ %s joined %s as %s", args[1], args[0], role))
		},
	}
	add.Flags().StringVar(&role, "role", ir.RoleMember, "admin or member")

	remove := &cobra.Command{
		Use:   "remove <circle-id> <user-id>",
		Short: "Remove a user from a circle",
		Long: `Remove a user from a circle. Moments, letters and comments the user
authored stay in the circle.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr(), rootOpts)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.engine.RemoveMember(ctx, args[0], args[1]); err != nil {
				return engineExitError("failed to remove member", err)
			}
			return newFormatter(rootOpts, cmd).Success(
				map[string]string{"circleId": args[0], "userId": args[1]},
				fmt.Sprintf("✓ %s left %s", args[1], args[0]))
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

// NewLetterCommand creates the letter command group.
func NewLetterCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "letter",
		Short: "Manage letters",
	}

	var as, unlockDate string
	seal := &cobra.Command{
		Use:   "seal <letter-id>",
		Short: "Seal a draft letter",
		Long: `Seal a draft letter as its author. Sealing is logged as a letter
update, so other devices see the new status on their next pull.`,
		Example: `  circlesync letter seal l1 --as u1 --unlock-date 2027-02-14`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var unlock *string
			if unlockDate != "" {
				unlock = &unlockDate
			}

			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr(), rootOpts)
			if err != nil {
				return err
			}
			defer rt.Close()

			letter, err := rt.engine.SealLetter(ctx, args[0], as, unlock)
			if err != nil {
				return engineExitError("failed to seal letter", err)
			}
			return newFormatter(rootOpts, cmd).Success(letter,
				fmt.Sprintf("✓ letter %s sealed", letter.ID))
		},
	}
	seal.Flags().StringVar(&as, "as", "", "author of the letter (required)")
	seal.Flags().StringVar(&unlockDate, "unlock-date", "", "date the recipient may open it")
	_ = seal.MarkFlagRequired("as")

	cmd.AddCommand(seal)
	return cmd
}

// NewTokenCommand creates the token command group.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint bearer tokens",
	}

	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue <user-id>",
		Short: "Issue a bearer token for a registered user",
		Long: `Issue a signed bearer token for the sync API. Requires the same
secret the server uses (auth.secret or ` + config.EnvJWTSecret + `).`,
		Example: `  circlesync token issue u1 --ttl 720h`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr(), rootOpts)
			if err != nil {
				return err
			}
			defer rt.Close()

			tokens, err := auth.New([]byte(rt.cfg.Auth.Secret), rt.cfg.Auth.Issuer)
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeInvalidInput,
					fmt.Sprintf("auth secret is required (set %s)", config.EnvJWTSecret), err)
			}
			if _, err := rt.engine.User(ctx, args[0]); err != nil {
				return engineExitError(fmt.Sprintf("user %s", args[0]), err)
			}

			if ttl == 0 {
				ttl = rt.cfg.Auth.TokenTTL
			}
			token, err := tokens.Issue(args[0], ttl)
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeGeneric, "failed to sign token", err)
			}
			return newFormatter(rootOpts, cmd).Success(
				map[string]any{"userId": args[0], "token": token, "expiresIn": ttl.String()},
				token)
		},
	}
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl)")

	cmd.AddCommand(issue)
	return cmd
}
