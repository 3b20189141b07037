package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/guarzo/gymapi/common"
)

func (c *cli) signinCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = c.v.GetString("password")
			}
			if email == "" || password == "" {
				return fmt.Errorf("email and password are required")
			}

			user, err := c.app.session.SignIn(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("sign in failed: %s: %w", common.UserMessage(err), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s>\n", user.Name, user.Email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (or GYM_PASSWORD)")

	return cmd
}

func (c *cli) signoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.session.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.requireSession(); err != nil {
				return err
			}

			user := c.app.session.CurrentUser()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s <%s>\n", user.Name, user.Email)
			if user.Avatar != "" {
				fmt.Fprintln(out, c.app.fitness.AvatarURL(user.Avatar))
			}
			return nil
		},
	}
}

func (c *cli) groupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List muscle groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.requireSession(); err != nil {
				return err
			}

			groups, err := c.app.fitness.Groups(cmd.Context())
			if err != nil {
				return apiError(err)
			}
			for _, group := range groups {
				fmt.Fprintln(cmd.OutOrStdout(), group)
			}
			return nil
		},
	}
}

func (c *cli) exercisesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exercises <group>",
		Short: "List the exercises of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.requireSession(); err != nil {
				return err
			}

			exercises, err := c.app.fitness.ExercisesByGroup(cmd.Context(), args[0])
			if err != nil {
				return apiError(err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSERIES\tREPETITIONS")
			for _, e := range exercises {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", e.ID, e.Name, e.Series, e.Repetitions)
			}
			return w.Flush()
		},
	}
}

func (c *cli) exerciseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exercise <id>",
		Short: "Show an exercise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.requireSession(); err != nil {
				return err
			}

			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			e, err := c.app.fitness.Exercise(cmd.Context(), id)
			if err != nil {
				return apiError(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", e.Name, e.Group)
			fmt.Fprintf(out, "%d series x %d repetitions\n", e.Series, e.Repetitions)
			if e.Demo != "" {
				fmt.Fprintln(out, c.app.fitness.DemoURL(e.Demo))
			}
			return nil
		},
	}
}

func (c *cli) doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Register an exercise as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.requireSession(); err != nil {
				return err
			}

			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if err := c.app.fitness.RegisterExercise(cmd.Context(), id); err != nil {
				return apiError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exercise %d registered\n", id)
			return nil
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the exercise history by day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.requireSession(); err != nil {
				return err
			}

			days, err := c.app.fitness.History(cmd.Context())
			if err != nil {
				return apiError(err)
			}

			out := cmd.OutOrStdout()
			for _, day := range days {
				fmt.Fprintln(out, day.Title)
				for _, h := range day.Data {
					fmt.Fprintf(out, "  %s  %s (%s)\n", h.Hour, h.Name, h.Group)
				}
			}
			return nil
		},
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid exercise id: %q", arg)
	}
	return id, nil
}

// apiError puts the message the API returned in front of the error chain.
func apiError(err error) error {
	return fmt.Errorf("%s: %w", common.UserMessage(err), err)
}
