package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"communitychat/pkg/chaterr"
	"communitychat/pkg/present"
	"communitychat/pkg/unsend"
)

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the local anonymous identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			id := s.engine.Identity()
			a := present.AvatarFor(id.LocalID)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:     %s\n", id.LocalID)
			fmt.Fprintf(out, "name:   %s\n", id.DisplayName)
			fmt.Fprintf(out, "avatar: %s %s\n", a.Color, a.Shape)
			return nil
		},
	}
}

func newNameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "name <display name>",
		Short: "Change the display name used on new messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			before := s.engine.Identity().DisplayName
			after := s.engine.SetDisplayName(strings.Join(args, " ")).DisplayName
			if after == before {
				fmt.Fprintf(cmd.OutOrStdout(), "name unchanged: %s\n", after)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "name set: %s\n", after)
			return nil
		},
	}
}

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <text>",
		Short: "Send a message to the feed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			id, err := s.engine.Send(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return describeSendError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func describeSendError(err error) error {
	if ve, ok := chaterr.AsValidation(err); ok {
		return ve
	}
	if chaterr.IsTransport(err) {
		return fmt.Errorf("message not sent, store unreachable: %w", err)
	}
	return err
}

func newUnsendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unsend <message id>",
		Short: "Remove one of your messages from the feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			res, err := s.engine.Unsend(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeUnsend(res))
			return nil
		},
	}
}

func describeUnsend(res unsend.Result) string {
	switch res.Outcome {
	case unsend.OutcomeApplied:
		return "message removed"
	case unsend.OutcomeAlreadyDeleted:
		return "message was already removed"
	case unsend.OutcomeNotOwner:
		return "not your message; nothing changed"
	default:
		return "no such message"
	}
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the feed once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			v, err := s.engine.Messages(cmd.Context())
			if err != nil {
				return err
			}
			r := &renderer{out: cmd.OutOrStdout(), clock: s.engine.Clock}
			if ids, _ := cmd.Flags().GetBool("ids"); ids {
				r.IDs(v)
				return nil
			}
			r.View(v)
			return nil
		},
	}
	cmd.Flags().Bool("ids", false, "print message ids (yours are starred)")
	return cmd
}
