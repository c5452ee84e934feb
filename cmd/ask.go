package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emera/sattur/internal/app"
	"github.com/emera/sattur/internal/apperr"
	"github.com/emera/sattur/internal/config"
	"github.com/emera/sattur/internal/dispatch"
)

var askCmd = &cobra.Command{
	Use:   "ask [question...]",
	Short: "Ask the tutor one question and stream the answer",
	Example: `  sattur ask "What does namaste mean?"
  sattur ask --lesson 1 --language Sanskrit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		language, _ := cmd.Flags().GetString("language")
		sessionID, _ := cmd.Flags().GetString("session")
		lesson, _ := cmd.Flags().GetInt("lesson")

		req := dispatch.Request{
			SessionID: sessionID,
			Query:     strings.Join(args, " "),
			Language:  language,
		}
		if cmd.Flags().Changed("lesson") {
			req.LessonToTeach = &lesson
		} else if req.Query == "" {
			return errors.New("a question or --lesson is required")
		}

		// A persistent session needs a persistent store.
		if sessionID != "" && cfg.Session.Backend == config.BackendMemory {
			cfg.Session.Backend = config.BackendSQLite
		}

		ctx := cmd.Context()
		a, err := app.New(ctx, cfg, app.Options{Logger: logger})
		if err != nil {
			return err
		}
		defer a.Close()

		reply, err := a.Dispatcher.Handle(ctx, req)
		if err != nil {
			return errors.New(apperr.Message(err))
		}
		defer reply.Close()

		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			line := fmt.Sprintf("[%s", reply.Route)
			if reply.Decision != nil && !reply.Decision.Confident {
				line += ", low confidence"
			}
			fmt.Fprintln(cmd.ErrOrStderr(), line+"]")
		}

		out := cmd.OutOrStdout()
		for chunk, err := range reply.Stream {
			if err != nil {
				fmt.Fprintln(out)
				return errors.New(apperr.Message(err))
			}
			fmt.Fprint(out, chunk)
		}
		fmt.Fprintln(out)
		return nil
	},
}

func init() {
	askCmd.Flags().StringP("language", "l", "Sanskrit", "Language being learned")
	askCmd.Flags().IntP("lesson", "L", 0, "Teach this lesson number instead of answering a question")
	askCmd.Flags().StringP("session", "s", "", "Session id for progression and conversation memory")
	askCmd.Flags().BoolP("verbose", "v", false, "Print the chosen responder")
}
