package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gallery-sync/internal/store"
)

// newLogCommand creates the log command
func newLogCommand(rt *runtime) *cobra.Command {
	var (
		limit  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent collection changes and sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			a, err := rt.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			changes, err := a.RecentChanges(commandContext(cmd), limit)
			if err != nil {
				return err
			}
			if changes == nil {
				changes = []store.ChangeLog{}
			}
			return render(cmd.OutOrStdout(), output, changes, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				for _, c := range changes {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Timestamp.Local().Format(time.DateTime), c.Action, c.Description)
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	addOutputFlag(cmd, &output)
	return cmd
}

// newCollectionCommand creates the collection command group
func newCollectionCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"collections", "col"},
		Short:   "Manage local collections",
	}

	var output string
	list := &cobra.Command{
		Use:   "list",
		Short: "List local collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			a, err := rt.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			cols, err := a.Collections(commandContext(cmd))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, cols, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tREMOTE\tITEMS")
				for _, c := range cols {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Name, c.RemoteName, c.Items)
				}
				tw.Flush()
			})
		},
	}
	addOutputFlag(list, &output)

	show := &cobra.Command{
		Use:   "show NAME",
		Short: "List the media files of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.CollectionItems(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			for _, p := range items {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an empty collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.CreateCollection(commandContext(cmd), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(rt.stdout(cmd), "Created collection %q\n", args[0])
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a collection; its media files stay on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.DeleteCollection(commandContext(cmd), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(rt.stdout(cmd), "Deleted collection %q\n", args[0])
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add NAME FILE...",
		Short: "Add media files to a collection",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.AddItems(commandContext(cmd), args[0], args[1:])
			if n > 0 {
				fmt.Fprintf(rt.stdout(cmd), "Added %d files to %q\n", n, args[0])
			}
			return err
		},
	}

	remove := &cobra.Command{
		Use:   "remove NAME FILE...",
		Short: "Remove media files from a collection; the files stay on disk",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, p := range args[1:] {
				if err := a.RemoveItem(commandContext(cmd), args[0], p); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(list, show, create, del, add, remove)
	return cmd
}
