package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gallery-sync/internal/sync"
)

const (
	formatHuman = "human"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func addOutputFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", formatHuman, "output format: human, json, yaml")
}

func checkFormat(format string) error {
	switch format {
	case formatHuman, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unsupported output format: %s (use: human, json, yaml)", format)
}

// render writes v as JSON or YAML, or calls human for the default format.
func render(w io.Writer, format string, v any, human func(io.Writer)) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		human(w)
		return nil
	}
}

func printResult(w io.Writer, res *sync.Result) {
	fmt.Fprintf(w, "\n%s summary\n", strings.ToUpper(string(res.Direction[:1]))+string(res.Direction[1:]))
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintf(w, "Operation:          %s\n", res.OperationID)
	fmt.Fprintf(w, "Collections:        %d", res.Collections)
	if res.CollectionsCreated > 0 || res.CollectionsDeleted > 0 {
		fmt.Fprintf(w, " (%d created, %d deleted)", res.CollectionsCreated, res.CollectionsDeleted)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Files transferred:  %d/%d\n", res.FilesTransferred, res.FilesConsidered)
	fmt.Fprintf(w, "Files skipped:      %d\n", res.FilesSkipped)
	fmt.Fprintf(w, "Files deleted:      %d\n", res.FilesDeleted)
	if res.FilesFailed > 0 {
		fmt.Fprintf(w, "Files failed:       %d\n", res.FilesFailed)
	}
	if res.CollectionsSkipped > 0 {
		fmt.Fprintf(w, "Collections skipped: %d\n", res.CollectionsSkipped)
	}
	fmt.Fprintf(w, "Transferred:        %s\n", formatBytes(res.BytesTransferred))
	fmt.Fprintf(w, "Duration:           %s\n", res.Duration.Round(time.Millisecond))
}

func printComparison(w io.Writer, cmp *sync.ComparisonResult) {
	if cmp.InSync() {
		fmt.Fprintf(w, "In sync: %d collections identical\n", len(cmp.Identical))
		return
	}

	section := func(title string, names []string) {
		if len(names) == 0 {
			return
		}
		fmt.Fprintf(w, "%s (%d):\n", title, len(names))
		for _, n := range names {
			fmt.Fprintf(w, "  %s\n", n)
		}
	}
	section("Only local", cmp.OnlyLocal)
	section("Only remote", cmp.OnlyRemote)

	if len(cmp.Different) > 0 {
		fmt.Fprintf(w, "Different (%d):\n", len(cmp.Different))
		for _, d := range cmp.Different {
			fmt.Fprintf(w, "  %s\n", d.Name)
			for _, f := range d.OnlyInLocal {
				fmt.Fprintf(w, "    + %s\n", f)
			}
			for _, f := range d.OnlyInRemote {
				fmt.Fprintf(w, "    - %s\n", f)
			}
		}
	}
	section("Unreadable on remote", cmp.Unreadable)
	fmt.Fprintf(w, "Identical: %d\n", len(cmp.Identical))
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
