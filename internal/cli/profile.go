package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gallery-sync/internal/config"
)

// newProfileCommand creates the profile command group
func newProfileCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profile",
		Aliases: []string{"profiles"},
		Short:   "Manage saved connection profiles",
	}
	cmd.AddCommand(
		newProfileListCommand(rt),
		newProfileAddCommand(rt),
		newProfileRemoveCommand(rt),
		newProfileDefaultCommand(rt),
	)
	return cmd
}

func newProfileListCommand(rt *runtime) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List connection profiles",
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

			profiles := a.Config().GetProfiles()
			def := a.Settings().DefaultProfile
			return render(cmd.OutOrStdout(), output, profiles, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "\tNAME\tREMOTE\tLAST USED")
				for _, p := range profiles {
					mark := ""
					if p.ID == def {
						mark = "*"
					}
					cfg := p.SyncConfig("", nil).WithDefaults()
					lastUsed := "never"
					if !p.LastUsed.IsZero() {
						lastUsed = p.LastUsed.Local().Format(time.DateTime)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, p.Name, cfg, lastUsed)
				}
				tw.Flush()
			})
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func newProfileAddCommand(rt *runtime) *cobra.Command {
	var (
		tlsImplicit   bool
		tlsSkipVerify bool
		makeDefault   bool
	)
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Save a connection profile from the connection flags",
		Long: `Save a connection profile built from --protocol, --host, --port, --user,
--key, --remote-path and --timeout.

A password given with --password or ` + EnvPrefix + `_PASSWORD is stored encrypted
under the master password from ` + EnvPrefix + `_MASTER_PASSWORD.`,
		Example: `  gallery-sync profile add home --host nas.local --user me --remote-path /volume1/gallery --key ~/.ssh/id_ed25519`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ov := overrides(rt.v)
			profile := config.ConnectionProfile{
				Name:           args[0],
				Protocol:       ov.Protocol,
				Host:           ov.Host,
				Port:           ov.Port,
				Username:       ov.Username,
				PrivateKeyPath: ov.PrivateKeyPath,
				RemotePath:     ov.RemotePath,
				TLSImplicit:    tlsImplicit,
				TLSSkipVerify:  tlsSkipVerify,
				Timeout:        int(ov.Timeout / time.Second),
			}

			// A placeholder secret lets Validate check everything else.
			check := profile.SyncConfig("-", nil).WithDefaults()
			if err := check.Validate(); err != nil {
				return err
			}
			if ov.Password != "" && ov.MasterPassword == "" {
				return errors.New("storing a password requires " + EnvPrefix + "_MASTER_PASSWORD")
			}

			profile, err = a.Config().AddProfile(profile)
			if err != nil {
				return err
			}
			if ov.Password != "" {
				creds, err := a.Credentials(ov.MasterPassword)
				if err != nil {
					return err
				}
				if err := creds.SetPassword(profile.ID, ov.Password); err != nil {
					return err
				}
			}
			if makeDefault {
				if err := setDefaultProfile(a.Config(), profile.ID); err != nil {
					return err
				}
			}
			fmt.Fprintf(rt.stdout(cmd), "Saved profile %q (%s)\n", profile.Name, profile.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&tlsImplicit, "tls-implicit", false, "use implicit TLS for ftps")
	cmd.Flags().BoolVar(&tlsSkipVerify, "tls-skip-verify", false, "skip TLS certificate verification for ftps")
	cmd.Flags().BoolVar(&makeDefault, "default", false, "make this the default profile")
	return cmd
}

func newProfileRemoveCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a connection profile and its stored password",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.Config().FindProfile(args[0])
			if err != nil {
				return err
			}
			if err := a.Config().DeleteProfile(p.ID); err != nil {
				return err
			}
			if master := rt.v.GetString(keyMasterPassword); master != "" {
				creds, err := a.Credentials(master)
				if err != nil {
					return err
				}
				if err := creds.DeletePassword(p.ID); err != nil {
					return err
				}
			}
			fmt.Fprintf(rt.stdout(cmd), "Removed profile %q\n", p.Name)
			return nil
		},
	}
}

func newProfileDefaultCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "default NAME",
		Short: "Set the profile used when --profile is not given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.Config().FindProfile(args[0])
			if err != nil {
				return err
			}
			return setDefaultProfile(a.Config(), p.ID)
		},
	}
}

func setDefaultProfile(cm *config.ConfigManager, id string) error {
	cfg := cm.Get()
	cfg.DefaultProfile = id
	return cm.Set(&cfg)
}
