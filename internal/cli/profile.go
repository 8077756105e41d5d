package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/nanoreport/internal/nanopub"
)

var (
	profilePath    string
	setupOrcid     string
	setupName      string
	setupKeyDir    string
	setupIntroURI  string
	setupOverwrite bool
)

// profileCmd represents the profile command
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the nanopub profile used for signing",
	Long: `Manage the nanopub profile (default ~/.nanopub/profile.yml).

The profile holds your ORCID iD, your name and the RSA key pair that
nanopublications are signed with.`,
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := nanopub.FileProfileLoader{Path: resolveProfilePath()}.Load()
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(p)
		if err != nil {
			return fmt.Errorf("error marshaling profile: %w", err)
		}
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return err
		}

		pub, err := nanopub.PublicKeyString(&p.PrivateKey().PublicKey)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "public_key_base64: %s\n", pub)
		return nil
	},
}

var profileSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate a key pair and write profile.yml",
	Long: `Setup generates a 2048-bit RSA key pair and writes a profile
referencing it.

Example:
  nanoreport profile setup --orcid https://orcid.org/0000-0002-1825-0097 --name "Josiah Carberry"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveProfilePath()
		if _, err := os.Stat(path); err == nil && !setupOverwrite {
			return fmt.Errorf("profile already exists: %s\nUse --force to replace it", path)
		}

		keyDir := setupKeyDir
		if keyDir == "" {
			keyDir = filepath.Dir(path)
		}
		privPath, pubPath, err := nanopub.GenerateKeys(keyDir, setupOverwrite)
		if err != nil {
			return err
		}

		p := &nanopub.Profile{
			OrcidID:         setupOrcid,
			Name:            setupName,
			PublicKeyPath:   pubPath,
			PrivateKeyPath:  privPath,
			IntroNanopubURI: setupIntroURI,
		}
		if err := nanopub.SaveProfile(path, p); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote profile: %s\n", path)
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Private key: %s\n", privPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetupCmd)

	profileCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "profile path (default: config profile.path or ~/.nanopub/profile.yml)")

	profileSetupCmd.Flags().StringVar(&setupOrcid, "orcid", "", "your ORCID iD as URL")
	profileSetupCmd.Flags().StringVar(&setupName, "name", "", "your name")
	profileSetupCmd.Flags().StringVar(&setupKeyDir, "key-dir", "", "directory for id_rsa and id_rsa.pub (default: profile directory)")
	profileSetupCmd.Flags().StringVar(&setupIntroURI, "intro-nanopub", "", "URI of your introduction nanopub")
	profileSetupCmd.Flags().BoolVar(&setupOverwrite, "force", false, "replace an existing profile and key pair")
	_ = profileSetupCmd.MarkFlagRequired("orcid")
	_ = profileSetupCmd.MarkFlagRequired("name")
}

func resolveProfilePath() string {
	if profilePath != "" {
		return profilePath
	}
	if cfg, err := loadConfig(); err == nil && cfg.Profile.Path != "" {
		return cfg.Profile.Path
	}
	if p, err := nanopub.DefaultProfilePath(); err == nil {
		return p
	}
	return "profile.yml"
}
