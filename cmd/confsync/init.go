package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/confhub/confsync/internal/config"
	"github.com/confhub/confsync/internal/ui"
)

// scaffoldPage mirrors the sources.yaml document shape. localPath is
// omitted so the loader derives it from the name.
type scaffoldPage struct {
	Name            string `yaml:"name"`
	RemoteID        string `yaml:"remoteId"`
	AccessMode      string `yaml:"accessMode"`
	SyncChildren    bool   `yaml:"syncChildren"`
	SyncAttachments bool   `yaml:"syncAttachments"`
}

type scaffoldSources struct {
	Pages []scaffoldPage `yaml:"pages"`
}

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "project",
	Short:   "Scaffold a new project interactively",
	Long: `Create sources.yaml and .env.example in the project directory.

The form asks for the first tracked page (paste a Confluence page URL
or a bare page ID), a name for it, its access mode, and whether child
pages and attachments should sync. More pages can be added later by
editing sources.yaml by hand.

After init, copy .env.example to .env, fill in the credentials, and run
confsync pull.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		sourcesPath := filepath.Join(flagProject, config.SourcesFile)
		if _, err := os.Stat(sourcesPath); err == nil {
			fmt.Fprintf(os.Stderr, "Error: %s already exists; edit it directly to add pages\n", sourcesPath)
			os.Exit(1)
		}

		defaults := config.DefaultSettings()
		var (
			rawPage     string
			name        string
			mode        = string(defaults.AccessMode)
			children    = defaults.SyncChildren
			attachments = defaults.SyncAttachments
		)

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Confluence page").
					Description("Paste the page URL or its numeric ID.").
					Placeholder("https://example.atlassian.net/wiki/spaces/DOC/pages/12345/Title").
					Value(&rawPage).
					Validate(func(s string) error {
						_, err := config.ExtractPageID(s)
						return err
					}),
				huh.NewInput().
					Title("Document name").
					Description("Becomes the local file name (name.md).").
					Placeholder("runbook").
					Value(&name).
					Validate(validateDocName),
				huh.NewSelect[string]().
					Title("Access mode").
					Options(
						huh.NewOption("read-only (pull only)", string(config.ReadOnly)),
						huh.NewOption("read-write (pull and push)", string(config.ReadWrite)),
					).
					Value(&mode),
				huh.NewConfirm().
					Title("Sync child pages?").
					Value(&children),
				huh.NewConfirm().
					Title("Download attachments?").
					Value(&attachments),
			),
		)

		if err := form.Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println("Canceled.")
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		pageID, err := config.ExtractPageID(rawPage)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := os.MkdirAll(flagProject, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		src := scaffoldSources{Pages: []scaffoldPage{{
			Name:            strings.TrimSpace(name),
			RemoteID:        pageID,
			AccessMode:      mode,
			SyncChildren:    children,
			SyncAttachments: attachments,
		}}}
		data, err := yaml.Marshal(&src)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(sourcesPath, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Created %s\n", ui.RenderPass("✓"), sourcesPath)

		envPath := filepath.Join(flagProject, ".env.example")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			if err := os.WriteFile(envPath, []byte(envExample), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Created %s\n", ui.RenderPass("✓"), envPath)
		}

		fmt.Printf("\nNext steps:\n")
		fmt.Printf("   1. cp %s %s\n", envPath, filepath.Join(flagProject, ".env"))
		fmt.Printf("   2. Fill in the Confluence credentials\n")
		fmt.Printf("   3. confsync pull\n")
	},
}

const envExample = `# Confluence API credentials for confsync.
# Copy to .env (kept out of version control) or export in the shell.
CONFLUENCE_BASE_URL=https://your-domain.atlassian.net/wiki
CONFLUENCE_USERNAME=you@example.com
CONFLUENCE_API_TOKEN=your-api-token
`

func validateDocName(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("name is required")
	}
	if strings.ContainsAny(s, `/\`) {
		return errors.New("name must not contain path separators")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}
