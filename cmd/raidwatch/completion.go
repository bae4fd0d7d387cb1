package main

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate a completion script for the named shell.

Load it for the current session:

  $ source <(raidwatch completion bash)
  $ raidwatch completion fish | source
  PS> raidwatch completion powershell | Out-String | Invoke-Expression

Or install it permanently, for example:

  $ raidwatch completion bash > /etc/bash_completion.d/raidwatch
  $ raidwatch completion zsh > "${fpath[1]}/_raidwatch"
  $ raidwatch completion fish > ~/.config/fish/completions/raidwatch.fish
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		out := cmd.OutOrStdout()

		switch args[0] {
		case "bash":
			return root.GenBashCompletionV2(out, true)
		case "zsh":
			return root.GenZshCompletion(out)
		case "fish":
			return root.GenFishCompletion(out, true)
		case "powershell":
			return root.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
